package main

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/homegate/internal/account"
	"github.com/yourusername/homegate/internal/auth"
	"github.com/yourusername/homegate/internal/config"
	"github.com/yourusername/homegate/internal/kvstore"
	"github.com/yourusername/homegate/internal/limiter"
	"github.com/yourusername/homegate/internal/sms"
	"github.com/yourusername/homegate/internal/verify"
)

type passportDeps struct {
	authManager *auth.Manager
	ledger      *verify.Ledger
	smsManager  *sms.Manager
}

func setupPassport(cfg *config.Config) (*passportDeps, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	store := kvstore.NewRedisStore(redis.NewClient(opt))

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	ledger := verify.NewLedger(
		store,
		time.Duration(cfg.SMSCodeExpireMinutes)*time.Minute,
		time.Duration(cfg.SMSResendGapSeconds)*time.Second,
	)
	loginLimiter := limiter.New(
		store,
		cfg.MaxLoginAttempts,
		time.Duration(cfg.ForbidWindowMinutes)*time.Minute,
		log.Default(),
	)

	users := account.NewPostgresRepository(db)
	validator := account.NewValidator(users)
	authManager := auth.NewManager(ledger, loginLimiter, validator, users, log.Default())

	// SMS送信ワーカー（開発環境ではログ出力のみ）
	smsManager, err := sms.NewManager(cfg.RedisURL, &sms.LogSender{}, log.Default())
	if err != nil {
		return nil, err
	}
	smsManager.StartWorker()

	return &passportDeps{
		authManager: authManager,
		ledger:      ledger,
		smsManager:  smsManager,
	}, nil
}
