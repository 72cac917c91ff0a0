// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// セッション設定
	SessionSecret string // セッション署名用の秘密鍵

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// 外部ストア
	RedisURL    string // 検証コード・試行回数カウンター用Redis接続URL
	DatabaseURL string // ユーザーレコード用PostgreSQL接続URL

	// ログイン制限
	MaxLoginAttempts    int // ログイン失敗の許容回数
	ForbidWindowMinutes int // ロック期間（分）

	// 短信検証コード
	SMSCodeExpireMinutes int // 検証コードの有効期限（分）
	SMSResendGapSeconds  int // 同一番号への再送間隔（秒）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// セッション設定
		SessionSecret: getEnv("SESSION_SECRET", ""),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// 外部ストア
		RedisURL:    getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// ログイン制限
		MaxLoginAttempts:    getEnvAsInt("LOGIN_ERROR_MAX_TIMES", 5),
		ForbidWindowMinutes: getEnvAsInt("LOGIN_ERROR_FORBID_MINUTES", 10),

		// 短信検証コード
		SMSCodeExpireMinutes: getEnvAsInt("SMS_CODE_EXPIRE_MINUTES", 5),
		SMSResendGapSeconds:  getEnvAsInt("SMS_RESEND_GAP_SECONDS", 60),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発では外部ストア設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in release mode")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in release mode")
		}
	}

	if c.MaxLoginAttempts <= 0 {
		return fmt.Errorf("LOGIN_ERROR_MAX_TIMES must be positive")
	}
	if c.ForbidWindowMinutes <= 0 {
		return fmt.Errorf("LOGIN_ERROR_FORBID_MINUTES must be positive")
	}
	if c.SMSCodeExpireMinutes <= 0 {
		return fmt.Errorf("SMS_CODE_EXPIRE_MINUTES must be positive")
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
