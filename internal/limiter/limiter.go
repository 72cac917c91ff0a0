// Package limiter はクライアントアドレスごとのログイン失敗回数を制限します。
package limiter

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/yourusername/homegate/internal/kvstore"
)

const attemptKeyPrefix = "access_nums_"

// Limiter はログイン失敗カウンターを管理します。
// 成功時のリセットは行わず、カウンターはTTL満了でのみ消滅します。
type Limiter struct {
	store        kvstore.Store
	maxAttempts  int
	forbidWindow time.Duration
	logger       *log.Logger
}

// New は Limiter を作成します。
func New(store kvstore.Store, maxAttempts int, forbidWindow time.Duration, logger *log.Logger) *Limiter {
	if logger == nil {
		logger = log.Default()
	}
	return &Limiter{
		store:        store,
		maxAttempts:  maxAttempts,
		forbidWindow: forbidWindow,
		logger:       logger,
	}
}

// IsBlocked はクライアントが失敗回数の上限に達しているかを返します。
// ストア障害時は false を返します（fail-open）。制限側の障害で
// 正規ユーザーを締め出さないことを、厳格さより優先する方針です。
func (l *Limiter) IsBlocked(ctx context.Context, clientKey string) bool {
	value, ok, err := l.store.Get(ctx, attemptKeyPrefix+clientKey)
	if err != nil {
		l.logger.Printf("limiter: failed to read attempts for %s: %v", clientKey, err)
		return false
	}
	if !ok {
		return false
	}
	count, err := strconv.Atoi(value)
	if err != nil {
		l.logger.Printf("limiter: invalid counter value for %s: %q", clientKey, value)
		return false
	}
	return count >= l.maxAttempts
}

// RecordFailure は失敗回数をアトミックに加算し、TTLを毎回更新します。
// 記録の失敗はログに残すのみで、呼び出し元のログイン結果には影響させません。
func (l *Limiter) RecordFailure(ctx context.Context, clientKey string) {
	if _, err := l.store.Increment(ctx, attemptKeyPrefix+clientKey, l.forbidWindow); err != nil {
		l.logger.Printf("limiter: failed to record attempt for %s: %v", clientKey, err)
	}
}

// RetryAfter は Retry-After ヘッダー用にロック期間を返します。
func (l *Limiter) RetryAfter() time.Duration {
	return l.forbidWindow
}
