// Package verify は短信検証コードの発行と消費を管理します。
package verify

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/yourusername/homegate/internal/apperr"
	"github.com/yourusername/homegate/internal/kvstore"
)

const (
	codeKeyPrefix = "sms_code_"
	sentKeyPrefix = "sms_sent_"
)

// Ledger は携帯番号ごとの検証コードを管理します。
// コードは番号ごとに常に1件のみで、再発行すると前のコードは上書きされます。
type Ledger struct {
	store     kvstore.Store
	codeTTL   time.Duration
	resendGap time.Duration
}

// NewLedger は Ledger を作成します。
func NewLedger(store kvstore.Store, codeTTL, resendGap time.Duration) *Ledger {
	return &Ledger{
		store:     store,
		codeTTL:   codeTTL,
		resendGap: resendGap,
	}
}

// Issue は6桁の検証コードを生成して保存し、SMS送信用にコードを返します。
// 再送間隔内の再発行は SMS_RESEND_THROTTLED で拒否します。
func (l *Ledger) Issue(ctx context.Context, mobile string) (string, error) {
	if l.resendGap > 0 {
		_, sent, err := l.store.Get(ctx, sentKeyPrefix+mobile)
		if err != nil {
			return "", apperr.New(apperr.CodeStorageError, "検証コードの発行に失敗しました。")
		}
		if sent {
			return "", apperr.New(apperr.CodeSMSResendThrottled, "検証コードは送信済みです。しばらく待ってから再送してください。")
		}
	}

	code, err := generateCode()
	if err != nil {
		return "", apperr.New(apperr.CodeStorageError, "検証コードの生成に失敗しました。")
	}

	if err := l.store.Set(ctx, codeKeyPrefix+mobile, code, l.codeTTL); err != nil {
		return "", apperr.New(apperr.CodeStorageError, "検証コードの保存に失敗しました。")
	}
	if l.resendGap > 0 {
		if err := l.store.Set(ctx, sentKeyPrefix+mobile, "1", l.resendGap); err != nil {
			return "", apperr.New(apperr.CodeStorageError, "検証コードの保存に失敗しました。")
		}
	}
	return code, nil
}

// Consume は検証コードを1回限りで消費します。
// 保存されたコードは照合結果にかかわらず取得と同時に削除されます。
// 入力を誤った場合は新しいコードの発行が必要になりますが、
// これは再送信攻撃を防ぐための意図した一回限りの方針です。
func (l *Ledger) Consume(ctx context.Context, mobile, submitted string) error {
	stored, ok, err := l.store.GetDel(ctx, codeKeyPrefix+mobile)
	if err != nil {
		return apperr.New(apperr.CodeStorageError, "検証コードの読み出しに失敗しました。")
	}
	if !ok {
		return apperr.New(apperr.CodeSMSCodeExpired, "検証コードの有効期限が切れています。再送信してください。")
	}
	if stored != submitted {
		return apperr.New(apperr.CodeSMSCodeMismatch, "検証コードが正しくありません。")
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
