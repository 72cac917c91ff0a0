package account

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/homegate/internal/apperr"
)

// Validator は携帯番号とパスワードの組を検証します。
type Validator struct {
	users Repository
}

// NewValidator は Validator を作成します。
func NewValidator(users Repository) *Validator {
	return &Validator{users: users}
}

// Check は資格情報を検証し、成功時に Principal を返します。
// 未登録の番号とパスワード不一致はどちらも INVALID_CREDENTIALS を返し、
// 番号が登録済みかどうかを外部から判別できないようにします。
func (v *Validator) Check(ctx context.Context, mobile, password string) (*Principal, error) {
	user, err := v.users.FindByMobile(ctx, mobile)
	if err != nil {
		return nil, apperr.New(apperr.CodeStorageError, "ユーザー情報の取得に失敗しました。")
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperr.New(apperr.CodeInvalidCredentials, "携帯番号またはパスワードが正しくありません。")
	}
	return &Principal{
		UserID: user.ID,
		Name:   user.Name,
		Mobile: user.Mobile,
	}, nil
}

// HashPassword はパスワードをbcryptでハッシュ化します。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
