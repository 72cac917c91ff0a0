package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/homegate/internal/account"
)

const (
	SessionCookieName = "hg_session"

	sessionKeyName   = "name"
	sessionKeyMobile = "mobile"
	sessionKeyUserID = "user_id"
	sessionKeyCSRF   = "csrf_token"

	csrfHeader = "X-CSRF-Token"
)

var maxSessionLifetime = 12 * time.Hour

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// establishSession はログイン状態をセッションへ書き込みます。
// 既存のセッション内容は置き換えられます。戻り値はCSRFトークンです。
func establishSession(c *gin.Context, principal *account.Principal) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	session := sessions.Default(c)
	session.Set(sessionKeyName, principal.Name)
	session.Set(sessionKeyMobile, principal.Mobile)
	session.Set(sessionKeyUserID, principal.UserID)
	session.Set(sessionKeyCSRF, token)

	if err := session.Save(); err != nil {
		return "", err
	}
	return token, nil
}

// currentName はセッションからログイン中ユーザーの表示名を取り出します。
func currentName(c *gin.Context) (string, bool) {
	session := sessions.Default(c)
	name, ok := session.Get(sessionKeyName).(string)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
