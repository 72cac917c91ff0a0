package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/homegate/internal/apperr"
)

// ContextUserKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextUserKey = "auth.user"

// RequireLogin はセッションを検証するミドルウェアを返します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		name, ok := currentName(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    apperr.CodeUnauthorized,
				"message": "ログインが必要です。",
			})
			return
		}
		c.Set(ContextUserKey, name)
		c.Next()
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダーを検証するミドルウェアです。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_MISSING",
				"message": "CSRF トークンが設定されていません。",
			})
			return
		}

		received := c.GetHeader(csrfHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_INVALID",
				"message": "CSRF トークンが一致しません。",
			})
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
