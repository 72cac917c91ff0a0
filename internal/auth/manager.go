// Package auth は登録・ログイン・ログアウトの認証フローを提供します。
package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/homegate/internal/account"
	"github.com/yourusername/homegate/internal/apperr"
)

// 中国本土の携帯番号形式。登録・ログインの識別子はこの形式に限ります。
var mobileRe = regexp.MustCompile(`^1[345678]\d{9}$`)

// CodeConsumer は検証コードを1回限りで消費します。
type CodeConsumer interface {
	Consume(ctx context.Context, mobile, submitted string) error
}

// LoginLimiter はクライアントごとのログイン失敗回数を管理します。
type LoginLimiter interface {
	IsBlocked(ctx context.Context, clientKey string) bool
	RecordFailure(ctx context.Context, clientKey string)
	RetryAfter() time.Duration
}

// CredentialChecker は携帯番号とパスワードの組を検証します。
type CredentialChecker interface {
	Check(ctx context.Context, mobile, password string) (*account.Principal, error)
}

// Manager は認証フローの各ハンドラーをまとめた構造体です。
type Manager struct {
	codes   CodeConsumer
	limiter LoginLimiter
	checker CredentialChecker
	users   account.Repository
	logger  *log.Logger
}

// NewManager は Manager を作成します。
func NewManager(codes CodeConsumer, limiter LoginLimiter, checker CredentialChecker, users account.Repository, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		codes:   codes,
		limiter: limiter,
		checker: checker,
		users:   users,
		logger:  logger,
	}
}

type registerRequest struct {
	Mobile    string `json:"mobile"`
	SMSCode   string `json:"sms_code"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// Register は POST /api/users のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperr.New(apperr.CodeInvalidInput, "mobile, sms_code, password, password2 を JSON で送ってください。"))
		return
	}

	if req.Mobile == "" || req.SMSCode == "" || req.Password == "" || req.Password2 == "" {
		respondWithError(c, apperr.New(apperr.CodeInvalidInput, "入力項目が不足しています。"))
		return
	}
	if !mobileRe.MatchString(req.Mobile) {
		respondWithError(c, apperr.New(apperr.CodeInvalidInput, "携帯番号の形式が正しくありません。"))
		return
	}
	// コードを消費する前に確認用パスワードを照合する。
	// 不一致の段階でコードを無駄にしないため。
	if req.Password != req.Password2 {
		respondWithError(c, apperr.New(apperr.CodeInvalidInput, "パスワードが一致しません。"))
		return
	}

	ctx := c.Request.Context()
	if err := m.codes.Consume(ctx, req.Mobile, req.SMSCode); err != nil {
		respondWithError(c, err)
		return
	}

	hash, err := account.HashPassword(req.Password)
	if err != nil {
		m.logger.Printf("auth: failed to hash password: %v", err)
		respondWithError(c, apperr.New(apperr.CodeStorageError, "ユーザー登録に失敗しました。"))
		return
	}

	// 表示名は携帯番号で初期化する
	userID, err := m.users.Create(ctx, &account.User{
		Name:         req.Mobile,
		Mobile:       req.Mobile,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, account.ErrMobileExists) {
			respondWithError(c, apperr.New(apperr.CodeMobileExists, "この携帯番号はすでに登録されています。"))
			return
		}
		m.logger.Printf("auth: failed to create user mobile=%s: %v", req.Mobile, err)
		respondWithError(c, apperr.New(apperr.CodeStorageError, "ユーザー登録に失敗しました。"))
		return
	}

	token, err := establishSession(c, &account.Principal{
		UserID: userID,
		Name:   req.Mobile,
		Mobile: req.Mobile,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました。",
		})
		return
	}

	c.Header(csrfHeader, token)
	c.JSON(http.StatusCreated, gin.H{"userId": userID, "name": req.Mobile})
}

type loginRequest struct {
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

// Login は POST /api/session のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperr.New(apperr.CodeInvalidInput, "mobile と password を JSON で送ってください。"))
		return
	}

	if req.Mobile == "" || req.Password == "" {
		respondWithError(c, apperr.New(apperr.CodeInvalidInput, "入力項目が不足しています。"))
		return
	}
	if !mobileRe.MatchString(req.Mobile) {
		respondWithError(c, apperr.New(apperr.CodeInvalidInput, "携帯番号の形式が正しくありません。"))
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()

	// 上限に達したクライアントは資格情報ストアへ到達させない
	if m.limiter.IsBlocked(ctx, ip) {
		c.Header("Retry-After", strconv.FormatInt(int64(m.limiter.RetryAfter().Seconds()), 10))
		respondWithError(c, apperr.New(apperr.CodeTooManyAttempts, "失敗回数が上限に達しました。しばらくしてから再度お試しください。"))
		return
	}

	principal, err := m.checker.Check(ctx, req.Mobile, req.Password)
	if err != nil {
		// 失敗記録に失敗しても INVALID_CREDENTIALS の結果は変えない
		if apperr.CodeOf(err) == apperr.CodeInvalidCredentials {
			m.limiter.RecordFailure(ctx, ip)
		}
		respondWithError(c, err)
		return
	}

	token, err := establishSession(c, principal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました。",
		})
		return
	}

	c.Header(csrfHeader, token)
	c.Status(http.StatusNoContent)
}

// CheckLogin は GET /api/session のハンドラーです。
func (m *Manager) CheckLogin(c *gin.Context) {
	name, ok := currentName(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    apperr.CodeUnauthorized,
			"message": "ログインしていません。",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name})
}

// Logout は DELETE /api/session のハンドラーです。
// セッションが存在しない場合でもエラーにはなりません。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの削除に失敗しました。",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *apperr.Error
	if !errors.As(err, &apiErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
		return
	}

	status := http.StatusBadRequest
	switch apiErr.Code {
	case apperr.CodeInvalidCredentials, apperr.CodeUnauthorized:
		status = http.StatusUnauthorized
	case apperr.CodeMobileExists:
		status = http.StatusConflict
	case apperr.CodeTooManyAttempts, apperr.CodeSMSResendThrottled:
		status = http.StatusTooManyRequests
	case apperr.CodeStorageError:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	})
}
