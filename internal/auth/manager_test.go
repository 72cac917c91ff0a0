package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/homegate/internal/account"
	"github.com/yourusername/homegate/internal/apperr"
)

type stubCodes struct {
	err   error
	calls int
}

func (s *stubCodes) Consume(ctx context.Context, mobile, submitted string) error {
	s.calls++
	return s.err
}

type stubLimiter struct {
	blocked  bool
	failures int
}

func (s *stubLimiter) IsBlocked(ctx context.Context, clientKey string) bool {
	return s.blocked
}

func (s *stubLimiter) RecordFailure(ctx context.Context, clientKey string) {
	s.failures++
}

func (s *stubLimiter) RetryAfter() time.Duration {
	return 10 * time.Minute
}

type stubChecker struct {
	principal *account.Principal
	err       error
	calls     int
}

func (s *stubChecker) Check(ctx context.Context, mobile, password string) (*account.Principal, error) {
	s.calls++
	return s.principal, s.err
}

type stubRepo struct {
	id      int64
	err     error
	created *account.User
}

func (s *stubRepo) Create(ctx context.Context, user *account.User) (int64, error) {
	s.created = user
	return s.id, s.err
}

func (s *stubRepo) FindByMobile(ctx context.Context, mobile string) (*account.User, error) {
	return nil, nil
}

func newTestRouter(m *Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions(SessionCookieName, store))
	router.POST("/api/users", m.Register)
	router.POST("/api/session", m.Login)
	router.GET("/api/session", m.CheckLogin)
	router.DELETE("/api/session", m.RequireLogin(), m.VerifyCSRF(), m.Logout)
	return router
}

func doJSON(router *gin.Engine, method, path, body string, cookies []*http.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error body %q: %v", rec.Body.String(), err)
	}
	return resp.Code
}

func TestRegisterSuccess(t *testing.T) {
	codes := &stubCodes{}
	repo := &stubRepo{id: 7}
	m := NewManager(codes, &stubLimiter{}, &stubChecker{}, repo, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodPost, "/api/users",
		`{"mobile":"13800001111","sms_code":"4321","password":"secret123","password2":"secret123"}`, nil, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if codes.calls != 1 {
		t.Fatalf("code consume calls = %d, want 1", codes.calls)
	}
	if repo.created == nil || repo.created.Name != "13800001111" || repo.created.Mobile != "13800001111" {
		t.Fatalf("unexpected created user: %+v", repo.created)
	}
	if repo.created.PasswordHash == "" || repo.created.PasswordHash == "secret123" {
		t.Fatalf("password was not hashed: %q", repo.created.PasswordHash)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatal("expected session cookie to be set")
	}
	if rec.Header().Get("X-CSRF-Token") == "" {
		t.Fatal("expected X-CSRF-Token header")
	}
}

func TestRegisterPasswordMismatchDoesNotConsumeCode(t *testing.T) {
	codes := &stubCodes{}
	m := NewManager(codes, &stubLimiter{}, &stubChecker{}, &stubRepo{}, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodPost, "/api/users",
		`{"mobile":"13800001111","sms_code":"4321","password":"secret123","password2":"different"}`, nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := errorCode(t, rec); got != apperr.CodeInvalidInput {
		t.Fatalf("unexpected code: %s", got)
	}
	if codes.calls != 0 {
		t.Fatalf("code was consumed despite password mismatch: calls=%d", codes.calls)
	}
}

func TestRegisterInvalidMobileFormat(t *testing.T) {
	codes := &stubCodes{}
	m := NewManager(codes, &stubLimiter{}, &stubChecker{}, &stubRepo{}, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodPost, "/api/users",
		`{"mobile":"12345","sms_code":"4321","password":"secret123","password2":"secret123"}`, nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if codes.calls != 0 {
		t.Fatal("code consumed for malformed mobile")
	}
}

func TestRegisterCodeExpired(t *testing.T) {
	codes := &stubCodes{err: apperr.New(apperr.CodeSMSCodeExpired, "expired")}
	repo := &stubRepo{}
	m := NewManager(codes, &stubLimiter{}, &stubChecker{}, repo, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodPost, "/api/users",
		`{"mobile":"13800001111","sms_code":"4321","password":"secret123","password2":"secret123"}`, nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := errorCode(t, rec); got != apperr.CodeSMSCodeExpired {
		t.Fatalf("unexpected code: %s", got)
	}
	if repo.created != nil {
		t.Fatal("user was created despite expired code")
	}
}

func TestRegisterMobileExists(t *testing.T) {
	m := NewManager(&stubCodes{}, &stubLimiter{}, &stubChecker{}, &stubRepo{err: account.ErrMobileExists}, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodPost, "/api/users",
		`{"mobile":"13800001111","sms_code":"4321","password":"secret123","password2":"secret123"}`, nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if got := errorCode(t, rec); got != apperr.CodeMobileExists {
		t.Fatalf("unexpected code: %s", got)
	}
}

func TestRegisterStorageError(t *testing.T) {
	m := NewManager(&stubCodes{}, &stubLimiter{}, &stubChecker{}, &stubRepo{err: errors.New("connection refused")}, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodPost, "/api/users",
		`{"mobile":"13800001111","sms_code":"4321","password":"secret123","password2":"secret123"}`, nil, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := errorCode(t, rec); got != apperr.CodeStorageError {
		t.Fatalf("unexpected code: %s", got)
	}
}

func TestLoginBlockedSkipsCredentialCheck(t *testing.T) {
	checker := &stubChecker{}
	m := NewManager(&stubCodes{}, &stubLimiter{blocked: true}, checker, &stubRepo{}, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodPost, "/api/session",
		`{"mobile":"13800001111","password":"secret123"}`, nil, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if got := errorCode(t, rec); got != apperr.CodeTooManyAttempts {
		t.Fatalf("unexpected code: %s", got)
	}
	if checker.calls != 0 {
		t.Fatalf("credential store was contacted while blocked: calls=%d", checker.calls)
	}
	if rec.Header().Get("Retry-After") != "600" {
		t.Fatalf("unexpected Retry-After: %q", rec.Header().Get("Retry-After"))
	}
}

func TestLoginFailureRecordsAttempt(t *testing.T) {
	lim := &stubLimiter{}
	checker := &stubChecker{err: apperr.New(apperr.CodeInvalidCredentials, "invalid")}
	m := NewManager(&stubCodes{}, lim, checker, &stubRepo{}, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodPost, "/api/session",
		`{"mobile":"13800001111","password":"wrong"}`, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := errorCode(t, rec); got != apperr.CodeInvalidCredentials {
		t.Fatalf("unexpected code: %s", got)
	}
	if lim.failures != 1 {
		t.Fatalf("recorded failures = %d, want 1", lim.failures)
	}
}

func TestLoginStorageErrorDoesNotRecordFailure(t *testing.T) {
	lim := &stubLimiter{}
	checker := &stubChecker{err: apperr.New(apperr.CodeStorageError, "down")}
	m := NewManager(&stubCodes{}, lim, checker, &stubRepo{}, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodPost, "/api/session",
		`{"mobile":"13800001111","password":"secret123"}`, nil, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if lim.failures != 0 {
		t.Fatalf("storage error must not count as a login failure: failures=%d", lim.failures)
	}
}

func TestLoginCheckStatusLogoutFlow(t *testing.T) {
	checker := &stubChecker{principal: &account.Principal{
		UserID: 42,
		Name:   "13800001111",
		Mobile: "13800001111",
	}}
	m := NewManager(&stubCodes{}, &stubLimiter{}, checker, &stubRepo{}, nil)
	router := newTestRouter(m)

	// ログイン
	loginRec := doJSON(router, http.MethodPost, "/api/session",
		`{"mobile":"13800001111","password":"secret123"}`, nil, nil)
	if loginRec.Code != http.StatusNoContent {
		t.Fatalf("login: unexpected status %d body=%s", loginRec.Code, loginRec.Body.String())
	}
	sessionCookies := loginRec.Result().Cookies()
	if len(sessionCookies) == 0 {
		t.Fatal("login did not set a session cookie")
	}
	csrf := loginRec.Header().Get("X-CSRF-Token")
	if csrf == "" {
		t.Fatal("login did not return a CSRF token")
	}

	// ログイン状態の確認
	statusRec := doJSON(router, http.MethodGet, "/api/session", "", sessionCookies, nil)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("check status: unexpected status %d", statusRec.Code)
	}
	var statusResp map[string]string
	if err := json.Unmarshal(statusRec.Body.Bytes(), &statusResp); err != nil {
		t.Fatalf("failed to parse status body: %v", err)
	}
	if statusResp["name"] != "13800001111" {
		t.Fatalf("unexpected name: %q", statusResp["name"])
	}

	// ログアウト
	logoutRec := doJSON(router, http.MethodDelete, "/api/session", "", sessionCookies,
		map[string]string{"X-CSRF-Token": csrf})
	if logoutRec.Code != http.StatusNoContent {
		t.Fatalf("logout: unexpected status %d body=%s", logoutRec.Code, logoutRec.Body.String())
	}

	// ログアウト後のセッションは無効
	afterCookies := logoutRec.Result().Cookies()
	if len(afterCookies) == 0 {
		afterCookies = sessionCookies
	}
	afterRec := doJSON(router, http.MethodGet, "/api/session", "", afterCookies, nil)
	if afterRec.Code != http.StatusUnauthorized {
		t.Fatalf("status after logout: got %d, want 401", afterRec.Code)
	}
}

func TestCheckStatusUnauthenticated(t *testing.T) {
	m := NewManager(&stubCodes{}, &stubLimiter{}, &stubChecker{}, &stubRepo{}, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodGet, "/api/session", "", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := errorCode(t, rec); got != apperr.CodeUnauthorized {
		t.Fatalf("unexpected code: %s", got)
	}
}

func TestLogoutWithoutCSRFTokenRejected(t *testing.T) {
	checker := &stubChecker{principal: &account.Principal{UserID: 42, Name: "13800001111", Mobile: "13800001111"}}
	m := NewManager(&stubCodes{}, &stubLimiter{}, checker, &stubRepo{}, nil)
	router := newTestRouter(m)

	loginRec := doJSON(router, http.MethodPost, "/api/session",
		`{"mobile":"13800001111","password":"secret123"}`, nil, nil)
	if loginRec.Code != http.StatusNoContent {
		t.Fatalf("login: unexpected status %d", loginRec.Code)
	}

	rec := doJSON(router, http.MethodDelete, "/api/session", "", loginRec.Result().Cookies(), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("logout without CSRF: got %d, want 403", rec.Code)
	}
}

func TestLogoutWithoutSessionRejectedByRequireLogin(t *testing.T) {
	m := NewManager(&stubCodes{}, &stubLimiter{}, &stubChecker{}, &stubRepo{}, nil)
	router := newTestRouter(m)

	rec := doJSON(router, http.MethodDelete, "/api/session", "", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
