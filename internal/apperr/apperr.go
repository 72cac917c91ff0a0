// Package apperr はAPI全体で共有するエラーコード付きエラー型を提供します。
package apperr

import "errors"

// 各エラーコードはレスポンスボディの code フィールドにそのまま載ります。
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeSMSCodeExpired     = "SMS_CODE_EXPIRED"
	CodeSMSCodeMismatch    = "SMS_CODE_MISMATCH"
	CodeSMSResendThrottled = "SMS_RESEND_THROTTLED"
	CodeMobileExists       = "MOBILE_EXISTS"
	CodeStorageError       = "STORAGE_ERROR"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
)

// Error はエラーコードと利用者向けメッセージを持つエラーです。
type Error struct {
	Code    string
	Message string
}

// New は Error を作成します。
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// CodeOf は err に含まれる *Error のコードを返します。該当しない場合は空文字です。
func CodeOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
