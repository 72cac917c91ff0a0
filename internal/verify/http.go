package verify

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/homegate/internal/apperr"
)

var mobileRe = regexp.MustCompile(`^1[345678]\d{9}$`)

// Dispatcher は発行済みコードのSMS送信をキューへ投入するためのインターフェースです。
type Dispatcher interface {
	Dispatch(ctx context.Context, mobile, code string) (string, error)
}

// IssueHandler は POST /api/sms_codes のハンドラーを返します。
// コードを発行して送信キューへ投入します。コード本体はレスポンスに含めません。
func IssueHandler(ledger *Ledger, dispatcher Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Mobile string `json:"mobile"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Mobile == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    apperr.CodeInvalidInput,
				"message": "mobile を JSON で送ってください。",
			})
			return
		}
		if !mobileRe.MatchString(req.Mobile) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    apperr.CodeInvalidInput,
				"message": "携帯番号の形式が正しくありません。",
			})
			return
		}

		ctx := c.Request.Context()
		code, err := ledger.Issue(ctx, req.Mobile)
		if err != nil {
			respondWithError(c, err)
			return
		}

		taskID, err := dispatcher.Dispatch(ctx, req.Mobile, code)
		if err != nil {
			respondWithError(c, apperr.New(apperr.CodeStorageError, "SMS送信の受付に失敗しました。"))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"taskId": taskID})
	}
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
	case apperr.CodeSMSResendThrottled:
		status = http.StatusTooManyRequests
	case apperr.CodeStorageError:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	})
}
