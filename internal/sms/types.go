// Package sms は短信検証コードの非同期送信を提供します。
package sms

// TaskPayload は送信タスクのペイロードです。
type TaskPayload struct {
	TaskID string `json:"taskId"`
	Mobile string `json:"mobile"`
	Code   string `json:"code"`
}
