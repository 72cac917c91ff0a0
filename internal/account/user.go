// Package account はユーザーレコードの永続化と資格情報の検証を提供します。
package account

import "time"

// User はusersテーブルの1行を表します。
type User struct {
	ID           int64
	Name         string
	Mobile       string
	PasswordHash string
	CreatedAt    time.Time
}

// Principal は認証に成功したユーザーを表します。
// セッションへ書き込む3項目のみを持ちます。
type Principal struct {
	UserID int64
	Name   string
	Mobile string
}
