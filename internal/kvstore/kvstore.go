// Package kvstore はTTL付きキーバリューストアへのアクセスを提供します。
// 検証コードとログイン失敗カウンターの保存先として利用します。
package kvstore

import (
	"context"
	"time"
)

// Store はTTL付きキーバリューストアの操作を定義します。
// GetDel と Increment はストア側でアトミックに実行される必要があります。
type Store interface {
	// Get はキーの値を返します。キーが存在しない場合は ok=false を返します。
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set は値をTTL付きで保存します。既存の値は上書きされます。
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// GetDel は値の取得と削除をアトミックに行います。
	// 同一キーへの同時取得で同じ値が二度読まれることはありません。
	GetDel(ctx context.Context, key string) (value string, ok bool, err error)

	// Delete はキーを削除します。存在しないキーの削除はエラーになりません。
	Delete(ctx context.Context, key string) error

	// Increment はカウンターをアトミックに加算し、加算後の値を返します。
	// キーが存在しない場合は1で作成し、毎回TTLをttlへ更新します。
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
