package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrMobileExists は携帯番号がすでに登録済みであることを表します。
var ErrMobileExists = errors.New("mobile already registered")

// Repository はユーザーレコードの永続化操作を定義します。
type Repository interface {
	// Create はユーザーを作成してIDを返します。
	// 携帯番号が重複している場合は ErrMobileExists を返します。
	Create(ctx context.Context, user *User) (int64, error)

	// FindByMobile は携帯番号でユーザーを検索します。
	// 該当がない場合は (nil, nil) を返します。
	FindByMobile(ctx context.Context, mobile string) (*User, error)
}

const pgUniqueViolation = "23505"

// PostgresRepository は Repository のPostgreSQL実装です。
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository は PostgresRepository を作成します。
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create はユーザーを作成します。
func (r *PostgresRepository) Create(ctx context.Context, user *User) (int64, error) {
	const q = `
		INSERT INTO users (name, mobile, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, q, user.Name, user.Mobile, user.PasswordHash).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return 0, ErrMobileExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// FindByMobile は携帯番号でユーザーを検索します。
func (r *PostgresRepository) FindByMobile(ctx context.Context, mobile string) (*User, error) {
	const q = `
		SELECT id, name, mobile, password_hash, created_at
		FROM users
		WHERE mobile = $1
	`
	u := &User{}
	err := r.db.QueryRowContext(ctx, q, mobile).Scan(&u.ID, &u.Name, &u.Mobile, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user by mobile: %w", err)
	}
	return u, nil
}
