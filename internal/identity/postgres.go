package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresAccounts はPostgreSQLを使用したAccountRepository実装。
type PostgresAccounts struct {
	db *sql.DB
}

// NewPostgresAccounts はPostgresAccountsを生成する。
func NewPostgresAccounts(db *sql.DB) *PostgresAccounts {
	return &PostgresAccounts{db: db}
}

// FindByEmail は指定メールのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	account := &Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT uid, email, password_hash, created_at FROM accounts WHERE email = $1`,
		email,
	).Scan(&account.UID, &account.Email, &account.PasswordHash, &account.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}

	return account, nil
}

// Create はアカウントを作成する。
// メールの一意制約違反はErrEmailInUseにマップする（同時作成との競合対策）。
func (r *PostgresAccounts) Create(ctx context.Context, account *Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (uid, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4)`,
		account.UID, account.Email, account.PasswordHash, account.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrEmailInUse
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccounts)(nil)
