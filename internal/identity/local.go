package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// minSecretLength は認証サービスが要求する最小パスワード長。
const minSecretLength = 6

// Account は認証バックエンドに保存されるアカウントレコード。
// アプリケーションのUserProfileとは独立したライフサイクルを持つ。
type Account struct {
	UID          string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByEmail は指定メールのアカウントを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// Create はアカウントを作成する。同一メールが既に存在する場合はErrEmailInUseを返す。
	Create(ctx context.Context, account *Account) error
}

// LocalProvider はbcryptハッシュでアカウントを自前管理するProvider実装。
// ホスティング型認証サービスの代わりに同一デプロイ内で動作する。
type LocalProvider struct {
	accounts AccountRepository
}

// NewLocalProvider はLocalProviderを生成する。
func NewLocalProvider(accounts AccountRepository) *LocalProvider {
	return &LocalProvider{accounts: accounts}
}

// Authenticate は資格情報を検証する。
// ユーザー不存在とパスワード誤りはどちらもErrInvalidCredentialにまとめる。
func (p *LocalProvider) Authenticate(ctx context.Context, email, secret string) (*Identity, error) {
	account, err := p.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("failed to compare password: %w", err)
	}

	return &Identity{UID: account.UID, Email: account.Email}, nil
}

// CreateAccount は新規アカウントを作成する。
// パスワード強度の検証はこの層で行う（呼び出し側の事前検証に依存しない）。
func (p *LocalProvider) CreateAccount(ctx context.Context, email, secret string) (*Identity, error) {
	if len(secret) < minSecretLength {
		return nil, ErrWeakPassword
	}

	existing, err := p.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailInUse
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &Account{
		UID:          uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := p.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	return &Identity{UID: account.UID, Email: account.Email}, nil
}

// compile-time interface check
var _ Provider = (*LocalProvider)(nil)
