package identity

import (
	"context"
	"sync"
)

// MemoryAccounts はAccountRepositoryのインメモリ実装。
// テストおよびローカル起動モード用。
type MemoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]*Account // email -> account
}

// NewMemoryAccounts は空のMemoryAccountsを生成する。
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[string]*Account)}
}

// FindByEmail は指定メールのアカウントを取得する。見つからない場合はnilを返す。
func (m *MemoryAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[email]
	if !ok {
		return nil, nil
	}
	clone := *account
	return &clone, nil
}

// Create はアカウントを作成する。同一メールが既に存在する場合はErrEmailInUseを返す。
func (m *MemoryAccounts) Create(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.Email]; ok {
		return ErrEmailInUse
	}
	clone := *account
	m.accounts[account.Email] = &clone
	return nil
}

// compile-time interface check
var _ AccountRepository = (*MemoryAccounts)(nil)
