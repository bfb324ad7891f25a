// Package identity は外部認証サービスの抽象と、そのローカル実装を提供する。
//
// Providerがアカウントの認証・作成を担うバックエンド、Connがクライアント
// 1接続分の認証状態（現在のIdentityと変更通知）を担うハンドルを表す。
// アプリケーションにとってIdentityは不透明な資格情報であり、UserProfileとは
// 別物である（IdentityのIDでプロファイルドキュメントを引く）。
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// 認証サービスが返す識別可能なエラー条件。
// ErrInvalidCredentialは「ユーザー不存在」と「パスワード誤り」を区別しない。
var (
	ErrInvalidCredential = errors.New("identity: invalid credential")
	ErrEmailInUse        = errors.New("identity: email already in use")
	ErrWeakPassword      = errors.New("identity: password too weak")
)

// Identity は認証済みの外部サービス資格情報を表す。
type Identity struct {
	UID   string
	Email string
}

// Provider は認証バックエンドのインターフェース。
type Provider interface {
	// Authenticate は資格情報を検証し、一致すればIdentityを返す。
	// ユーザー不存在・パスワード誤りのどちらもErrInvalidCredentialを返す。
	Authenticate(ctx context.Context, email, secret string) (*Identity, error)

	// CreateAccount は新規アカウントを作成する。
	// 既存メールはErrEmailInUse、強度不足のパスワードはErrWeakPasswordを返す。
	CreateAccount(ctx context.Context, email, secret string) (*Identity, error)
}

// DeriveEmail は人間が選んだユーザー名から認証用識別子を導出する。
// ユーザー名を小文字化し、固定の内部ドメインサフィックスを付与する。
// ユーザーに見せる概念はあくまでユーザー名であり、メールアドレスではない。
func DeriveEmail(username, domain string) string {
	return strings.ToLower(username) + "@" + domain
}

// Unsubscribe は変更通知の登録を解除する。複数回呼んでも安全。
type Unsubscribe func()

// Conn はクライアント1接続分の認証状態ハンドル。
// サインイン・サインアウトのたびに登録済みリスナーへ現在のIdentity
// （未認証ならnil）が通知される。リスナー登録時にも現在値を即時通知する。
type Conn struct {
	provider Provider

	mu        sync.Mutex
	current   *Identity
	listeners map[int]func(*Identity)
	nextID    int
}

// NewConn は未認証状態のConnを生成する。
func NewConn(provider Provider) *Conn {
	return &Conn{
		provider:  provider,
		listeners: make(map[int]func(*Identity)),
	}
}

// SignIn は資格情報を検証し、成功すればこの接続の現在Identityを切り替える。
func (c *Conn) SignIn(ctx context.Context, email, secret string) (*Identity, error) {
	ident, err := c.provider.Authenticate(ctx, email, secret)
	if err != nil {
		return nil, err
	}
	c.setCurrent(ident)
	return ident, nil
}

// SignUp は新規アカウントを作成し、作成されたIdentityでこの接続を認証する。
// 作成直後に新規ユーザーとして自動的にサインイン状態になる点に注意。
func (c *Conn) SignUp(ctx context.Context, email, secret string) (*Identity, error) {
	ident, err := c.provider.CreateAccount(ctx, email, secret)
	if err != nil {
		return nil, err
	}
	c.setCurrent(ident)
	return ident, nil
}

// SignOut はこの接続を未認証状態に戻す。未認証でも安全。
func (c *Conn) SignOut(ctx context.Context) error {
	c.setCurrent(nil)
	return nil
}

// Current は現在のIdentityを返す。未認証ならnil。
func (c *Conn) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// OnIdentityChange は認証状態の変更リスナーを登録する。
// 登録時に現在値が即時通知され、以後サインイン・サインアウトのたびに呼ばれる。
func (c *Conn) OnIdentityChange(fn func(*Identity)) Unsubscribe {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	current := c.current
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// setCurrent は現在Identityを差し替え、全リスナーへ通知する。
func (c *Conn) setCurrent(ident *Identity) {
	c.mu.Lock()
	c.current = ident
	fns := make([]func(*Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ident)
	}
}
