// Package auth はログインフローのビジネスロジックを提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hitoshi/agenda/internal/identity"
	"github.com/hitoshi/agenda/internal/model"
	"github.com/hitoshi/agenda/internal/store"
)

// Recorder はログイン結果の観測イベントを記録するインターフェース。
// metricsパッケージのCollectorが実装する。nilの場合は記録しない。
type Recorder interface {
	RecordLogin(outcome string)
}

// ログイン結果の分類。
const (
	OutcomeSuccess      = "success"
	OutcomeInvalid      = "invalid_credential"
	OutcomeBootstrapped = "bootstrapped"
	OutcomeError        = "error"
)

// Config は認証サービスの設定。
type Config struct {
	// Domain は認証用識別子に付与する内部ドメイン。
	Domain string
	// BootstrapAdminName は初期管理者のユーザー名。
	// この名前での認証失敗時に限り、初期管理者の自動作成を試みる。
	BootstrapAdminName string
	// BootstrapAdminPassword は初期管理者のパスワード。
	BootstrapAdminPassword string
}

// Result はログイン試行の結果。
type Result struct {
	// Bootstrapped は初期管理者アカウントを作成したことを示す。
	// trueの場合、接続はサインインしておらず、改めてのログインが必要。
	Bootstrapped bool
	// Identity はサインイン済みの資格情報。Bootstrappedがtrueならnil。
	Identity *identity.Identity
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	store     store.Store
	config    Config
	recorder  Recorder
	avatarFor func(uid string) string
}

// NewService はServiceを生成する。
func NewService(s store.Store, config Config, recorder Recorder, avatarFor func(uid string) string) *Service {
	return &Service{
		store:     s,
		config:    config,
		recorder:  recorder,
		avatarFor: avatarFor,
	}
}

// Login はユーザー名とパスワードで接続をサインインさせる。
//
// 通常の認証失敗のうち、資格情報が初期管理者のものと完全一致する場合に
// 限り、初期管理者アカウントの自動作成を試みる。作成の試行自体が
// 存在確認を兼ねる: アカウントが既に存在するなら失敗の原因は
// パスワード誤りであり、通常の認証失敗として扱う。
//
// 自動作成に成功した場合はプロファイル作成後に即サインアウトし、
// Bootstrapped=trueを返す。作成直後の自動サインイン状態のまま
// セッションを開始させず、必ず通常のログインを通す。
func (s *Service) Login(ctx context.Context, conn *identity.Conn, username, password string) (*Result, error) {
	if username == "" || password == "" {
		return nil, model.NewValidationError("ユーザー名とパスワードは必須です")
	}

	email := identity.DeriveEmail(username, s.config.Domain)

	ident, err := conn.SignIn(ctx, email, password)
	if err == nil {
		s.record(OutcomeSuccess)
		slog.Info("ログインしました", slog.String("uid", ident.UID))
		return &Result{Identity: ident}, nil
	}

	if !errors.Is(err, identity.ErrInvalidCredential) {
		s.record(OutcomeError)
		slog.Error("認証サービスでエラーが発生しました", slog.String("error", err.Error()))
		return nil, model.NewRemoteError()
	}

	if !s.isBootstrapCredential(username, password) {
		s.record(OutcomeInvalid)
		return nil, model.NewInvalidCredentialError()
	}

	return s.bootstrap(ctx, conn, email, password)
}

// Logout は接続をサインアウトさせる。ログアウト前にデータ購読を破棄する
// 責務はsession.Managerが持つため、このメソッドは直接呼ばず
// Manager.Logoutを経由すること。
func (s *Service) Logout(ctx context.Context, conn *identity.Conn) error {
	return conn.SignOut(ctx)
}

// isBootstrapCredential は資格情報が初期管理者のものと一致するかを判定する。
// ユーザー名は識別子導出と同じく大文字小文字を区別しない。パスワードは区別する。
func (s *Service) isBootstrapCredential(username, password string) bool {
	if s.config.BootstrapAdminName == "" {
		return false
	}
	return strings.EqualFold(username, s.config.BootstrapAdminName) &&
		password == s.config.BootstrapAdminPassword
}

// bootstrap は初期管理者アカウントとプロファイルを作成する。
func (s *Service) bootstrap(ctx context.Context, conn *identity.Conn, email, password string) (*Result, error) {
	ident, err := conn.SignUp(ctx, email, password)
	if errors.Is(err, identity.ErrEmailInUse) {
		// アカウントは存在する。つまり元の失敗はパスワード誤り
		s.record(OutcomeInvalid)
		return nil, model.NewInvalidCredentialError()
	}
	if err != nil {
		s.record(OutcomeError)
		slog.Error("初期管理者の作成に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewRemoteError()
	}

	admin := model.User{
		ID:        ident.UID,
		Name:      s.config.BootstrapAdminName,
		Role:      model.RoleAdmin,
		AvatarURL: s.avatarFor(ident.UID),
	}
	if err := s.store.Set(ctx, store.CollectionUsers, admin.ID, store.EncodeUser(admin)); err != nil {
		s.record(OutcomeError)
		slog.Error("初期管理者プロファイルの作成に失敗しました",
			slog.String("uid", admin.ID),
			slog.String("error", err.Error()),
		)
		// プロファイルのないアカウントが残るが、次回のログインで
		// プロファイル不在として検出される
		if signOutErr := conn.SignOut(ctx); signOutErr != nil {
			slog.Warn("サインアウトに失敗しました", slog.String("error", signOutErr.Error()))
		}
		return nil, model.NewRemoteError()
	}

	if err := conn.SignOut(ctx); err != nil {
		slog.Warn("サインアウトに失敗しました", slog.String("error", err.Error()))
	}

	s.record(OutcomeBootstrapped)
	slog.Info("初期管理者を作成しました", slog.String("uid", admin.ID))
	return &Result{Bootstrapped: true}, nil
}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(outcome)
	}
}
