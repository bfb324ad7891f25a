// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/agenda/internal/identity"
	"github.com/hitoshi/agenda/internal/model"
	"github.com/hitoshi/agenda/internal/store"
)

// AvatarURLFor は新規ユーザーのアバターURLを生成する。
// securityパッケージのAvatarGuardが実装する。
type AvatarURLFor func(uid string) string

// Service はユーザー管理のサービス層。
// ユーザーの追加・削除のビジネスロジックを提供する。
// 認証アカウントの作成はProviderに直接依頼するため、操作中の管理者の
// 認証状態（Conn）には一切影響しない。
type Service struct {
	provider  identity.Provider
	store     store.Store
	domain    string // 認証用識別子の内部ドメイン
	avatarFor AvatarURLFor
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(provider identity.Provider, s store.Store, domain string, avatarFor AvatarURLFor) *Service {
	return &Service{
		provider:  provider,
		store:     s,
		domain:    domain,
		avatarFor: avatarFor,
	}
}

// AddUser は新規ユーザーを追加する。管理者専用操作。
//
// 認証アカウントの作成に成功した後、同じUIDでプロファイルドキュメントを
// 作成する。作成されるユーザーのロールは常に一般ユーザー。
// usersには現在のユーザー一覧（ミラー内容）を渡す。同名ユーザーは
// リモート呼び出しの前にローカルで拒否される。
func (s *Service) AddUser(ctx context.Context, actor *model.User, users []model.User, name, password string) (*model.User, error) {
	if actor == nil || actor.Role != model.RoleAdmin {
		return nil, model.NewAdminOnlyError()
	}
	if name == "" {
		return nil, model.NewValidationError("ユーザー名は必須です")
	}
	if password == "" {
		return nil, model.NewValidationError("パスワードは必須です")
	}
	for _, u := range users {
		if strings.EqualFold(u.Name, name) {
			return nil, model.NewDuplicateUserError(name)
		}
	}

	email := identity.DeriveEmail(name, s.domain)
	ident, err := s.provider.CreateAccount(ctx, email, password)
	if errors.Is(err, identity.ErrEmailInUse) {
		// プロファイルを失った孤児アカウントも含めて同名は拒否する
		return nil, model.NewDuplicateUserError(name)
	}
	if errors.Is(err, identity.ErrWeakPassword) {
		return nil, model.NewWeakPasswordError()
	}
	if err != nil {
		slog.Error("ユーザーアカウントの作成に失敗しました",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, model.NewRemoteError()
	}

	created := model.User{
		ID:        ident.UID,
		Name:      name,
		Role:      model.RoleUser,
		AvatarURL: s.avatarFor(ident.UID),
	}
	if err := s.store.Set(ctx, store.CollectionUsers, created.ID, store.EncodeUser(created)); err != nil {
		// アカウントは作成済みだがプロファイルがない状態。
		// このアカウントでログインしてもプロファイル不在として強制サインアウトされる。
		slog.Error("ユーザープロファイルの作成に失敗しました",
			slog.String("uid", created.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ユーザープロファイルの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを追加しました",
		slog.String("uid", created.ID),
		slog.String("name", name),
	)
	return &created, nil
}

// RemoveUser はユーザーのプロファイルを削除する。管理者専用操作。
//
// ガード条件（いずれもリモート呼び出しの前にローカルで検証する）:
//   - 最後の1人のユーザーは削除できない
//   - ログイン中の自分自身は削除できない
//
// 認証アカウント自体は削除されない。プロファイルを失ったアカウントは
// 次回ログイン時にプロファイル不在として強制サインアウトされる。
func (s *Service) RemoveUser(ctx context.Context, actor *model.User, users []model.User, targetUID string) error {
	if actor == nil || actor.Role != model.RoleAdmin {
		return model.NewAdminOnlyError()
	}
	if targetUID == "" {
		return model.NewValidationError("ユーザーIDは必須です")
	}
	if len(users) <= 1 {
		return model.NewLastUserError()
	}
	if targetUID == actor.ID {
		return model.NewSelfRemovalError()
	}

	found := false
	for _, u := range users {
		if u.ID == targetUID {
			found = true
			break
		}
	}
	if !found {
		return model.NewUserNotFoundError(targetUID)
	}

	if err := s.store.Delete(ctx, store.CollectionUsers, targetUID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("ユーザーを削除しました",
		slog.String("uid", targetUID),
		slog.String("by", actor.ID),
	)
	return nil
}
