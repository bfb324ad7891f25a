// Package model はドメインモデルを定義する。
package model

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleAdmin は管理者ロール。ユーザーの追加・削除が可能。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザーロール。
	RoleUser Role = "user"
)

// IsValid はロールが定義済みのいずれかであるかを検証する。
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User はワークスペース内のユーザープロファイルを表す。
// IDは外部認証サービスのIdentity IDと一致する（1 Identity = 1 プロファイル）。
// 初期セットアップ後は常に1件以上のプロファイルが存在しなければならない。
type User struct {
	ID        string
	Name      string
	Role      Role
	AvatarURL string
}
