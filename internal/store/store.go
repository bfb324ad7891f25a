// Package store は外部ドキュメントストアの抽象インターフェースを定義する。
//
// ストアはコレクション単位の読み取り購読と、複数ドキュメントにまたがる
// アトミックな書き込みバッチを提供する。購読は差分パッチではなく常に
// コレクション全体のスナップショットを通知する。ローカル側のミラーは
// スナップショットを丸ごと置き換えるだけでよく、部分更新状態が観測される
// ことはない。
package store

import (
	"context"
	"errors"
)

// コレクション名。ドキュメントIDはエンティティIDと一致する。
const (
	CollectionUsers   = "users"
	CollectionClients = "clients"
	CollectionTasks   = "tasks"
)

// ErrPermissionDenied は認証切れ・権限不足による拒否を表す。
// この種の失敗はセッション終了と同義として扱われる（ミラー停止と強制サインアウト）。
var ErrPermissionDenied = errors.New("store: permission denied")

// ErrNotFound はUpdate対象のドキュメントが存在しないことを表す。
// Deleteは存在しないIDを許容するが、Updateは対象の実在を要求する。
var ErrNotFound = errors.New("store: document not found")

// Document はストア上の1ドキュメントを表す。
// FieldsはJSON互換の値（string, bool, float64）のみを保持する。
type Document struct {
	ID     string
	Fields map[string]any
}

// Snapshot はコレクション全体のある時点の完全な内容。
type Snapshot []Document

// Unsubscribe は購読を解除する。複数回呼んでも安全。
type Unsubscribe func()

// Store はドキュメントストアへの接続を表す。
// すべての操作は非ブロッキングで、購読コールバックは購読ごとに
// ストアが通知した順序で直列に配送される。コレクション間の順序保証はない。
type Store interface {
	// Subscribe はコレクション全体の購読を開始する。
	// 購読確立後の初回スナップショットを含め、変更のたびにonSnapshotへ
	// コレクションの完全な内容が渡される。転送・権限エラーはonErrorに渡される。
	Subscribe(ctx context.Context, collection string, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error)

	// GetByField はフィールド等価条件で1回限りの問い合わせを行う。
	GetByField(ctx context.Context, collection, field, value string) ([]Document, error)

	// Add は新規ドキュメントを追加し、採番されたIDを返す。
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)

	// Set は指定IDのドキュメントを作成または全置換する。
	Set(ctx context.Context, collection, id string, fields map[string]any) error

	// Update は指定IDのドキュメントの一部フィールドを更新する。
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete は指定IDのドキュメントを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, collection, id string) error

	// NewBatch はアトミックな書き込みバッチを生成する。
	// Commitは全操作の適用または全体の失敗のどちらかで、部分適用は起こらない。
	NewBatch() WriteBatch
}

// WriteBatch は複数ドキュメントへのアトミックな書き込み単位。
type WriteBatch interface {
	// Delete は削除操作をバッチに追加する。
	Delete(collection, id string)
	// Commit はバッチ全体をアトミックに適用する。
	Commit(ctx context.Context) error
}
