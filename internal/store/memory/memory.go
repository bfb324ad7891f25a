// Package memory はドキュメントストアのインメモリ実装を提供する。
//
// テストおよびローカル起動モード用のバックエンド。購読は変更のたびに
// コレクション全体のスナップショットを同期的に配送する。配送は購読ごとに
// 直列で、同一コレクション内ではストアへの適用順と一致する。
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hitoshi/agenda/internal/store"
)

// Memory はstore.Storeのインメモリ実装。
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any // collection -> id -> fields
	subs        map[int]*subscription
	nextSubID   int
	authorized  bool
}

// subscription は1つの購読を表す。
// deliverMuが配送を直列化し、closedが解除後の新規配送を抑止する。
// closedはロックではなくアトミックフラグで判定する。購読者がコールバックの
// 中から自分自身を解除しても（強制サインアウト時に起こる）デッドロックしない。
type subscription struct {
	deliverMu  sync.Mutex
	collection string
	onSnapshot func(store.Snapshot)
	onError    func(error)
	closed     atomic.Bool
}

// New は空のMemoryストアを生成する。初期状態ではアクセス許可されている。
func New() *Memory {
	return &Memory{
		collections: make(map[string]map[string]map[string]any),
		subs:        make(map[int]*subscription),
		authorized:  true,
	}
}

// SetAuthorized はストアへのアクセス許可状態を切り替える。
// falseに切り替えると、既存の全購読へ権限エラーが通知され、
// 以後の操作はErrPermissionDeniedで拒否される。
// 認証切れ時のリモートストアの挙動をテストで再現するために使用する。
func (m *Memory) SetAuthorized(authorized bool) {
	m.mu.Lock()
	m.authorized = authorized
	var targets []*subscription
	if !authorized {
		for _, sub := range m.subs {
			targets = append(targets, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(nil, store.ErrPermissionDenied)
	}
}

// Seed はスナップショット通知なしでドキュメントを直接投入する。テスト用。
func (m *Memory) Seed(collection, id string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCollection(collection)[id] = copyFields(fields)
}

// Subscribe はコレクション全体の購読を開始し、初回スナップショットを同期配送する。
func (m *Memory) Subscribe(ctx context.Context, collection string, onSnapshot func(store.Snapshot), onError func(error)) (store.Unsubscribe, error) {
	m.mu.Lock()
	if !m.authorized {
		m.mu.Unlock()
		return nil, store.ErrPermissionDenied
	}

	sub := &subscription{
		collection: collection,
		onSnapshot: onSnapshot,
		onError:    onError,
	}
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = sub
	snapshot := m.snapshotLocked(collection)
	m.mu.Unlock()

	sub.deliver(snapshot, nil)

	unsubscribe := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		sub.closed.Store(true)
	}
	return unsubscribe, nil
}

// GetByField はフィールド等価条件で1回限りの問い合わせを行う。
func (m *Memory) GetByField(ctx context.Context, collection, field, value string) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authorized {
		return nil, store.ErrPermissionDenied
	}

	var docs []store.Document
	for id, fields := range m.collections[collection] {
		if v, ok := fields[field].(string); ok && v == value {
			docs = append(docs, store.Document{ID: id, Fields: copyFields(fields)})
		}
	}
	return docs, nil
}

// Add は新規ドキュメントを追加し、採番されたIDを返す。
func (m *Memory) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.New().String()
	if err := m.Set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Set は指定IDのドキュメントを作成または全置換する。
func (m *Memory) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	if !m.authorized {
		m.mu.Unlock()
		return store.ErrPermissionDenied
	}
	m.ensureCollection(collection)[id] = copyFields(fields)
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

// Update は指定IDのドキュメントの一部フィールドを更新する。
func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	if !m.authorized {
		m.mu.Unlock()
		return store.ErrPermissionDenied
	}
	existing, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("memory: %s/%s: %w", collection, id, store.ErrNotFound)
	}
	for k, v := range fields {
		existing[k] = v
	}
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

// Delete は指定IDのドキュメントを削除する。存在しない場合もエラーにしない。
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	if !m.authorized {
		m.mu.Unlock()
		return store.ErrPermissionDenied
	}
	delete(m.collections[collection], id)
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

// NewBatch はアトミックな書き込みバッチを生成する。
func (m *Memory) NewBatch() store.WriteBatch {
	return &batch{store: m}
}

// batchOp はバッチ内の1操作を表す。現状は削除のみ。
type batchOp struct {
	collection string
	id         string
}

type batch struct {
	store *Memory
	ops   []batchOp
}

// Delete は削除操作をバッチに追加する。
func (b *batch) Delete(collection, id string) {
	b.ops = append(b.ops, batchOp{collection: collection, id: id})
}

// Commit はバッチ全体をアトミックに適用する。
// 全操作をロック内で適用してから、影響を受けたコレクションごとに1回だけ通知する。
func (b *batch) Commit(ctx context.Context) error {
	b.store.mu.Lock()
	if !b.store.authorized {
		b.store.mu.Unlock()
		return store.ErrPermissionDenied
	}
	affected := make(map[string]bool)
	for _, op := range b.ops {
		delete(b.store.collections[op.collection], op.id)
		affected[op.collection] = true
	}
	b.store.mu.Unlock()

	for collection := range affected {
		b.store.notify(collection)
	}
	return nil
}

// notify は指定コレクションの全購読者へ現在のスナップショットを配送する。
func (m *Memory) notify(collection string) {
	m.mu.Lock()
	snapshot := m.snapshotLocked(collection)
	var targets []*subscription
	for _, sub := range m.subs {
		if sub.collection == collection {
			targets = append(targets, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(snapshot, nil)
	}
}

// snapshotLocked は呼び出し時点のコレクション全体のコピーを返す。要ロック。
func (m *Memory) snapshotLocked(collection string) store.Snapshot {
	docs := m.collections[collection]
	snapshot := make(store.Snapshot, 0, len(docs))
	for id, fields := range docs {
		snapshot = append(snapshot, store.Document{ID: id, Fields: copyFields(fields)})
	}
	return snapshot
}

func (m *Memory) ensureCollection(collection string) map[string]map[string]any {
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]map[string]any)
	}
	return m.collections[collection]
}

// deliver はスナップショットまたはエラーを購読者へ配送する。
// 解除済みの購読には何も配送しない。解除と同時に飛行中だった配送が
// 1回だけ届くことはあるが、購読者側の世代チェックで無害化される。
func (s *subscription) deliver(snapshot store.Snapshot, err error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.closed.Load() {
		return
	}
	if err != nil {
		if s.onError != nil {
			s.onError(err)
		}
		return
	}
	s.onSnapshot(snapshot)
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// compile-time interface check
var _ store.Store = (*Memory)(nil)
