// Package mirror はリモートコレクションの常時最新なローカル複製を提供する。
//
// ミラーはリモートストアの購読を1本張り、通知されるコレクション全体の
// スナップショットでローカル内容を丸ごと置き換える。差分マージは一切
// 行わないため、ローカル内容は常に「最後に受信した通知」と完全に一致し、
// 部分更新状態になることはない。
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/agenda/internal/store"
)

// Recorder はミラーの観測イベントを記録するインターフェース。
// metricsパッケージのCollectorが実装する。nilの場合は記録しない。
type Recorder interface {
	RecordSnapshotApplied(collection string, size int)
}

// Mirror はエンティティ型Tのコレクションのローカル複製。
// StartからStopまでの間、onUpdateはリモートの変化を反映して0回以上呼ばれる。
type Mirror[T any] struct {
	store      store.Store
	collection string
	decode     func(store.Document) (T, error)
	onUpdate   func([]T)
	onError    func(error)
	recorder   Recorder

	mu          sync.Mutex
	items       []T
	generation  int
	unsubscribe store.Unsubscribe
}

// New はMirrorを生成する。まだ購読は開始しない。
// decodeに失敗したドキュメントはスナップショットから除外され、警告ログが残る。
// onErrorには購読の転送・権限エラーが渡される。
func New[T any](
	s store.Store,
	collection string,
	decode func(store.Document) (T, error),
	onUpdate func([]T),
	onError func(error),
	recorder Recorder,
) *Mirror[T] {
	return &Mirror[T]{
		store:      s,
		collection: collection,
		decode:     decode,
		onUpdate:   onUpdate,
		onError:    onError,
		recorder:   recorder,
	}
}

// Start はリモートコレクションの購読を開始する。
// 二重開始はエラー。Stop後に再度Startすることはできる。
func (m *Mirror[T]) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.unsubscribe != nil {
		m.mu.Unlock()
		return fmt.Errorf("mirror: %s already started", m.collection)
	}
	gen := m.generation
	m.mu.Unlock()

	unsubscribe, err := m.store.Subscribe(ctx, m.collection,
		func(snapshot store.Snapshot) { m.apply(gen, snapshot) },
		func(err error) { m.fail(gen, err) },
	)
	if err != nil {
		return fmt.Errorf("mirror: failed to subscribe %s: %w", m.collection, err)
	}

	m.mu.Lock()
	if m.generation != gen {
		// 購読確立中にStopが呼ばれた
		m.mu.Unlock()
		unsubscribe()
		return nil
	}
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	return nil
}

// Stop は購読を解除する。冪等であり、未開始でも複数回でも安全。
// 解除後に届いた配送中のコールバックは世代チェックにより無視される。
func (m *Mirror[T]) Stop() {
	m.mu.Lock()
	m.generation++
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.items = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Items は現在のローカル内容のコピーを返す。
func (m *Mirror[T]) Items() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, len(m.items))
	copy(out, m.items)
	return out
}

// apply はスナップショットでローカル内容を丸ごと置き換え、onUpdateを呼ぶ。
// Stop後に届いた配送は世代が一致しないため何もしない。
func (m *Mirror[T]) apply(gen int, snapshot store.Snapshot) {
	items := make([]T, 0, len(snapshot))
	for _, doc := range snapshot {
		item, err := m.decode(doc)
		if err != nil {
			slog.Warn("mirror: skipping undecodable document",
				slog.String("collection", m.collection),
				slog.String("error", err.Error()),
			)
			continue
		}
		items = append(items, item)
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.items = items
	notify := make([]T, len(items))
	copy(notify, items)
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.RecordSnapshotApplied(m.collection, len(notify))
	}
	if m.onUpdate != nil {
		m.onUpdate(notify)
	}
}

// fail は購読エラーをonErrorへ伝える。Stop後に届いたエラーは無視する。
func (m *Mirror[T]) fail(gen int, err error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if m.onError != nil {
		m.onError(err)
	}
}
