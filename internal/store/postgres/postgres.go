// Package postgres はドキュメントストアのPostgreSQL実装を提供する。
//
// ドキュメントは単一のdocumentsテーブルにコレクション名付きで格納され、
// 変更はトリガーからのLISTEN/NOTIFYで購読者へ伝搬する。通知のペイロードは
// コレクション名のみで、受信側はコレクション全体を再取得してスナップショット
// として配送する。差分を配らないため、通知の取りこぼしや順序入れ替わりが
// あっても次の再取得で必ず収束する。
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/agenda/internal/store"
)

// notifyChannel はドキュメント変更通知のLISTEN/NOTIFYチャネル名。
// マイグレーションのトリガー定義と一致させる。
const notifyChannel = "document_change"

// LatencyRecorder は書き込みバッチコミットのレイテンシを記録するインターフェース。
// metricsパッケージのCollectorが実装する。nilの場合は記録しない。
type LatencyRecorder interface {
	RecordBatchCommitLatency(duration time.Duration)
}

// Postgres はstore.StoreのPostgreSQL実装。
type Postgres struct {
	db       *sql.DB
	listener *pq.Listener
	recorder LatencyRecorder

	mu        sync.Mutex
	subs      map[int]*subscription
	nextSubID int
	closed    bool
	done      chan struct{}
}

// subscription は1つの購読を表す。
// deliverMuが配送を直列化し、closedが解除後の新規配送を抑止する。
// closedはロックではなくアトミックフラグで判定する。購読者がコールバックの
// 中から自分自身を解除してもデッドロックしない。
type subscription struct {
	deliverMu  sync.Mutex
	collection string
	onSnapshot func(store.Snapshot)
	onError    func(error)
	closed     atomic.Bool
}

// New はPostgresストアを生成し、変更通知の受信を開始する。
// databaseURLはdbを開いたものと同じ接続URLを渡す（pq.Listenerは独自接続を張る）。
func New(db *sql.DB, databaseURL string, recorder LatencyRecorder) (*Postgres, error) {
	listener := pq.NewListener(databaseURL, 10*time.Second, time.Minute,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				slog.Warn("postgres: listener event",
					slog.Int("event", int(event)),
					slog.String("error", err.Error()),
				)
			}
		})

	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}

	p := &Postgres{
		db:       db,
		listener: listener,
		recorder: recorder,
		subs:     make(map[int]*subscription),
		done:     make(chan struct{}),
	}
	go p.listenLoop()
	return p, nil
}

// Close は通知の受信を停止する。既存の購読には以後何も配送されない。
func (p *Postgres) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	return p.listener.Close()
}

// listenLoop は変更通知を受信し、該当コレクションの購読者へ再取得した
// スナップショットを配送する。nil通知（再接続）は全コレクションの
// 再取得として扱う。通知の取りこぼし対策として、pq.Listenerの推奨に従い
// 一定時間通知がなければ接続の生存確認を行う。
func (p *Postgres) listenLoop() {
	for {
		select {
		case <-p.done:
			return
		case n := <-p.listener.Notify:
			if n == nil {
				// 再接続が発生した。取りこぼした可能性のある全購読を更新する
				p.refreshAll()
				continue
			}
			p.refresh(n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := p.listener.Ping(); err != nil {
					slog.Warn("postgres: listener ping failed", slog.String("error", err.Error()))
				}
			}()
		}
	}
}

// refresh は指定コレクションを再取得し、購読者へ配送する。
func (p *Postgres) refresh(collection string) {
	p.mu.Lock()
	var targets []*subscription
	for _, sub := range p.subs {
		if sub.collection == collection {
			targets = append(targets, sub)
		}
	}
	p.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	snapshot, err := p.querySnapshot(context.Background(), collection)
	for _, sub := range targets {
		sub.deliver(snapshot, err)
	}
}

// refreshAll は購読中の全コレクションを再取得する。
func (p *Postgres) refreshAll() {
	p.mu.Lock()
	collections := make(map[string]bool)
	for _, sub := range p.subs {
		collections[sub.collection] = true
	}
	p.mu.Unlock()

	for collection := range collections {
		p.refresh(collection)
	}
}

// Subscribe はコレクション全体の購読を開始し、初回スナップショットを同期配送する。
func (p *Postgres) Subscribe(ctx context.Context, collection string, onSnapshot func(store.Snapshot), onError func(error)) (store.Unsubscribe, error) {
	snapshot, err := p.querySnapshot(ctx, collection)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		collection: collection,
		onSnapshot: onSnapshot,
		onError:    onError,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("postgres: store is closed")
	}
	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = sub
	p.mu.Unlock()

	sub.deliver(snapshot, nil)

	unsubscribe := func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
		sub.closed.Store(true)
	}
	return unsubscribe, nil
}

// GetByField はフィールド等価条件で1回限りの問い合わせを行う。
func (p *Postgres) GetByField(ctx context.Context, collection, field, value string) ([]store.Document, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, fields FROM documents WHERE collection = $1 AND fields ->> $2 = $3`,
		collection, field, value,
	)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query documents by field: %w", err))
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// Add は新規ドキュメントを追加し、採番されたIDを返す。
func (p *Postgres) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.New().String()
	if err := p.Set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Set は指定IDのドキュメントを作成または全置換する。
func (p *Postgres) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, fields)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()`,
		collection, id, encoded,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to set document: %w", err))
	}
	return nil
}

// Update は指定IDのドキュメントの一部フィールドを更新する。
// JSONBの連結で既存フィールドへマージする。
func (p *Postgres) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	result, err := p.db.ExecContext(ctx,
		`UPDATE documents SET fields = fields || $3, updated_at = now()
		 WHERE collection = $1 AND id = $2`,
		collection, id, encoded,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update document: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("postgres: %s/%s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

// Delete は指定IDのドキュメントを削除する。存在しない場合もエラーにしない。
func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to delete document: %w", err))
	}
	return nil
}

// NewBatch はアトミックな書き込みバッチを生成する。
func (p *Postgres) NewBatch() store.WriteBatch {
	return &batch{store: p}
}

type batchOp struct {
	collection string
	id         string
}

type batch struct {
	store *Postgres
	ops   []batchOp
}

// Delete は削除操作をバッチに追加する。
func (b *batch) Delete(collection, id string) {
	b.ops = append(b.ops, batchOp{collection: collection, id: id})
}

// Commit はバッチ全体を1トランザクションで適用する。
// トランザクション内の各削除はトリガー通知を発生させるが、通知は
// コミット時にまとめて配送されるため、購読者が部分適用状態を
// 観測することはない。
func (b *batch) Commit(ctx context.Context) error {
	started := time.Now()

	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("failed to begin batch transaction: %w", err))
	}

	for _, op := range b.ops {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2`,
			op.collection, op.id,
		); err != nil {
			tx.Rollback()
			return mapError(fmt.Errorf("failed to delete %s/%s in batch: %w", op.collection, op.id, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("failed to commit batch: %w", err))
	}

	if b.store.recorder != nil {
		b.store.recorder.RecordBatchCommitLatency(time.Since(started))
	}
	return nil
}

// querySnapshot はコレクション全体を読み取る。
func (p *Postgres) querySnapshot(ctx context.Context, collection string) (store.Snapshot, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, fields FROM documents WHERE collection = $1`,
		collection,
	)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query snapshot: %w", err))
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	return store.Snapshot(docs), nil
}

// scanDocuments は(id, fields)の行をDocumentに変換する。
func scanDocuments(rows *sql.Rows) ([]store.Document, error) {
	var docs []store.Document
	for rows.Next() {
		var (
			id      string
			encoded []byte
		)
		if err := rows.Scan(&id, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		fields := make(map[string]any)
		if err := json.Unmarshal(encoded, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields of %s: %w", id, err)
		}
		docs = append(docs, store.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// mapError はPostgreSQLの権限エラーをErrPermissionDeniedにマップする。
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "insufficient_privilege" {
		return store.ErrPermissionDenied
	}
	return err
}

// deliver はスナップショットまたはエラーを購読者へ配送する。
// 解除済みの購読には何も配送しない。
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

// compile-time interface check
var _ store.Store = (*Postgres)(nil)
