// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/agenda/internal/identity"
	"github.com/hitoshi/agenda/internal/middleware"
	"github.com/hitoshi/agenda/internal/mirror"
	"github.com/hitoshi/agenda/internal/session"
	"github.com/hitoshi/agenda/internal/store"
)

// Session は1つのHTTPセッションを表す。
// 認証接続とセッションマネージャーを1組ずつ所有し、ブラウザ1接続分の
// 認証状態・購読状態がHTTPセッションごとに独立する。
type Session struct {
	ID      string
	Conn    *identity.Conn
	Manager *session.Manager

	mu         sync.Mutex
	lastAccess time.Time
}

// touch は最終アクセス時刻を現在時刻に更新する。
func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

// idle は最終アクセスからの経過時間を返す。
func (s *Session) idle(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastAccess)
}

// SessionGauge は稼働中セッション数を記録するインターフェース。
// metricsパッケージのCollectorが実装する。nilの場合は記録しない。
type SessionGauge interface {
	SetActiveSessions(count int)
}

// Registry は稼働中のHTTPセッションを管理する。
// アイドル時間がTTLを超えたセッションはバックグラウンドのスイープで
// 破棄される。破棄はManager.Closeを経由するため、購読のリークは起きない。
type Registry struct {
	provider identity.Provider
	store    store.Store
	recorder mirror.Recorder
	gauge    SessionGauge
	idleTTL  time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry はRegistryを生成する。まだスイープは開始しない。
func NewRegistry(provider identity.Provider, s store.Store, recorder mirror.Recorder, gauge SessionGauge, idleTTL time.Duration) *Registry {
	return &Registry{
		provider: provider,
		store:    s,
		recorder: recorder,
		gauge:    gauge,
		idleTTL:  idleTTL,
		sessions: make(map[string]*Session),
	}
}

// Create は新しいHTTPセッションを生成し、マネージャーを起動する。
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	conn := identity.NewConn(r.provider)
	sess := &Session{
		ID:         id,
		Conn:       conn,
		lastAccess: time.Now(),
	}
	sess.Manager = session.NewManager(conn, r.store, r.recorder, nil)
	sess.Manager.Start(ctx)

	r.mu.Lock()
	r.sessions[id] = sess
	count := len(r.sessions)
	r.mu.Unlock()

	r.setGauge(count)
	return sess, nil
}

// Get は指定IDのセッションを返す。存在しない場合はnil。
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Touch はセッションが存在すれば最終アクセス時刻を更新してtrueを返す。
// middleware.SessionToucherを実装する。
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	sess := r.sessions[id]
	r.mu.Unlock()

	if sess == nil {
		return false
	}
	sess.touch()
	return true
}

// Remove はセッションを破棄する。購読とマネージャーも閉じる。
func (r *Registry) Remove(ctx context.Context, id string) {
	r.mu.Lock()
	sess := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	if sess != nil {
		sess.Manager.Close(ctx)
	}
	r.setGauge(count)
}

// Len は稼働中のセッション数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run はアイドルセッションのスイープループを実行する。
// ctxのキャンセルで停止し、残存する全セッションを破棄してから返る。
func (r *Registry) Run(ctx context.Context, sweepInterval time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(ctx)
		case <-ctx.Done():
			r.closeAll()
			return
		}
	}
}

// sweep はアイドル時間がTTLを超えたセッションを破棄する。
func (r *Registry) sweep(ctx context.Context) {
	now := time.Now()

	r.mu.Lock()
	var expired []*Session
	for id, sess := range r.sessions {
		if sess.idle(now) > r.idleTTL {
			expired = append(expired, sess)
			delete(r.sessions, id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, sess := range expired {
		slog.Info("アイドルセッションを破棄します", slog.String("session_id", sess.ID))
		sess.Manager.Close(ctx)
	}
	if len(expired) > 0 {
		r.setGauge(count)
	}
}

// closeAll は全セッションを破棄する。シャットダウン時に使用する。
func (r *Registry) closeAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Manager.Close(context.Background())
	}
	r.setGauge(0)
}

func (r *Registry) setGauge(count int) {
	if r.gauge != nil {
		r.gauge.SetActiveSessions(count)
	}
}

// sessionFromRequest はセッションミドルウェアを通過したリクエストから
// セッションを解決する。見つからない場合は(nil, false)を返す。
func sessionFromRequest(reg *Registry, r *http.Request) (*Session, bool) {
	id, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		return nil, false
	}
	sess := reg.Get(id)
	return sess, sess != nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
