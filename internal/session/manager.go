// Package session は認証状態のライフサイクルとデータ購読の管理を提供する。
//
// Managerは認証サービスのIdentity変更通知を受けて、Identityに対応する
// プロファイルドキュメントの監視と、3つのコレクションミラー
// （users, clients, tasks）の起動・停止を行う。プロファイル購読と
// ミラー購読は常に高々1組しか存在せず、Identityの切り替え時には必ず
// 旧Identityの購読を完全に破棄してから新しい購読を確立する。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/agenda/internal/identity"
	"github.com/hitoshi/agenda/internal/mirror"
	"github.com/hitoshi/agenda/internal/model"
	"github.com/hitoshi/agenda/internal/store"
)

// State はセッションの状態を表す。
type State string

const (
	// StateUnauthenticated は未認証状態。
	StateUnauthenticated State = "unauthenticated"
	// StateAuthenticating はIdentityは確立したがプロファイル解決待ちの状態。
	StateAuthenticating State = "authenticating"
	// StateAuthenticated はプロファイル解決済みの状態。ミラーが稼働する。
	StateAuthenticated State = "authenticated"
	// StateProfileMissing はIdentityに対応するプロファイルが存在しない状態。
	// プロファイルのないIdentityは孤児として扱い、強制サインアウトする。
	StateProfileMissing State = "profile_missing"
)

// Manager は1つの認証接続に紐づくセッションライフサイクルを管理する。
// 生成後にStartで監視を開始し、Closeで全購読を破棄する。
// グローバルなシングルトンは持たず、所有者が明示的に生成・破棄する。
type Manager struct {
	conn     *identity.Conn
	store    store.Store
	recorder mirror.Recorder
	onChange func() // 状態またはミラー内容の変化通知（ビュー層の再描画契機）

	mu               sync.Mutex
	state            State
	profile          *model.User
	selectedClientID string

	identUnsub   identity.Unsubscribe
	profileUnsub store.Unsubscribe
	profileGen   int

	users   *mirror.Mirror[model.User]
	clients *mirror.Mirror[model.Client]
	tasks   *mirror.Mirror[model.Task]
}

// NewManager はManagerを生成する。まだ何も購読しない。
// onChangeはnilでもよい。
func NewManager(conn *identity.Conn, s store.Store, recorder mirror.Recorder, onChange func()) *Manager {
	m := &Manager{
		conn:     conn,
		store:    s,
		recorder: recorder,
		onChange: onChange,
		state:    StateUnauthenticated,
	}

	m.users = mirror.New(s, store.CollectionUsers, store.DecodeUser,
		func([]model.User) { m.notifyChange() }, m.handleMirrorError, recorder)
	m.clients = mirror.New(s, store.CollectionClients, store.DecodeClient,
		func([]model.Client) { m.notifyChange() }, m.handleMirrorError, recorder)
	m.tasks = mirror.New(s, store.CollectionTasks, store.DecodeTask,
		func([]model.Task) { m.notifyChange() }, m.handleMirrorError, recorder)

	return m
}

// Start はIdentity変更通知の監視を開始する。
// 登録時点の認証状態（通常は未認証）が即時反映される。
func (m *Manager) Start(ctx context.Context) {
	unsub := m.conn.OnIdentityChange(func(ident *identity.Identity) {
		m.handleIdentity(ctx, ident)
	})
	m.mu.Lock()
	m.identUnsub = unsub
	m.mu.Unlock()
}

// Close は全購読を破棄し、セッションを終了する。冪等。
// ミラーを先に停止してからサインアウトを通知する。順序が逆だと、
// 認証が先に切れて飛行中の購読が権限エラーを受ける可能性がある。
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	identUnsub := m.identUnsub
	m.identUnsub = nil
	m.mu.Unlock()

	if identUnsub != nil {
		identUnsub()
	}
	m.teardownData()
	if err := m.conn.SignOut(ctx); err != nil {
		slog.Warn("session: sign-out on close failed", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	m.state = StateUnauthenticated
	m.profile = nil
	m.selectedClientID = ""
	m.mu.Unlock()
}

// Logout は明示的なログアウトを実行する。
// データ購読の破棄がサインアウト通知より先に行われる。
func (m *Manager) Logout(ctx context.Context) {
	m.teardownData()

	m.mu.Lock()
	m.selectedClientID = ""
	m.mu.Unlock()

	if err := m.conn.SignOut(ctx); err != nil {
		slog.Warn("session: sign-out failed", slog.String("error", err.Error()))
	}
}

// State は現在のセッション状態を返す。
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Profile は現在のユーザープロファイルを返す。Authenticated以外ではnil。
func (m *Manager) Profile() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil
	}
	clone := *m.profile
	return &clone
}

// Users は稼働中のusersミラーの現在内容を返す。
func (m *Manager) Users() []model.User { return m.users.Items() }

// Clients は稼働中のclientsミラーの現在内容を返す。
func (m *Manager) Clients() []model.Client { return m.clients.Items() }

// Tasks は稼働中のtasksミラーの現在内容を返す。
func (m *Manager) Tasks() []model.Task { return m.tasks.Items() }

// SelectClient は顧客フィルタの選択を切り替える。空文字列は選択解除。
func (m *Manager) SelectClient(clientID string) {
	m.mu.Lock()
	m.selectedClientID = clientID
	m.mu.Unlock()
	m.notifyChange()
}

// SelectedClient は現在選択中の顧客IDを返す。未選択なら空文字列。
func (m *Manager) SelectedClient() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedClientID
}

// ClearSelectionIf は選択中の顧客が指定IDと一致する場合のみ選択を解除する。
// カスケード削除の一部として呼ばれ、削除と同一の論理操作内で選択が消える。
func (m *Manager) ClearSelectionIf(clientID string) {
	m.mu.Lock()
	cleared := false
	if m.selectedClientID == clientID {
		m.selectedClientID = ""
		cleared = true
	}
	m.mu.Unlock()
	if cleared {
		m.notifyChange()
	}
}

// handleIdentity はIdentity変更通知を処理する。
// nil（サインアウト）なら全データ購読を破棄して未認証へ、
// 非nilならプロファイル監視を張り直してAuthenticatingへ遷移する。
func (m *Manager) handleIdentity(ctx context.Context, ident *identity.Identity) {
	// 旧Identityのプロファイル監視を必ず先に破棄する（リスナーのリーク防止）
	m.stopProfileWatch()

	if ident == nil {
		m.teardownData()
		m.mu.Lock()
		m.state = StateUnauthenticated
		m.profile = nil
		m.selectedClientID = ""
		m.mu.Unlock()
		m.notifyChange()
		return
	}

	m.mu.Lock()
	m.state = StateAuthenticating
	m.profile = nil
	gen := m.profileGen
	m.mu.Unlock()
	m.notifyChange()

	uid := ident.UID
	unsub, err := m.store.Subscribe(ctx, store.CollectionUsers,
		func(snapshot store.Snapshot) { m.handleProfileSnapshot(ctx, gen, uid, snapshot) },
		func(err error) { m.handleProfileError(ctx, gen, err) },
	)
	if err != nil {
		// 購読確立自体の失敗もプロファイル不在と同等に扱う
		slog.Error("session: profile subscription failed",
			slog.String("uid", uid),
			slog.String("error", err.Error()),
		)
		m.forceSignOut(ctx)
		return
	}

	m.mu.Lock()
	if m.profileGen != gen {
		// 購読確立中にIdentityが再度切り替わった
		m.mu.Unlock()
		unsub()
		return
	}
	m.profileUnsub = unsub
	m.mu.Unlock()
}

// handleProfileSnapshot はusersコレクションのスナップショットから
// 対象Identityのプロファイルを解決する。
func (m *Manager) handleProfileSnapshot(ctx context.Context, gen int, uid string, snapshot store.Snapshot) {
	var profile *model.User
	for _, doc := range snapshot {
		if doc.ID != uid {
			continue
		}
		decoded, err := store.DecodeUser(doc)
		if err != nil {
			slog.Warn("session: undecodable profile document",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
			break
		}
		profile = &decoded
		break
	}

	m.mu.Lock()
	if m.profileGen != gen {
		m.mu.Unlock()
		return
	}

	if profile == nil {
		// Authenticated中にプロファイルが消えた場合も同じ扱い:
		// プロファイルのないIdentityは無効であり、黙ってログイン状態を続けない
		m.state = StateProfileMissing
		m.profile = nil
		m.mu.Unlock()
		slog.Warn("session: identity has no profile, forcing sign-out", slog.String("uid", uid))
		m.forceSignOut(ctx)
		return
	}

	wasAuthenticated := m.state == StateAuthenticated
	m.state = StateAuthenticated
	m.profile = profile
	m.mu.Unlock()

	if !wasAuthenticated {
		m.startMirrors(ctx)
	}
	m.notifyChange()
}

// handleProfileError はプロファイル購読の転送・権限エラーを処理する。
// 「見つからない」ではない失敗も、プロファイル不在と同一に扱い強制サインアウトする。
func (m *Manager) handleProfileError(ctx context.Context, gen int, err error) {
	m.mu.Lock()
	if m.profileGen != gen {
		m.mu.Unlock()
		return
	}
	m.state = StateProfileMissing
	m.profile = nil
	m.mu.Unlock()

	slog.Error("session: profile subscription error, forcing sign-out", slog.String("error", err.Error()))
	m.forceSignOut(ctx)
}

// handleMirrorError はミラー購読のエラーを処理する。
// 権限エラーはセッション終了と同義として強制サインアウトし、
// それ以外は一時的な失敗としてログに残すだけでローカル状態は変更しない。
func (m *Manager) handleMirrorError(err error) {
	if errors.Is(err, store.ErrPermissionDenied) {
		slog.Warn("session: mirror lost authorization, forcing sign-out")
		m.forceSignOut(context.Background())
		return
	}
	slog.Warn("session: transient mirror error", slog.String("error", err.Error()))
}

// forceSignOut はデータ購読を破棄してからサインアウトを通知する。
func (m *Manager) forceSignOut(ctx context.Context) {
	m.stopProfileWatch()
	m.teardownData()
	if err := m.conn.SignOut(ctx); err != nil {
		slog.Warn("session: forced sign-out failed", slog.String("error", err.Error()))
	}
}

// startMirrors は3つのコレクションミラーを起動する。
func (m *Manager) startMirrors(ctx context.Context) {
	for collection, start := range map[string]func(context.Context) error{
		store.CollectionUsers:   m.users.Start,
		store.CollectionClients: m.clients.Start,
		store.CollectionTasks:   m.tasks.Start,
	} {
		if err := start(ctx); err != nil {
			slog.Error("session: failed to start mirror",
				slog.String("collection", collection),
				slog.String("error", err.Error()),
			)
		}
	}
}

// teardownData は3つのミラーを停止する。冪等。
func (m *Manager) teardownData() {
	m.users.Stop()
	m.clients.Stop()
	m.tasks.Stop()
}

// stopProfileWatch はプロファイル購読を破棄し、世代を進める。
// 世代が進むことで、解除後に届く飛行中のスナップショットは無視される。
func (m *Manager) stopProfileWatch() {
	m.mu.Lock()
	m.profileGen++
	unsub := m.profileUnsub
	m.profileUnsub = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (m *Manager) notifyChange() {
	if m.onChange != nil {
		m.onChange()
	}
}
