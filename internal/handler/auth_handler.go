package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/agenda/internal/auth"
	"github.com/hitoshi/agenda/internal/identity"
	"github.com/hitoshi/agenda/internal/middleware"
	"github.com/hitoshi/agenda/internal/model"
)

const sessionCookieName = "session_id"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, conn *identity.Conn, username, password string) (*auth.Result, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	registry *Registry
	codec    *middleware.SessionCodec
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, registry *Registry, codec *middleware.SessionCodec, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		registry: registry,
		codec:    codec,
		config:   config,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse はログインレスポンスのボディ。
type loginResponse struct {
	State        string        `json:"state"`
	Bootstrapped bool          `json:"bootstrapped,omitempty"`
	Profile      *userResponse `json:"profile,omitempty"`
}

// Login はユーザー名とパスワードでログインする。
// POST /auth/login
//
// 成功時は新しいHTTPセッションを生成し、セッションCookieを設定する。
// 既存のセッションCookieが有効な場合は先に破棄される（再ログインは常に新規セッション）。
// 初期管理者が自動作成された場合はセッションを生成せず、再ログインを要求する。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを読み取れません"))
		return
	}

	// 既存セッションがあれば破棄する
	if id, ok := h.sessionIDFromCookie(r); ok {
		h.registry.Remove(r.Context(), id)
	}

	sess, err := h.registry.Create(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), sess.Conn, req.Username, req.Password)
	if err != nil {
		h.registry.Remove(r.Context(), sess.ID)
		handleServiceError(w, err)
		return
	}

	if result.Bootstrapped {
		// 作成のみ。サインイン状態は持ち帰らせず、通常のログインをやり直させる
		h.registry.Remove(r.Context(), sess.ID)
		h.clearSessionCookie(w)
		writeJSONResponse(w, http.StatusCreated, loginResponse{
			State:        "unauthenticated",
			Bootstrapped: true,
		})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    h.codec.Encode(sess.ID),
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSONResponse(w, http.StatusOK, h.sessionState(sess))
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.sessionIDFromCookie(r); ok {
		if sess := h.registry.Get(id); sess != nil {
			// データ購読の破棄がサインアウト通知より先に行われる
			sess.Manager.Logout(r.Context())
		}
		h.registry.Remove(r.Context(), id)
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のセッション状態とプロファイルを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionIDFromCookie(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	sess := h.registry.Get(id)
	if sess == nil {
		writeUnauthorized(w)
		return
	}
	sess.touch()

	writeJSONResponse(w, http.StatusOK, h.sessionState(sess))
}

// sessionIDFromCookie は署名付きCookieからセッションIDを取り出す。
func (h *AuthHandler) sessionIDFromCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return h.codec.Decode(cookie.Value)
}

// sessionState はセッションの状態レスポンスを組み立てる。
func (h *AuthHandler) sessionState(sess *Session) loginResponse {
	resp := loginResponse{State: string(sess.Manager.State())}
	if profile := sess.Manager.Profile(); profile != nil {
		ur := toUserResponse(*profile)
		resp.Profile = &ur
	}
	return resp
}

// clearSessionCookie はセッションCookieを破棄する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
