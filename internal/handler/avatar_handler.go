package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agenda/internal/model"
)

// AvatarGuardInterface はアバターハンドラーが必要とするガード機能のインターフェース。
type AvatarGuardInterface interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// maxAvatarBytes はプロキシ取得するアバター画像の最大サイズ。
const maxAvatarBytes = 1 << 20 // 1MiB

// AvatarHandler はアバター画像をサーバー側で代理取得するHTTPハンドラー。
// フロントエンドから外部画像サービスへ直接アクセスさせないために使用する。
// 取得先URLはプロファイルに保存されたものに限られ、取得前の静的検証と
// SSRF防止付きクライアントの両方で内部ネットワークへの誘導を防ぐ。
type AvatarHandler struct {
	registry *Registry
	guard    AvatarGuardInterface
	client   *http.Client
}

// NewAvatarHandler はAvatarHandlerを生成する。
func NewAvatarHandler(registry *Registry, guard AvatarGuardInterface, timeout time.Duration) *AvatarHandler {
	return &AvatarHandler{
		registry: registry,
		guard:    guard,
		client:   guard.NewSafeClient(timeout),
	}
}

// Get は指定ユーザーのアバター画像を代理取得して返す。
// GET /api/users/{id}/avatar
func (h *AvatarHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	targetUID := chi.URLParam(r, "id")
	var avatarURL string
	for _, u := range sess.Manager.Users() {
		if u.ID == targetUID {
			avatarURL = u.AvatarURL
			break
		}
	}
	if avatarURL == "" {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(targetUID))
		return
	}

	if err := h.guard.ValidateURL(avatarURL); err != nil {
		slog.Warn("アバターURLの検証に失敗しました",
			slog.String("uid", targetUID),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewRemoteError())
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, avatarURL, nil)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		slog.Warn("アバター画像の取得に失敗しました",
			slog.String("uid", targetUID),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewRemoteError())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewRemoteError())
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	io.Copy(w, io.LimitReader(resp.Body, maxAvatarBytes))
}
