package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agenda/internal/client"
	"github.com/hitoshi/agenda/internal/model"
)

// ClientServiceInterface は顧客ハンドラーが必要とするサービスインターフェース。
type ClientServiceInterface interface {
	AddClient(ctx context.Context, name, colorRaw string, existingCount int) (string, error)
	UpdateClient(ctx context.Context, clientID, name, colorRaw string) error
	// DeleteClient は顧客と関連タスクをカスケード削除する。
	DeleteClient(ctx context.Context, clientID string, selection client.SelectionClearer) error
}

// ClientHandler は顧客管理のHTTPハンドラー。顧客フィルタの選択もここで扱う。
type ClientHandler struct {
	service  ClientServiceInterface
	registry *Registry
}

// NewClientHandler はClientHandlerを生成する。
func NewClientHandler(service ClientServiceInterface, registry *Registry) *ClientHandler {
	return &ClientHandler{
		service:  service,
		registry: registry,
	}
}

// List は顧客一覧を返す。内容はセッションのミラーから読む。
// GET /api/clients
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	clients := sess.Manager.Clients()
	results := make([]clientResponse, len(clients))
	for i, c := range clients {
		results[i] = toClientResponse(c)
	}
	writeJSONResponse(w, http.StatusOK, results)
}

// clientRequest は顧客追加・更新リクエストのボディ。
type clientRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Create は新規顧客を追加する。
// POST /api/clients
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを読み取れません"))
		return
	}

	id, err := h.service.AddClient(r.Context(), req.Name, req.Color, len(sess.Manager.Clients()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]string{"id": id})
}

// Update は顧客の名前と色を更新する。
// PUT /api/clients/{id}
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := sessionFromRequest(h.registry, r); !ok {
		writeUnauthorized(w)
		return
	}

	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを読み取れません"))
		return
	}

	if err := h.service.UpdateClient(r.Context(), chi.URLParam(r, "id"), req.Name, req.Color); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete は顧客と関連タスクをカスケード削除する。
// 顧客フィルタが対象顧客を指していた場合、削除と同時に解除される。
// DELETE /api/clients/{id}
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	if err := h.service.DeleteClient(r.Context(), chi.URLParam(r, "id"), sess.Manager); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// selectionRequest は顧客フィルタ選択リクエストのボディ。
type selectionRequest struct {
	ClientID string `json:"clientId"`
}

// Select は顧客フィルタを設定する。
// PUT /api/selection
func (h *ClientHandler) Select(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを読み取れません"))
		return
	}

	sess.Manager.SelectClient(req.ClientID)
	w.WriteHeader(http.StatusNoContent)
}

// ClearSelection は顧客フィルタを解除する。
// DELETE /api/selection
func (h *ClientHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	sess.Manager.SelectClient("")
	w.WriteHeader(http.StatusNoContent)
}

// GetSelection は現在の顧客フィルタを返す。
// GET /api/selection
func (h *ClientHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	writeJSONResponse(w, http.StatusOK, selectionRequest{ClientID: sess.Manager.SelectedClient()})
}
