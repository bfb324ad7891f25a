package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agenda/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// AddUser は新規ユーザーを追加する。管理者専用。
	AddUser(ctx context.Context, actor *model.User, users []model.User, name, password string) (*model.User, error)
	// RemoveUser はユーザーのプロファイルを削除する。管理者専用。
	RemoveUser(ctx context.Context, actor *model.User, users []model.User, targetUID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service  UserServiceInterface
	registry *Registry
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, registry *Registry) *UserHandler {
	return &UserHandler{
		service:  service,
		registry: registry,
	}
}

// List はユーザー一覧を返す。内容はセッションのミラーから読む。
// GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	users := sess.Manager.Users()
	results := make([]userResponse, len(users))
	for i, u := range users {
		results[i] = toUserResponse(u)
	}
	writeJSONResponse(w, http.StatusOK, results)
}

// createUserRequest はユーザー追加リクエストのボディ。
type createUserRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Create は新規ユーザーを追加する。
// POST /api/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを読み取れません"))
		return
	}

	created, err := h.service.AddUser(r.Context(), sess.Manager.Profile(), sess.Manager.Users(), req.Name, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, toUserResponse(*created))
}

// Delete はユーザーを削除する。
// DELETE /api/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	targetUID := chi.URLParam(r, "id")
	if err := h.service.RemoveUser(r.Context(), sess.Manager.Profile(), sess.Manager.Users(), targetUID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
