package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agenda/internal/model"
	"github.com/hitoshi/agenda/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	AddTask(ctx context.Context, in task.AddTaskInput) (string, error)
	UpdateTask(ctx context.Context, taskID string, in task.AddTaskInput) error
	SetCompleted(ctx context.Context, taskID string, completed bool) error
	DeleteTask(ctx context.Context, taskID string) error
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service  TaskServiceInterface
	registry *Registry
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface, registry *Registry) *TaskHandler {
	return &TaskHandler{
		service:  service,
		registry: registry,
	}
}

// List はタスク一覧を返す。内容はセッションのミラーから読む。
// GET /api/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	tasks := sess.Manager.Tasks()
	results := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		results[i] = toTaskResponse(t)
	}
	writeJSONResponse(w, http.StatusOK, results)
}

// taskRequest はタスク追加・更新リクエストのボディ。
type taskRequest struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ClientID    string `json:"clientId"`
}

// Create は新規タスクを追加する。作成者は現在のログインユーザー。
// POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}
	profile := sess.Manager.Profile()
	if profile == nil {
		writeUnauthorized(w)
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを読み取れません"))
		return
	}

	id, err := h.service.AddTask(r.Context(), task.AddTaskInput{
		Date:        req.Date,
		Title:       req.Title,
		Description: req.Description,
		ClientID:    req.ClientID,
		CreatedBy:   profile.ID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]string{"id": id})
}

// Update はタスクの内容を更新する。完了状態は変更しない。
// PUT /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := sessionFromRequest(h.registry, r); !ok {
		writeUnauthorized(w)
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを読み取れません"))
		return
	}

	err := h.service.UpdateTask(r.Context(), chi.URLParam(r, "id"), task.AddTaskInput{
		Date:        req.Date,
		Title:       req.Title,
		Description: req.Description,
		ClientID:    req.ClientID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// completedRequest は完了状態更新リクエストのボディ。
type completedRequest struct {
	Completed bool `json:"completed"`
}

// SetCompleted はタスクの完了状態を設定する。
// PATCH /api/tasks/{id}/completed
func (h *TaskHandler) SetCompleted(w http.ResponseWriter, r *http.Request) {
	if _, ok := sessionFromRequest(h.registry, r); !ok {
		writeUnauthorized(w)
		return
	}

	var req completedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディを読み取れません"))
		return
	}

	if err := h.service.SetCompleted(r.Context(), chi.URLParam(r, "id"), req.Completed); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete はタスクを削除する。
// DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := sessionFromRequest(h.registry, r); !ok {
		writeUnauthorized(w)
		return
	}

	if err := h.service.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
