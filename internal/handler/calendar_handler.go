package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/agenda/internal/calendar"
	"github.com/hitoshi/agenda/internal/model"
)

// CalendarHandler はカレンダービューのHTTPハンドラー。
// ビューはセッションのミラー内容と選択状態から毎回導出する純粋な投影で、
// ハンドラー自体は状態を持たない。
type CalendarHandler struct {
	registry *Registry
	now      func() time.Time
}

// NewCalendarHandler はCalendarHandlerを生成する。
func NewCalendarHandler(registry *Registry) *CalendarHandler {
	return &CalendarHandler{
		registry: registry,
		now:      time.Now,
	}
}

// dayCellResponse はカレンダーグリッドの1セルのAPIレスポンス表現。
type dayCellResponse struct {
	Date         string `json:"date"`
	InMonth      bool   `json:"inMonth"`
	Today        bool   `json:"today"`
	TaskCount    int    `json:"taskCount"`
	AllCompleted bool   `json:"allCompleted"`
}

// taskViewResponse は日別詳細の1タスクのAPIレスポンス表現。
type taskViewResponse struct {
	taskResponse
	ClientName    string `json:"clientName"`
	ClientColor   string `json:"clientColor"`
	CreatedByName string `json:"createdByName"`
}

// calendarResponse はカレンダービューのAPIレスポンス。
type calendarResponse struct {
	Year  int                `json:"year"`
	Month int                `json:"month"`
	Cells []dayCellResponse  `json:"cells"`
	Day   []taskViewResponse `json:"day,omitempty"`
}

// Get はカレンダービューを返す。
// GET /api/calendar?year=2026&month=8&filter=all&clientId=xxx&date=2026-08-29
//
// year・month省略時は現在の月。filter省略時はall。
// clientIdパラメータ省略時はセッションの顧客フィルタ選択を使用する。
// dateを指定するとその日の日別詳細が含まれる。
func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromRequest(h.registry, r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	now := h.now()
	today := model.DateOf(now)

	query := r.URL.Query()

	year := today.Year
	if raw := query.Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("yearが不正です"))
			return
		}
		year = parsed
	}

	month := today.Month
	if raw := query.Get("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("monthが不正です"))
			return
		}
		month = time.Month(parsed)
	}

	filter := calendar.FilterAll
	if raw := query.Get("filter"); raw != "" {
		filter = calendar.CompletionFilter(raw)
		if !filter.IsValid() {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("filterが不正です"))
			return
		}
	}

	clientID := sess.Manager.SelectedClient()
	if query.Has("clientId") {
		clientID = query.Get("clientId")
	}

	var selectedDate model.Date
	if raw := query.Get("date"); raw != "" {
		parsed, err := model.ParseDate(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDateError(raw))
			return
		}
		selectedDate = parsed
	}

	vm := calendar.Project(calendar.Input{
		Tasks:        sess.Manager.Tasks(),
		Clients:      sess.Manager.Clients(),
		Users:        sess.Manager.Users(),
		Year:         year,
		Month:        month,
		Filter:       filter,
		ClientID:     clientID,
		Today:        today,
		SelectedDate: selectedDate,
	})

	writeJSONResponse(w, http.StatusOK, toCalendarResponse(vm))
}

// toCalendarResponse は投影結果をAPIレスポンスに変換する。
func toCalendarResponse(vm calendar.ViewModel) calendarResponse {
	resp := calendarResponse{
		Year:  vm.Year,
		Month: int(vm.Month),
		Cells: make([]dayCellResponse, len(vm.Cells)),
	}
	for i, cell := range vm.Cells {
		resp.Cells[i] = dayCellResponse{
			Date:         cell.Date.String(),
			InMonth:      cell.InMonth,
			Today:        cell.Today,
			TaskCount:    cell.TaskCount,
			AllCompleted: cell.AllCompleted,
		}
	}
	for _, view := range vm.Day {
		resp.Day = append(resp.Day, taskViewResponse{
			taskResponse:  toTaskResponse(view.Task),
			ClientName:    view.ClientName,
			ClientColor:   view.ClientColor.Value,
			CreatedByName: view.CreatedBy,
		})
	}
	return resp
}
