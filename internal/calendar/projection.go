// Package calendar はミラー内容とUI選択状態から導出するカレンダービューを提供する。
//
// 投影は入力のみから決まる純粋関数であり、呼び出し間で状態を蓄積しない。
// ミラー更新のたびに丸ごと再計算する前提で設計されている。タスクと顧客の
// ミラーはコレクション間の順序保証がないため、タスクが参照する顧客が
// 一時的にミラーに存在しないことがある。その場合は「不明な顧客」として
// 扱い、エラーにはしない。
package calendar

import (
	"time"

	"github.com/hitoshi/agenda/internal/model"
)

// GridCells はカレンダーグリッドのセル数。6週 × 7曜日で、
// 月の長さや開始曜日に関わらず常に月全体をタイルできる。
const GridCells = 42

// CompletionFilter はタスクの完了状態フィルタを表す。
type CompletionFilter string

const (
	// FilterAll は全タスクを通す恒等フィルタ。
	FilterAll CompletionFilter = "all"
	// FilterCompleted は完了タスクのみを通す。
	FilterCompleted CompletionFilter = "completed"
	// FilterIncomplete は未完了タスクのみを通す。
	FilterIncomplete CompletionFilter = "incomplete"
)

// IsValid はフィルタが定義済みのいずれかであるかを検証する。
func (f CompletionFilter) IsValid() bool {
	return f == FilterAll || f == FilterCompleted || f == FilterIncomplete
}

// Input は投影の入力。同一のInputに対して投影は常に同一の結果を返す。
type Input struct {
	Tasks   []model.Task
	Clients []model.Client
	Users   []model.User

	Year         int
	Month        time.Month
	Filter       CompletionFilter
	ClientID     string // 顧客フィルタ。空文字列なら全顧客
	Today        model.Date
	SelectedDate model.Date // 日別詳細を表示する日。ゼロ値なら詳細なし
}

// DayCell はグリッドの1セル。
type DayCell struct {
	Date         model.Date
	InMonth      bool // 表示中の月に属するか
	Today        bool
	TaskCount    int
	AllCompleted bool // その日の全タスクが完了済み（タスクが1件以上ある場合のみtrue）
}

// TaskView は日別詳細に表示する1タスク。顧客・作成者は名前解決済み。
type TaskView struct {
	Task        model.Task
	ClientName  string
	ClientColor model.Color
	CreatedBy   string
}

// ViewModel は投影結果。
type ViewModel struct {
	Year  int
	Month time.Month
	Cells []DayCell  // 常にGridCells個。先頭は日曜、末尾は土曜
	Day   []TaskView // SelectedDateの日別詳細。未完了が先、同状態内は元の順
}

// unknownClientName は顧客ミラーにまだ存在しないClientIDの表示名。
const unknownClientName = "不明な顧客"

// Project はミラー内容と選択状態からカレンダービューを導出する。
func Project(in Input) ViewModel {
	filtered := FilterTasks(in.Tasks, in.Filter, in.ClientID)
	buckets := BucketByDate(filtered)

	vm := ViewModel{
		Year:  in.Year,
		Month: in.Month,
		Cells: Grid(in.Year, in.Month, in.Today, buckets),
	}
	if !in.SelectedDate.IsZero() {
		vm.Day = DayDetail(buckets[in.SelectedDate], in.Clients, in.Users)
	}
	return vm
}

// FilterTasks は完了状態フィルタと顧客フィルタを適用する。
// 1パスで両条件を評価し、元のスライスは変更しない。
func FilterTasks(tasks []model.Task, filter CompletionFilter, clientID string) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if clientID != "" && t.ClientID != clientID {
			continue
		}
		switch filter {
		case FilterCompleted:
			if !t.Completed {
				continue
			}
		case FilterIncomplete:
			if t.Completed {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// BucketByDate はタスクを暦日ごとにグループ化する。O(n)の1パス。
// 各バケット内の順序は入力順を保つ。
func BucketByDate(tasks []model.Task) map[model.Date][]model.Task {
	buckets := make(map[model.Date][]model.Task)
	for _, t := range tasks {
		buckets[t.Date] = append(buckets[t.Date], t)
	}
	return buckets
}

// Grid は指定月の6週42セルのグリッドを生成する。
// 先頭セルは月初以前で最も近い日曜（月初が日曜ならその日）。
func Grid(year int, month time.Month, today model.Date, buckets map[model.Date][]model.Task) []DayCell {
	first := model.Date{Year: year, Month: month, Day: 1}
	start := first.AddDays(-int(first.Weekday()))

	cells := make([]DayCell, GridCells)
	day := start
	for i := range cells {
		tasks := buckets[day]
		allCompleted := len(tasks) > 0
		for _, t := range tasks {
			if !t.Completed {
				allCompleted = false
				break
			}
		}
		cells[i] = DayCell{
			Date:         day,
			InMonth:      day.Month == month && day.Year == year,
			Today:        day == today,
			TaskCount:    len(tasks),
			AllCompleted: allCompleted,
		}
		day = day.AddDays(1)
	}
	return cells
}

// DayDetail は1日分のタスクを表示順に並べ、顧客名・作成者名を解決する。
// 未完了タスクが完了タスクより先に並び、同じ完了状態の中では
// ミラー上の相対順序を保つ（安定、第2キーなし）。
func DayDetail(tasks []model.Task, clients []model.Client, users []model.User) []TaskView {
	clientByID := make(map[string]model.Client, len(clients))
	for _, c := range clients {
		clientByID[c.ID] = c
	}
	userByID := make(map[string]model.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	ordered := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Completed {
			ordered = append(ordered, t)
		}
	}
	for _, t := range tasks {
		if t.Completed {
			ordered = append(ordered, t)
		}
	}

	views := make([]TaskView, 0, len(ordered))
	for _, t := range ordered {
		view := TaskView{Task: t, ClientName: unknownClientName}
		if c, ok := clientByID[t.ClientID]; ok {
			view.ClientName = c.Name
			view.ClientColor = c.Color
		}
		if u, ok := userByID[t.CreatedBy]; ok {
			view.CreatedBy = u.Name
		}
		views = append(views, view)
	}
	return views
}
