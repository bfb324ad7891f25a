package task

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/agenda/internal/model"
	"github.com/hitoshi/agenda/internal/store"
	"github.com/hitoshi/agenda/internal/store/memory"
)

// sanitizerMock はSanitizeへの入力を記録し、マーカーを付けて返すモック。
type sanitizerMock struct {
	inputs []string
}

func (s *sanitizerMock) Sanitize(raw string) string {
	s.inputs = append(s.inputs, raw)
	return "clean:" + raw
}

func assertAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError with code %s", err, code)
	}
	if apiErr.Code != code {
		t.Fatalf("error code = %s, want %s", apiErr.Code, code)
	}
}

func validInput() AddTaskInput {
	return AddTaskInput{
		Date:        "2026-08-29",
		Title:       "visita",
		Description: "controllo <b>mensile</b>",
		ClientID:    "c1",
		CreatedBy:   "u1",
	}
}

func getTask(t *testing.T, m *memory.Memory, clientID string) store.Document {
	t.Helper()
	docs, err := m.GetByField(context.Background(), store.CollectionTasks, store.FieldClientID, clientID)
	if err != nil {
		t.Fatalf("GetByField failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("task count = %d, want 1", len(docs))
	}
	return docs[0]
}

func TestAddTask_StoresSanitizedTask(t *testing.T) {
	m := memory.New()
	san := &sanitizerMock{}
	svc := NewService(m, san)

	id, err := svc.AddTask(context.Background(), validInput())
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if id == "" {
		t.Fatal("AddTask should return the assigned ID")
	}

	doc := getTask(t, m, "c1")
	if doc.Fields[store.FieldTitle] != "visita" {
		t.Errorf("title = %v, want visita", doc.Fields[store.FieldTitle])
	}
	// 説明文はサニタイザを通してから保存される
	if doc.Fields[store.FieldDescription] != "clean:controllo <b>mensile</b>" {
		t.Errorf("description = %v, want sanitized value", doc.Fields[store.FieldDescription])
	}
	if len(san.inputs) != 1 {
		t.Errorf("sanitizer called %d times, want 1", len(san.inputs))
	}
	// 新規タスクは常に未完了
	if doc.Fields[store.FieldCompleted] != false {
		t.Errorf("completed = %v, want false", doc.Fields[store.FieldCompleted])
	}
	if doc.Fields[store.FieldCreatedBy] != "u1" {
		t.Errorf("createdBy = %v, want u1", doc.Fields[store.FieldCreatedBy])
	}
}

func TestAddTask_NilSanitizerStoresRaw(t *testing.T) {
	m := memory.New()
	svc := NewService(m, nil)

	if _, err := svc.AddTask(context.Background(), validInput()); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	doc := getTask(t, m, "c1")
	if doc.Fields[store.FieldDescription] != "controllo <b>mensile</b>" {
		t.Errorf("description = %v, want the raw value", doc.Fields[store.FieldDescription])
	}
}

func TestAddTask_Validation(t *testing.T) {
	m := memory.New()
	svc := NewService(m, nil)

	tests := []struct {
		name   string
		mutate func(*AddTaskInput)
		code   string
	}{
		{"タイトルなし", func(in *AddTaskInput) { in.Title = "" }, model.ErrCodeValidation},
		{"顧客なし", func(in *AddTaskInput) { in.ClientID = "" }, model.ErrCodeValidation},
		{"日付なし", func(in *AddTaskInput) { in.Date = "" }, model.ErrCodeInvalidDate},
		{"日付不正", func(in *AddTaskInput) { in.Date = "29/08/2026" }, model.ErrCodeInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.AddTask(context.Background(), in)
			assertAPIError(t, err, tt.code)
		})
	}
}

func TestSetCompleted_SetsTargetValue(t *testing.T) {
	m := memory.New()
	m.Seed(store.CollectionTasks, "t1", map[string]any{
		store.FieldDate:      "2026-08-29",
		store.FieldTitle:     "visita",
		store.FieldClientID:  "c1",
		store.FieldCompleted: false,
	})
	svc := NewService(m, nil)

	if err := svc.SetCompleted(context.Background(), "t1", true); err != nil {
		t.Fatalf("SetCompleted failed: %v", err)
	}
	if doc := getTask(t, m, "c1"); doc.Fields[store.FieldCompleted] != true {
		t.Error("completed should be true")
	}

	// 目標値方式なので同じ操作が2回届いても結果は変わらない
	if err := svc.SetCompleted(context.Background(), "t1", true); err != nil {
		t.Fatalf("second SetCompleted failed: %v", err)
	}
	if doc := getTask(t, m, "c1"); doc.Fields[store.FieldCompleted] != true {
		t.Error("completed should remain true")
	}

	if err := svc.SetCompleted(context.Background(), "t1", false); err != nil {
		t.Fatalf("SetCompleted(false) failed: %v", err)
	}
	if doc := getTask(t, m, "c1"); doc.Fields[store.FieldCompleted] != false {
		t.Error("completed should be false again")
	}
}

func TestSetCompleted_MissingTask(t *testing.T) {
	m := memory.New()
	svc := NewService(m, nil)

	err := svc.SetCompleted(context.Background(), "nope", true)
	assertAPIError(t, err, model.ErrCodeTaskNotFound)

	err = svc.SetCompleted(context.Background(), "", true)
	assertAPIError(t, err, model.ErrCodeValidation)
}

func TestUpdateTask_LeavesCompletedUntouched(t *testing.T) {
	m := memory.New()
	m.Seed(store.CollectionTasks, "t1", map[string]any{
		store.FieldDate:      "2026-08-29",
		store.FieldTitle:     "visita",
		store.FieldClientID:  "c1",
		store.FieldCompleted: true,
	})
	san := &sanitizerMock{}
	svc := NewService(m, san)

	in := validInput()
	in.Title = "consegna"
	in.Date = "2026-09-01"
	if err := svc.UpdateTask(context.Background(), "t1", in); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	doc := getTask(t, m, "c1")
	if doc.Fields[store.FieldTitle] != "consegna" {
		t.Errorf("title = %v, want consegna", doc.Fields[store.FieldTitle])
	}
	if doc.Fields[store.FieldDate] != "2026-09-01" {
		t.Errorf("date = %v, want 2026-09-01", doc.Fields[store.FieldDate])
	}
	if doc.Fields[store.FieldDescription] != "clean:controllo <b>mensile</b>" {
		t.Errorf("description = %v, want sanitized value", doc.Fields[store.FieldDescription])
	}
	// 完了状態は内容更新では変化しない
	if doc.Fields[store.FieldCompleted] != true {
		t.Error("completed must not change on content update")
	}
}

func TestUpdateTask_Validation(t *testing.T) {
	m := memory.New()
	svc := NewService(m, nil)

	err := svc.UpdateTask(context.Background(), "", validInput())
	assertAPIError(t, err, model.ErrCodeValidation)

	in := validInput()
	in.Title = ""
	err = svc.UpdateTask(context.Background(), "t1", in)
	assertAPIError(t, err, model.ErrCodeValidation)

	in = validInput()
	in.Date = "not-a-date"
	err = svc.UpdateTask(context.Background(), "t1", in)
	assertAPIError(t, err, model.ErrCodeInvalidDate)
}

func TestUpdateTask_MissingTask(t *testing.T) {
	m := memory.New()
	svc := NewService(m, nil)

	err := svc.UpdateTask(context.Background(), "nope", validInput())
	assertAPIError(t, err, model.ErrCodeTaskNotFound)
}

func TestDeleteTask(t *testing.T) {
	m := memory.New()
	m.Seed(store.CollectionTasks, "t1", map[string]any{
		store.FieldDate:     "2026-08-29",
		store.FieldTitle:    "visita",
		store.FieldClientID: "c1",
	})
	svc := NewService(m, nil)

	if err := svc.DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	docs, _ := m.GetByField(context.Background(), store.CollectionTasks, store.FieldClientID, "c1")
	if len(docs) != 0 {
		t.Error("task should be deleted")
	}

	// 既に存在しないIDの削除もエラーにしない
	if err := svc.DeleteTask(context.Background(), "t1"); err != nil {
		t.Errorf("deleting a missing task should succeed: %v", err)
	}

	err := svc.DeleteTask(context.Background(), "")
	assertAPIError(t, err, model.ErrCodeValidation)
}
