// Package task はタスク管理のドメインロジックを提供する。
package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/agenda/internal/model"
	"github.com/hitoshi/agenda/internal/store"
)

// DescriptionSanitizer はタスク説明文のサニタイズインターフェース。
// securityパッケージのContentSanitizerが実装する。nilの場合はそのまま保存する。
type DescriptionSanitizer interface {
	Sanitize(raw string) string
}

// Service はタスク管理のサービス層。
type Service struct {
	store     store.Store
	sanitizer DescriptionSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(s store.Store, sanitizer DescriptionSanitizer) *Service {
	return &Service{store: s, sanitizer: sanitizer}
}

// AddTaskInput はタスク追加の入力。
type AddTaskInput struct {
	Date        string // YYYY-MM-DD
	Title       string
	Description string
	ClientID    string
	CreatedBy   string // 作成者のユーザーID
}

// AddTask は新規タスクを追加し、採番されたIDを返す。
// タイトル・日付・顧客IDは必須。説明文は保存前にサニタイズされる。
func (s *Service) AddTask(ctx context.Context, in AddTaskInput) (string, error) {
	if in.Title == "" {
		return "", model.NewValidationError("タイトルは必須です")
	}
	if in.ClientID == "" {
		return "", model.NewValidationError("顧客の指定は必須です")
	}
	date, err := model.ParseDate(in.Date)
	if err != nil {
		return "", model.NewInvalidDateError(in.Date)
	}

	description := in.Description
	if s.sanitizer != nil {
		description = s.sanitizer.Sanitize(description)
	}

	id, err := s.store.Add(ctx, store.CollectionTasks, store.EncodeTask(model.Task{
		Date:        date,
		Title:       in.Title,
		Description: description,
		ClientID:    in.ClientID,
		Completed:   false,
		CreatedBy:   in.CreatedBy,
	}))
	if err != nil {
		return "", fmt.Errorf("タスクの追加に失敗しました: %w", err)
	}
	return id, nil
}

// SetCompleted はタスクの完了状態を設定する。
// 呼び出し側はミラーから現在の状態を知っているため、トグルではなく目標値を受け取る。
// 同じ操作が2回届いても結果は変わらない。
func (s *Service) SetCompleted(ctx context.Context, taskID string, completed bool) error {
	if taskID == "" {
		return model.NewValidationError("タスクIDは必須です")
	}

	err := s.store.Update(ctx, store.CollectionTasks, taskID, map[string]any{
		store.FieldCompleted: completed,
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.NewTaskNotFoundError(taskID)
	}
	if err != nil {
		return fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateTask はタスクの内容を更新する。完了状態は変更しない。
func (s *Service) UpdateTask(ctx context.Context, taskID string, in AddTaskInput) error {
	if taskID == "" {
		return model.NewValidationError("タスクIDは必須です")
	}
	if in.Title == "" {
		return model.NewValidationError("タイトルは必須です")
	}
	if in.ClientID == "" {
		return model.NewValidationError("顧客の指定は必須です")
	}
	date, err := model.ParseDate(in.Date)
	if err != nil {
		return model.NewInvalidDateError(in.Date)
	}

	description := in.Description
	if s.sanitizer != nil {
		description = s.sanitizer.Sanitize(description)
	}

	err = s.store.Update(ctx, store.CollectionTasks, taskID, map[string]any{
		store.FieldDate:        date.String(),
		store.FieldTitle:       in.Title,
		store.FieldDescription: description,
		store.FieldClientID:    in.ClientID,
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.NewTaskNotFoundError(taskID)
	}
	if err != nil {
		return fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteTask はタスクを削除する。
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	if taskID == "" {
		return model.NewValidationError("タスクIDは必須です")
	}
	if err := s.store.Delete(ctx, store.CollectionTasks, taskID); err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	return nil
}
