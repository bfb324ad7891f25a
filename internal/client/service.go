// Package client は顧客管理のドメインロジックを提供する。
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/agenda/internal/model"
	"github.com/hitoshi/agenda/internal/store"
)

// SelectionClearer は顧客フィルタの条件付き解除インターフェース。
// session.Managerが実装する。
type SelectionClearer interface {
	ClearSelectionIf(clientID string)
}

// Recorder はカスケード削除の観測イベントを記録するインターフェース。
// metricsパッケージのCollectorが実装する。nilの場合は記録しない。
type Recorder interface {
	RecordCascadeDelete(taskCount int)
}

// Service は顧客管理のサービス層。
// 顧客の追加・更新と、関連タスクを巻き込むカスケード削除を提供する。
type Service struct {
	store    store.Store
	recorder Recorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(s store.Store, recorder Recorder) *Service {
	return &Service{store: s, recorder: recorder}
}

// AddClient は新規顧客を追加し、採番されたIDを返す。
// colorRawが空の場合は既定色ローテーションから選ぶ（existingCountは既存顧客数）。
func (s *Service) AddClient(ctx context.Context, name, colorRaw string, existingCount int) (string, error) {
	if name == "" {
		return "", model.NewValidationError("顧客名は必須です")
	}

	var color model.Color
	if colorRaw == "" {
		color = model.DefaultColorAt(existingCount)
	} else {
		parsed, err := model.ParseColor(colorRaw)
		if err != nil {
			return "", model.NewInvalidColorError(colorRaw)
		}
		color = parsed
	}

	id, err := s.store.Add(ctx, store.CollectionClients, store.EncodeClient(model.Client{
		Name:  name,
		Color: color,
	}))
	if err != nil {
		return "", fmt.Errorf("顧客の追加に失敗しました: %w", err)
	}
	return id, nil
}

// UpdateClient は顧客の名前と色を更新する。
func (s *Service) UpdateClient(ctx context.Context, clientID, name, colorRaw string) error {
	if clientID == "" {
		return model.NewValidationError("顧客IDは必須です")
	}
	if name == "" {
		return model.NewValidationError("顧客名は必須です")
	}
	color, err := model.ParseColor(colorRaw)
	if err != nil {
		return model.NewInvalidColorError(colorRaw)
	}

	err = s.store.Update(ctx, store.CollectionClients, clientID, store.EncodeClient(model.Client{
		Name:  name,
		Color: color,
	}))
	if errors.Is(err, store.ErrNotFound) {
		return model.NewClientNotFoundError(clientID)
	}
	if err != nil {
		return fmt.Errorf("顧客の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteClient は顧客と、その顧客を参照する全タスクをカスケード削除する。
//
// 手順:
//  1. 対象顧客を参照するタスクを1回限りの問い合わせで列挙する
//  2. 全タスクの削除と顧客の削除を1つの書き込みバッチに積む
//  3. バッチをアトミックにコミットする（全削除または全失敗。孤児タスクは残らない）
//  4. コミット成功後、顧客フィルタが対象顧客を指していれば解除する
//
// 選択解除は削除と同一の論理操作内で行い、存在しない顧客でフィルタされた
// 空ビューを経由させない。コミットが失敗した場合はローカル状態を一切変更しない。
func (s *Service) DeleteClient(ctx context.Context, clientID string, selection SelectionClearer) error {
	if clientID == "" {
		return model.NewValidationError("顧客IDは必須です")
	}

	tasks, err := s.store.GetByField(ctx, store.CollectionTasks, store.FieldClientID, clientID)
	if err != nil {
		return fmt.Errorf("関連タスクの取得に失敗しました: %w", err)
	}

	batch := s.store.NewBatch()
	for _, doc := range tasks {
		batch.Delete(store.CollectionTasks, doc.ID)
	}
	batch.Delete(store.CollectionClients, clientID)

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("顧客の削除に失敗しました: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordCascadeDelete(len(tasks))
	}
	slog.Info("顧客をカスケード削除しました",
		slog.String("client_id", clientID),
		slog.Int("task_count", len(tasks)),
	)

	if selection != nil {
		selection.ClearSelectionIf(clientID)
	}
	return nil
}
