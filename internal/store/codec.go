package store

import (
	"fmt"

	"github.com/hitoshi/agenda/internal/model"
)

// フィールド名。ストア上のドキュメントスキーマと一致させる。
const (
	FieldName        = "name"
	FieldRole        = "role"
	FieldAvatarURL   = "avatarUrl"
	FieldColor       = "color"
	FieldDate        = "date"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldClientID    = "clientId"
	FieldCompleted   = "completed"
	FieldCreatedBy   = "createdBy"
)

// EncodeUser はUserをドキュメントフィールドに変換する。IDは含めない。
func EncodeUser(u model.User) map[string]any {
	return map[string]any{
		FieldName:      u.Name,
		FieldRole:      string(u.Role),
		FieldAvatarURL: u.AvatarURL,
	}
}

// DecodeUser はドキュメントをUserにデコードする。
func DecodeUser(doc Document) (model.User, error) {
	role := model.Role(stringField(doc.Fields, FieldRole))
	if !role.IsValid() {
		return model.User{}, fmt.Errorf("document %s: invalid role %q", doc.ID, role)
	}
	return model.User{
		ID:        doc.ID,
		Name:      stringField(doc.Fields, FieldName),
		Role:      role,
		AvatarURL: stringField(doc.Fields, FieldAvatarURL),
	}, nil
}

// EncodeClient はClientをドキュメントフィールドに変換する。IDは含めない。
func EncodeClient(c model.Client) map[string]any {
	return map[string]any{
		FieldName:  c.Name,
		FieldColor: c.Color.String(),
	}
}

// DecodeClient はドキュメントをClientにデコードする。
func DecodeClient(doc Document) (model.Client, error) {
	color, err := model.ParseColor(stringField(doc.Fields, FieldColor))
	if err != nil {
		return model.Client{}, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	return model.Client{
		ID:    doc.ID,
		Name:  stringField(doc.Fields, FieldName),
		Color: color,
	}, nil
}

// EncodeTask はTaskをドキュメントフィールドに変換する。IDは含めない。
func EncodeTask(t model.Task) map[string]any {
	return map[string]any{
		FieldDate:        t.Date.String(),
		FieldTitle:       t.Title,
		FieldDescription: t.Description,
		FieldClientID:    t.ClientID,
		FieldCompleted:   t.Completed,
		FieldCreatedBy:   t.CreatedBy,
	}
}

// DecodeTask はドキュメントをTaskにデコードする。
func DecodeTask(doc Document) (model.Task, error) {
	date, err := model.ParseDate(stringField(doc.Fields, FieldDate))
	if err != nil {
		return model.Task{}, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	return model.Task{
		ID:          doc.ID,
		Date:        date,
		Title:       stringField(doc.Fields, FieldTitle),
		Description: stringField(doc.Fields, FieldDescription),
		ClientID:    stringField(doc.Fields, FieldClientID),
		Completed:   boolField(doc.Fields, FieldCompleted),
		CreatedBy:   stringField(doc.Fields, FieldCreatedBy),
	}, nil
}

// stringField はフィールドを文字列として取り出す。欠落・型不一致は空文字列。
func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// boolField はフィールドを真偽値として取り出す。欠落・型不一致はfalse。
func boolField(fields map[string]any, key string) bool {
	if v, ok := fields[key].(bool); ok {
		return v
	}
	return false
}
