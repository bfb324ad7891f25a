package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, data, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_FAILED"
	ErrCodeInvalidColor      = "INVALID_COLOR"
	ErrCodeInvalidDate       = "INVALID_DATE"
	ErrCodeClientNotFound    = "CLIENT_NOT_FOUND"
	ErrCodeTaskNotFound      = "TASK_NOT_FOUND"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeLastUser          = "LAST_USER"
	ErrCodeSelfRemoval       = "SELF_REMOVAL"
	ErrCodeDuplicateUser     = "DUPLICATE_USER"
	ErrCodeWeakPassword      = "WEAK_PASSWORD"
	ErrCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrCodeRemote            = "REMOTE_ERROR"
	ErrCodeAdminOnly         = "ADMIN_ONLY"
)

// NewValidationError は必須項目の欠落など入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidColorError は不正なカラー指定エラーを生成する。
func NewInvalidColorError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidColor,
		Message:  fmt.Sprintf("無効なカラー指定です: %s", raw),
		Category: "validation",
		Action:   "パレットから選択するか、#RRGGBB形式の16進コードを指定してください。",
	}
}

// NewInvalidDateError は不正な日付指定エラーを生成する。
func NewInvalidDateError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", raw),
		Category: "validation",
		Action:   "日付はYYYY-MM-DD形式で指定してください。",
	}
}

// NewClientNotFoundError は顧客未検出エラーを生成する。
func NewClientNotFoundError(clientID string) *APIError {
	return &APIError{
		Code:     ErrCodeClientNotFound,
		Message:  fmt.Sprintf("指定された顧客が見つかりません: %s", clientID),
		Category: "data",
		Action:   "顧客一覧を確認してください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "data",
		Action:   "タスク一覧を確認してください。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "data",
		Action:   "ユーザー一覧を確認してください。",
	}
}

// NewLastUserError は最後の1人のユーザーを削除しようとした場合のエラーを生成する。
func NewLastUserError() *APIError {
	return &APIError{
		Code:     ErrCodeLastUser,
		Message:  "最後のユーザーは削除できません。",
		Category: "validation",
		Action:   "先に別のユーザーを追加してください。",
	}
}

// NewSelfRemovalError はログイン中の自分自身を削除しようとした場合のエラーを生成する。
func NewSelfRemovalError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfRemoval,
		Message:  "自分自身は削除できません。",
		Category: "validation",
		Action:   "別の管理者アカウントから操作してください。",
	}
}

// NewDuplicateUserError は同名ユーザーが既に存在する場合のエラーを生成する。
func NewDuplicateUserError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  fmt.Sprintf("このユーザー名は既に使用されています: %s", name),
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewWeakPasswordError はパスワード強度不足エラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "パスワードが短すぎます。6文字以上で指定してください。",
		Category: "validation",
		Action:   "より長いパスワードを設定してください。",
	}
}

// NewInvalidCredentialError は認証失敗エラーを生成する。
// 認証サービスはユーザー不存在とパスワード誤りを区別しないため、メッセージも区別しない。
func NewInvalidCredentialError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewRemoteError はリモートサービスの一時的な失敗エラーを生成する。
// ローカル状態は変更されず、自動リトライは行わない。
func NewRemoteError() *APIError {
	return &APIError{
		Code:     ErrCodeRemote,
		Message:  "サーバーとの通信でエラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAdminOnlyError は管理者専用操作への権限不足エラーを生成する。
func NewAdminOnlyError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminOnly,
		Message:  "この操作には管理者権限が必要です。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}
