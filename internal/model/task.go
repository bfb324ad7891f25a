package model

// Task はカレンダー上の1件のタスクを表す。
// DateはタイムゾーンやUTC時刻に依存しない純粋な暦日として保持する。
// ClientIDは存在するClientを参照しなければならない（カスケード削除で保証される）。
type Task struct {
	ID          string
	Date        Date
	Title       string
	Description string
	ClientID    string
	Completed   bool
	CreatedBy   string // 作成したユーザーのID
}
