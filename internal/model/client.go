package model

// Client は顧客を表す。ワークスペース全体で共有され、特定ユーザーには属さない。
// Clientを削除すると、そのClientを参照する全Taskもカスケード削除される。
type Client struct {
	ID    string
	Name  string
	Color Color
}
