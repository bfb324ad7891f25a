package model

import (
	"fmt"
	"time"
)

// Date はタイムゾーンに依存しない純粋な暦日（年月日）を表す。
// タスクの日付バケッティングを時刻・タイムゾーンから切り離すため、
// time.Timeではなく年月日のみを保持する。マップのキーとして使用できる。
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate は"YYYY-MM-DD"形式の文字列をDateにパースする。
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf はtime.Timeからそのローカル暦日を取り出す。
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// String は"YYYY-MM-DD"形式の保存表現を返す。ParseDateと往復可能。
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero は未設定のDateかを判定する。
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Weekday はこの暦日の曜日を返す。
func (d Date) Weekday() time.Weekday {
	return d.toTime().Weekday()
}

// AddDays はn日後（負数ならn日前）の暦日を返す。月末・年末を正しく繰り上げる。
func (d Date) AddDays(n int) Date {
	return DateOf(d.toTime().AddDate(0, 0, n))
}

// toTime は暦日をUTC正午のtime.Timeに変換する。
// 正午を使うことで夏時間境界による日付ずれを避ける。
func (d Date) toTime() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
}
