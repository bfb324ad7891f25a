package model

import (
	"testing"
	"time"
)

func TestParseDate_Valid(t *testing.T) {
	d, err := ParseDate("2026-08-29")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Year != 2026 || d.Month != time.August || d.Day != 29 {
		t.Errorf("ParseDate = %+v, want 2026-08-29", d)
	}
}

func TestParseDate_Invalid(t *testing.T) {
	tests := []string{
		"",
		"2026/08/29",
		"29-08-2026",
		"2026-13-01",
		"2026-02-30",
		"not-a-date",
	}
	for _, raw := range tests {
		if _, err := ParseDate(raw); err == nil {
			t.Errorf("ParseDate(%q) should return error", raw)
		}
	}
}

func TestDate_String_RoundTrip(t *testing.T) {
	d := Date{Year: 2026, Month: time.January, Day: 5}
	if d.String() != "2026-01-05" {
		t.Errorf("String() = %q, want %q", d.String(), "2026-01-05")
	}

	back, err := ParseDate(d.String())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if back != d {
		t.Errorf("round trip = %+v, want %+v", back, d)
	}
}

func TestDate_IsZero(t *testing.T) {
	if !(Date{}).IsZero() {
		t.Error("zero Date should report IsZero")
	}
	if (Date{Year: 2026, Month: time.March, Day: 1}).IsZero() {
		t.Error("non-zero Date should not report IsZero")
	}
}

func TestDate_Weekday(t *testing.T) {
	// 2026-08-29は土曜日
	d := Date{Year: 2026, Month: time.August, Day: 29}
	if d.Weekday() != time.Saturday {
		t.Errorf("Weekday = %v, want Saturday", d.Weekday())
	}
}

func TestDate_AddDays(t *testing.T) {
	tests := []struct {
		start Date
		n     int
		want  Date
	}{
		{Date{2026, time.August, 29}, 1, Date{2026, time.August, 30}},
		{Date{2026, time.August, 31}, 1, Date{2026, time.September, 1}},
		{Date{2026, time.December, 31}, 1, Date{2027, time.January, 1}},
		{Date{2026, time.March, 1}, -1, Date{2026, time.February, 28}},
		// 2028年はうるう年
		{Date{2028, time.March, 1}, -1, Date{2028, time.February, 29}},
		{Date{2026, time.August, 29}, 0, Date{2026, time.August, 29}},
		{Date{2026, time.August, 1}, -6, Date{2026, time.July, 26}},
	}

	for _, tt := range tests {
		got := tt.start.AddDays(tt.n)
		if got != tt.want {
			t.Errorf("%v.AddDays(%d) = %v, want %v", tt.start, tt.n, got, tt.want)
		}
	}
}

func TestDateOf(t *testing.T) {
	ts := time.Date(2026, time.August, 29, 23, 59, 59, 0, time.UTC)
	d := DateOf(ts)
	want := Date{Year: 2026, Month: time.August, Day: 29}
	if d != want {
		t.Errorf("DateOf = %+v, want %+v", d, want)
	}
}

func TestDate_UsableAsMapKey(t *testing.T) {
	m := map[Date]int{}
	d1 := Date{2026, time.August, 29}
	d2, _ := ParseDate("2026-08-29")

	m[d1] = 1
	m[d2] = m[d2] + 1

	if len(m) != 1 {
		t.Errorf("equal dates should collapse to one key, got %d keys", len(m))
	}
	if m[d1] != 2 {
		t.Errorf("m[d1] = %d, want 2", m[d1])
	}
}
