package util

import (
	"testing"
	"time"
)

func TestStartOfWeekMonday(t *testing.T) {
	// 2024-01-07 is a Sunday, 2024-01-08 a Monday.
	sun := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	got := StartOfWeek(sun)
	if FormatDate(got) != "2024-01-01" {
		t.Fatalf("unexpected monday %s", FormatDate(got))
	}
	mon := time.Date(2024, 1, 8, 15, 4, 0, 0, time.UTC)
	if FormatDate(StartOfWeek(mon)) != "2024-01-08" {
		t.Fatalf("monday should map to itself, got %s", FormatDate(StartOfWeek(mon)))
	}
}

func TestYesterdayUsesLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	// 2024-03-01 20:00 UTC is already 2024-03-02 in Seoul.
	now := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	if got := FormatDate(Yesterday(now, seoul)); got != "2024-03-01" {
		t.Fatalf("unexpected yesterday %s", got)
	}
	if got := FormatDate(Yesterday(now, time.UTC)); got != "2024-02-29" {
		t.Fatalf("unexpected utc yesterday %s", got)
	}
}

func TestParseDateDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	if got := ParseDateDefault("", def); !got.Equal(def) {
		t.Fatalf("expected default")
	}
	got, ok := ParseDate("2024-02-29")
	if !ok || DaysBetween(got, def) != 224 {
		t.Fatalf("unexpected parse %v %v", got, ok)
	}
}

func TestFirstOf(t *testing.T) {
	none := Extractor[string, int](func(string) (int, bool) { return 0, false })
	length := Extractor[string, int](func(s string) (int, bool) { return len(s), s != "" })
	if v, ok := FirstOf("abc", none, length); !ok || v != 3 {
		t.Fatalf("unexpected %d %v", v, ok)
	}
	if _, ok := FirstOf("", none, length); ok {
		t.Fatalf("expected no match")
	}
}
