package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeNaive(t *testing.T) {
	want := time.Date(2015, 1, 1, 12, 30, 0, 0, time.UTC)
	for _, s := range []string{"2015-01-01T12:30:00", "2015-01-01 12:30:00", "2015-01-01T12:30"} {
		got, ok := ParseTime(s)
		if !ok {
			t.Fatalf("%q: expected ok", s)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: got %v want %v", s, got, want)
		}
	}
	day, ok := ParseTime("2015-01-02")
	if !ok || !day.Equal(time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", day)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeInvalid(t *testing.T) {
	for _, s := range []string{"", "not-a-date", "2015-13-40"} {
		if _, ok := ParseTime(s); ok {
			t.Fatalf("%q: expected failure", s)
		}
	}
}


func TestFormatTimestamp(t *testing.T) {
	got := FormatTimestamp(time.Date(2015, 1, 1, 0, 0, 59, 0, time.UTC))
	if got != "2015-01-01 00:00:59" {
		t.Fatalf("unexpected format %q", got)
	}
}
