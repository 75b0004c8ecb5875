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

func TestParseTimeUnixMillis(t *testing.T) {
	want := time.Date(2021, 3, 1, 12, 0, 0, 250*int(time.Millisecond), time.UTC)
	got, ok := ParseTime(strconv.FormatInt(want.UnixMilli(), 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(want) {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestResolveRange(t *testing.T) {
	now := time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)

	from, to, err := ResolveRange("", "", time.Hour, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !to.Equal(now) || !from.Equal(now.Add(-time.Hour)) {
		t.Fatalf("unexpected range %v..%v", from, to)
	}

	if _, _, err := ResolveRange("yesterday", "", time.Hour, now); err == nil {
		t.Fatalf("expected error for bad from")
	}
	if _, _, err := ResolveRange("2024-10-10T13:00:00Z", "2024-10-10T12:00:00Z", time.Hour, now); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a:1, ,b:2,")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Fatalf("unexpected split %v", got)
	}
}
