package state

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	logx "whoten/pkg/logx"
)

func TestRingEvictsOldestAndKeepsOrder(t *testing.T) {
	t.Parallel()
	s := New()
	for i := 0; i < DefaultCapacity+1; i++ {
		s.Info(fmt.Sprintf("entry %d", i), nil)
	}
	if got := s.Len(); got != DefaultCapacity {
		t.Fatalf("Len = %d, want %d", got, DefaultCapacity)
	}
	all := s.Entries()
	if all[0].Message != "entry 1" {
		t.Fatalf("oldest = %q, want entry 1", all[0].Message)
	}
	for i, e := range all {
		want := fmt.Sprintf("entry %d", i+1)
		if e.Message != want {
			t.Fatalf("entries[%d] = %q, want %q", i, e.Message, want)
		}
	}
}

func TestRecentNewestFirst(t *testing.T) {
	t.Parallel()
	s := New(WithCapacity(5))
	for i := 0; i < 8; i++ {
		s.Info(fmt.Sprintf("m%d", i), nil)
	}
	got := s.Recent(3)
	want := []string{"m7", "m6", "m5"}
	for i := range want {
		if got[i].Message != want[i] {
			t.Fatalf("Recent[%d] = %q, want %q", i, got[i].Message, want[i])
		}
	}
	if n := len(s.Recent(0)); n != 5 {
		t.Fatalf("Recent(0) len = %d, want 5", n)
	}
	if n := len(s.Recent(200)); n != 5 {
		t.Fatalf("Recent(200) len = %d, want 5", n)
	}
}

func TestMarkRunConcurrentWriters(t *testing.T) {
	t.Parallel()
	s := New()
	a := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := a.Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); s.MarkRun(KindSync, a); s.Info("a", nil) }()
		go func() { defer wg.Done(); s.MarkRun(KindSync, b); s.Info("b", nil) }()
	}
	wg.Wait()

	got := s.LastRuns().Sync
	if !got.Equal(a) && !got.Equal(b) {
		t.Fatalf("last sync = %v, want one of %v / %v", got, a, b)
	}
	if s.Len() != 200 {
		t.Fatalf("Len = %d, want 200", s.Len())
	}
	if !s.LastRuns().Scan.IsZero() {
		t.Fatal("scan timestamp should be untouched")
	}
}

func TestMirrorAndObserver(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	var seen []Level
	s := New(
		WithLogger(logx.NewWriter(&buf, "debug")),
		WithObserver(func(e Entry) { seen = append(seen, e.Level) }),
	)
	s.Notice("NOTICE: hello", nil)
	s.Error("boom", "trace line")

	out := buf.String()
	if !strings.Contains(out, `"notice":true`) {
		t.Fatalf("notice flag missing from %s", out)
	}
	if !strings.Contains(out, `"stack":"trace line"`) {
		t.Fatalf("stack missing from %s", out)
	}
	if len(seen) != 2 || seen[0] != LevelNotice || seen[1] != LevelError {
		t.Fatalf("observer saw %v", seen)
	}
}
