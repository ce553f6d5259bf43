package scheduler

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"whoten/internal/state"
	"whoten/internal/task/engine"
	logx "whoten/pkg/logx"
)

func TestEffectiveIntervalFloor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		hours float64
		want  time.Duration
	}{
		{hours: 0, want: 300 * time.Second},
		{hours: -2, want: 300 * time.Second},
		{hours: 0.01, want: 300 * time.Second},
		{hours: 300.0 / 3600, want: 300 * time.Second},
		{hours: 0.1, want: 360 * time.Second},
		{hours: 3, want: 3 * 3600 * time.Second},
		{hours: 6, want: 6 * 3600 * time.Second},
		{hours: 1e6, want: 1e6 * 3600 * time.Second},
		{hours: 2.5e6, want: 2.5e6 * 3600 * time.Second},
		{hours: 3e6, want: time.Duration(math.MaxInt64)},
		{hours: 1e7, want: time.Duration(math.MaxInt64)},
		{hours: 1e9, want: time.Duration(math.MaxInt64)},
		{hours: math.Inf(1), want: time.Duration(math.MaxInt64)},
		{hours: math.Inf(-1), want: 300 * time.Second},
		{hours: math.NaN(), want: 300 * time.Second},
	}
	for _, tt := range tests {
		if got := EffectiveInterval(tt.hours); got != tt.want {
			t.Fatalf("EffectiveInterval(%v) = %v, want %v", tt.hours, got, tt.want)
		}
	}
}

func TestNextDailyRun(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("test", 2*3600)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "target passed today",
			now:  time.Date(2026, 3, 10, 16, 0, 0, 0, loc),
			want: time.Date(2026, 3, 11, 15, 0, 0, 0, loc),
		},
		{
			name: "target later today",
			now:  time.Date(2026, 3, 10, 10, 0, 0, 0, loc),
			want: time.Date(2026, 3, 10, 15, 0, 0, 0, loc),
		},
		{
			name: "exactly at target",
			now:  time.Date(2026, 3, 10, 15, 0, 0, 0, loc),
			want: time.Date(2026, 3, 11, 15, 0, 0, 0, loc),
		},
		{
			name: "just after firing",
			now:  time.Date(2026, 3, 10, 15, 0, 0, 400_000_000, loc),
			want: time.Date(2026, 3, 11, 15, 0, 0, 0, loc),
		},
		{
			name: "month rollover",
			now:  time.Date(2026, 3, 31, 23, 0, 0, 0, loc),
			want: time.Date(2026, 4, 1, 15, 0, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDailyRun(tt.now, 15, 0)
			if err != nil {
				t.Fatalf("NextDailyRun error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextDailyRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
			if !got.After(tt.now) {
				t.Fatalf("next run %v not after now %v", got, tt.now)
			}
		})
	}

	if _, err := NextDailyRun(time.Now(), 24, 0); err == nil {
		t.Fatal("expected error for hour 24")
	}
	if _, err := NextDailyRun(time.Now(), 12, 60); err == nil {
		t.Fatal("expected error for minute 60")
	}
}

func countLevel(st *state.State, lvl state.Level) int {
	n := 0
	for _, e := range st.Entries() {
		if e.Level == lvl {
			n++
		}
	}
	return n
}

func TestIntervalStopsWithinIncrement(t *testing.T) {
	t.Parallel()
	st := state.New()
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunInterval(ctx, st, "sync", 3, func(context.Context) { calls.Add(1) })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	start := time.Now()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("interval runner did not stop")
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("stop took %v", took)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if !strings.Contains(st.Entries()[0].Message, "interval=10800s") {
		t.Fatalf("start event = %q", st.Entries()[0].Message)
	}
}

func TestIntervalSurvivesPanics(t *testing.T) {
	t.Parallel()
	st := state.New()
	var calls atomic.Int32
	r := &runner{name: "scan", st: st, job: func(context.Context) {
		if calls.Add(1) == 1 {
			panic("first run explodes")
		}
	}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.interval(ctx, 5*time.Millisecond)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if calls.Load() < 3 {
		t.Fatalf("runner stopped after panic; calls = %d", calls.Load())
	}
	if n := countLevel(st, state.LevelError); n != 1 {
		t.Fatalf("error entries = %d, want 1", n)
	}
}

func TestDailyStopsWithoutInvoking(t *testing.T) {
	t.Parallel()
	st := state.New()
	var calls atomic.Int32
	target := time.Now().Add(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunDailyAt(ctx, st, "report", target.Hour(), target.Minute(), nil, func(context.Context) { calls.Add(1) })
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunDailyAt: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daily runner did not stop")
	}
	if took := time.Since(start); took > dailyRecheck {
		t.Fatalf("stop took %v", took)
	}
	if calls.Load() != 0 {
		t.Fatalf("task invoked %d times, want 0", calls.Load())
	}
}

func TestDailyFiresOnceAtTarget(t *testing.T) {
	t.Parallel()
	st := state.New()
	var calls atomic.Int32
	// Fake clock: first reading is 1ms before target; every later reading is past it.
	base := time.Date(2026, 5, 1, 14, 59, 59, 999_000_000, time.UTC)
	var reads atomic.Int32
	clock := func() time.Time {
		if reads.Add(1) == 1 {
			return base
		}
		return base.Add(time.Duration(reads.Load()) * time.Millisecond)
	}

	var nexts []time.Time
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{
		name: "report",
		st:   st,
		now:  clock,
		job: func(context.Context) {
			calls.Add(1)
		},
		onNext: func(t time.Time) {
			nexts = append(nexts, t)
			if len(nexts) == 2 {
				cancel()
			}
		},
	}
	r.daily(ctx, 15, 0, time.UTC)

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	want := []time.Time{
		time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 2, 15, 0, 0, 0, time.UTC),
	}
	for i := range want {
		if !nexts[i].Equal(want[i]) {
			t.Fatalf("next[%d] = %v, want %v", i, nexts[i], want[i])
		}
	}
}

func TestServiceStartStop(t *testing.T) {
	t.Parallel()
	st := state.New()
	reg := engine.New(engine.Config{}, logx.Nop())
	var runs atomic.Int32
	for _, name := range []string{TaskSync, TaskScan, TaskReport} {
		_ = reg.Register(name, func(context.Context) engine.Result {
			runs.Add(1)
			return engine.Result{OK: true}
		})
	}
	now := time.Now()
	svc := New(Config{SyncEveryHours: 3, ScanEveryHours: 6, ReportHour: (now.Hour() + 2) % 24, ReportMinute: now.Minute()}, reg, st, logx.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(svc.Running()); got != 3 {
		t.Fatalf("running runners = %d, want 3", got)
	}
	snap := svc.Snapshot()
	if len(snap) != 3 || snap[0].Name != TaskReport || snap[1].Name != TaskScan || snap[2].Name != TaskSync {
		t.Fatalf("snapshot = %+v", snap)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if runs.Load() != 2 {
		t.Fatalf("runs = %d, want 2 (sync+scan immediately, report not due)", runs.Load())
	}
	if len(reg.History(0)) != 2 || reg.History(0)[0].Trigger != engine.TriggerSchedule {
		t.Fatalf("history = %+v", reg.History(0))
	}
}

func TestServiceStartRequiresTasks(t *testing.T) {
	t.Parallel()
	reg := engine.New(engine.Config{}, logx.Nop())
	svc := New(Config{ReportHour: 15}, reg, state.New(), logx.Nop())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected error when tasks are not registered")
	}
}
