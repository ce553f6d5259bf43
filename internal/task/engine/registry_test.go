package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"whoten/internal/storage"
	logx "whoten/pkg/logx"
)

type fakeMetrics struct {
	mu  sync.Mutex
	obs []bool
}

func (f *fakeMetrics) ObserveTask(_ string, ok bool, _ time.Duration, _ time.Time) {
	f.mu.Lock()
	f.obs = append(f.obs, ok)
	f.mu.Unlock()
}

func TestRegisterAndRun(t *testing.T) {
	t.Parallel()
	m := &fakeMetrics{}
	r := New(Config{HistorySize: 2}, logx.Nop(), WithMetrics(m))

	if err := r.Register("sync", func(context.Context) Result { return Result{OK: true, Processed: 2} }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("sync", func(context.Context) Result { return Result{} }); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate register err = %v", err)
	}
	_ = r.Register("scan", func(context.Context) Result { return Result{OK: false, Detail: "nope"} })

	res, err := r.Run(context.Background(), "sync", TriggerManual)
	if err != nil || !res.OK || res.Processed != 2 {
		t.Fatalf("Run(sync) = %+v, %v", res, err)
	}
	if _, err := r.Run(context.Background(), "missing", TriggerManual); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("Run(missing) err = %v", err)
	}
	_, _ = r.Run(context.Background(), "scan", TriggerSchedule)
	r.Job("sync", TriggerSchedule)(context.Background())

	h := r.History(0)
	if len(h) != 2 {
		t.Fatalf("history len = %d, want 2 (capped)", len(h))
	}
	if h[0].Name != "sync" || h[0].Trigger != TriggerSchedule || h[1].Name != "scan" || h[1].OK {
		t.Fatalf("history = %+v", h)
	}
	if got := r.Names(); len(got) != 2 || got[0] != "sync" || got[1] != "scan" {
		t.Fatalf("Names = %v", got)
	}
	if len(m.obs) != 3 {
		t.Fatalf("metrics observations = %d, want 3", len(m.obs))
	}
}

func TestRunPersistsToStore(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "runs.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	r := New(Config{}, logx.Nop(), WithStore(st))
	_ = r.Register("report", func(context.Context) Result { return Result{OK: true} })
	if _, err := r.Run(context.Background(), "report", TriggerCLI); err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := st.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Task != "report" || runs[0].Trigger != "cli" || !runs[0].OK || runs[0].ID == "" {
		t.Fatalf("runs = %+v", runs)
	}
}
