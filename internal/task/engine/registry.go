package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"whoten/internal/storage"
	logx "whoten/pkg/logx"
)

const defaultHistorySize = 200

// Config controls the registry.
type Config struct {
	HistorySize int
	// StoreTimeout bounds each run-history write.
	StoreTimeout time.Duration
}

// Registry maps task names to bodies and is the single place both the
// scheduler and on-demand triggers go through to invoke a task.
//
// Concurrent Run calls for the same task are allowed and are not serialized.
type Registry struct {
	cfg Config
	log logx.Logger

	mu    sync.RWMutex
	tasks map[string]Task
	order []string

	metrics MetricsRecorder
	store   storage.Store

	hmu     sync.Mutex
	history []HistoryItem
}

type Option func(*Registry)

func WithMetrics(m MetricsRecorder) Option { return func(r *Registry) { r.metrics = m } }

// WithStore appends every run to st. A nil store disables persistence.
func WithStore(st storage.Store) Option { return func(r *Registry) { r.store = st } }

func New(cfg Config, log logx.Logger, opts ...Option) *Registry {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{cfg: cfg, log: log, tasks: map[string]Task{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Register(name string, fn Func) error {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return fmt.Errorf("register: name and func are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.tasks[name] = Task{Name: name, Run: fn}
	r.order = append(r.order, name)
	r.log.Debug("task registered", logx.String("task", name))
	return nil
}

// Names returns task names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Job returns a closure that runs name with the given trigger, for runners
// that only know how to call a zero-argument function.
func (r *Registry) Job(name string, trig Trigger) func(ctx context.Context) {
	return func(ctx context.Context) { _, _ = r.Run(ctx, name, trig) }
}

// Run invokes the named task synchronously and records the outcome.
func (r *Registry) Run(ctx context.Context, name string, trig Trigger) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	id := uuid.NewString()
	started := time.Now()
	r.log.Debug("task started", logx.String("task", name), logx.String("id", id), logx.String("trigger", string(trig)))

	res := t.Run(ctx)

	finished := time.Now()
	took := finished.Sub(started)
	r.record(ctx, HistoryItem{
		ID:       id,
		Name:     name,
		Trigger:  trig,
		Started:  started,
		Duration: took,
		OK:       res.OK,
		Detail:   res.Detail,
	}, finished)

	r.log.Debug("task finished", logx.String("task", name), logx.String("id", id), logx.Bool("ok", res.OK), logx.Duration("took", took))
	return res, nil
}

func (r *Registry) record(ctx context.Context, h HistoryItem, finished time.Time) {
	r.hmu.Lock()
	r.history = append(r.history, h)
	if over := len(r.history) - r.cfg.HistorySize; over > 0 {
		r.history = append([]HistoryItem(nil), r.history[over:]...)
	}
	r.hmu.Unlock()

	if r.metrics != nil {
		r.metrics.ObserveTask(h.Name, h.OK, h.Duration, finished)
	}
	if r.store != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.StoreTimeout)
		err := r.store.AppendRun(sctx, storage.RunRecord{
			ID:         h.ID,
			Task:       h.Name,
			Trigger:    string(h.Trigger),
			StartedAt:  h.Started,
			FinishedAt: finished,
			OK:         h.OK,
			Detail:     h.Detail,
		})
		cancel()
		if err != nil {
			r.log.Warn("run history write failed", logx.String("task", h.Name), logx.Err(err))
		}
	}
}

// History returns up to n recent invocations, newest first. n <= 0 returns all.
func (r *Registry) History(n int) []HistoryItem {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	if n <= 0 || n > len(r.history) {
		n = len(r.history)
	}
	out := make([]HistoryItem, 0, n)
	for i := len(r.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.history[i])
	}
	return out
}
