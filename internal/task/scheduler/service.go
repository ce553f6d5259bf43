package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"whoten/internal/runtime/supervisor"
	"whoten/internal/state"
	"whoten/internal/task/engine"
	logx "whoten/pkg/logx"
)

// Config is static for the life of the service; changes need a restart.
type Config struct {
	SyncEveryHours float64
	ScanEveryHours float64
	ReportHour     int
	ReportMinute   int
	Timezone       string // IANA name; empty means Local
}

// Task names the scheduler binds to. They must be registered in the engine.
const (
	TaskSync   = "sync"
	TaskScan   = "scan"
	TaskReport = "report"
)

type ScheduleInfo struct {
	Name string
	Rule string
	Next time.Time
}

type Service struct {
	cfg Config
	reg *engine.Registry
	st  *state.State
	log logx.Logger

	mu    sync.Mutex
	sup   *supervisor.Supervisor
	loc   *time.Location
	rules map[string]string
	next  map[string]time.Time
}

func New(cfg Config, reg *engine.Registry, st *state.State, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg,
		reg:   reg,
		st:    st,
		log:   log,
		rules: map[string]string{},
		next:  map[string]time.Time{},
	}
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Start launches the three runners. It returns an error if a task is missing
// from the registry or the daily time is invalid. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	for _, name := range []string{TaskSync, TaskScan, TaskReport} {
		if _, ok := s.reg.Get(name); !ok {
			return fmt.Errorf("scheduler: %w: %s", engine.ErrUnknownTask, name)
		}
	}
	if _, err := NextDailyRun(time.Now(), s.cfg.ReportHour, s.cfg.ReportMinute); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	s.loc = s.loadLocation()
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))

	syncEvery := EffectiveInterval(s.cfg.SyncEveryHours)
	scanEvery := EffectiveInterval(s.cfg.ScanEveryHours)
	s.rules[TaskSync] = "every " + syncEvery.String()
	s.rules[TaskScan] = "every " + scanEvery.String()
	s.rules[TaskReport] = fmt.Sprintf("daily %02d:%02d %s", s.cfg.ReportHour, s.cfg.ReportMinute, s.loc)

	s.sup.Go0("scheduler."+TaskSync, func(ctx context.Context) {
		s.runner(TaskSync).interval(ctx, syncEvery)
	})
	s.sup.Go0("scheduler."+TaskScan, func(ctx context.Context) {
		s.runner(TaskScan).interval(ctx, scanEvery)
	})
	hour, minute, loc := s.cfg.ReportHour, s.cfg.ReportMinute, s.loc
	s.sup.Go0("scheduler."+TaskReport, func(ctx context.Context) {
		s.runner(TaskReport).daily(ctx, hour, minute, loc)
	})

	s.st.Info("Schedulers launched", nil)
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", 3))
	return nil
}

func (s *Service) runner(name string) *runner {
	return &runner{
		name: name,
		st:   s.st,
		job:  s.reg.Job(name, engine.TriggerSchedule),
		onNext: func(t time.Time) {
			s.mu.Lock()
			s.next[name] = t
			s.mu.Unlock()
		},
	}
}

// Stop sets the stop signal and waits (bounded by ctx) for all runners to exit.
// A runner mid-task exits once its task returns.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	s.log.Info("stop requested")
	err := sup.Stop(ctx)
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return err
}

// Running returns the names of live runner goroutines.
func (s *Service) Running() []string {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Running()
}

// Snapshot lists each schedule with its rule and next planned run.
func (s *Service) Snapshot() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.rules))
	for name, rule := range s.rules {
		out = append(out, ScheduleInfo{Name: name, Rule: rule, Next: s.next[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
