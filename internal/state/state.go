// Package state holds the process-wide mutable state shown on the dashboard:
// a capacity-bounded log ring and the last successful run time of each task.
//
// All access goes through State's methods, which serialize on a single mutex.
package state

import (
	"sync"
	"time"

	logx "whoten/pkg/logx"
)

// DefaultCapacity is the number of log entries retained before the oldest are evicted.
const DefaultCapacity = 1000

type Level string

const (
	LevelInfo   Level = "INFO"
	LevelWarn   Level = "WARN"
	LevelError  Level = "ERROR"
	LevelNotice Level = "NOTICE"
)

// Entry is one dashboard log line. Entries are never mutated after Log returns.
type Entry struct {
	At      time.Time `json:"ts"`
	Level   Level     `json:"level"`
	Message string    `json:"msg"`
	Data    any       `json:"data,omitempty"`
}

// Kind identifies which last-run timestamp a task owns.
type Kind string

const (
	KindSync   Kind = "sync"
	KindScan   Kind = "scan"
	KindReport Kind = "report"
)

// LastRuns is a read snapshot. A zero time means the task has never succeeded.
type LastRuns struct {
	Sync   time.Time
	Scan   time.Time
	Report time.Time
}

type Option func(*State)

// WithCapacity overrides DefaultCapacity. Values < 1 are ignored.
func WithCapacity(n int) Option {
	return func(s *State) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger mirrors every entry to a process logger.
func WithLogger(log logx.Logger) Option {
	return func(s *State) { s.log = log }
}

// WithObserver registers a callback invoked (outside the lock) for each new entry.
func WithObserver(fn func(Entry)) Option {
	return func(s *State) { s.observer = fn }
}

// WithClock replaces time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *State) {
		if now != nil {
			s.now = now
		}
	}
}

type State struct {
	mu sync.RWMutex

	capacity int
	ring     []Entry
	head     int // index of the oldest entry
	size     int

	last LastRuns

	log      logx.Logger
	observer func(Entry)
	now      func() time.Time
}

func New(opts ...Option) *State {
	s := &State{capacity: DefaultCapacity, log: logx.Nop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.ring = make([]Entry, s.capacity)
	return s
}

// Log appends an entry, evicting the oldest once the ring is full.
func (s *State) Log(level Level, msg string, data any) {
	e := Entry{At: s.now(), Level: level, Message: msg, Data: data}

	s.mu.Lock()
	if s.size < s.capacity {
		s.ring[(s.head+s.size)%s.capacity] = e
		s.size++
	} else {
		s.ring[s.head] = e
		s.head = (s.head + 1) % s.capacity
	}
	s.mu.Unlock()

	s.mirror(e)
	if s.observer != nil {
		s.observer(e)
	}
}

func (s *State) Info(msg string, data any)   { s.Log(LevelInfo, msg, data) }
func (s *State) Warn(msg string, data any)   { s.Log(LevelWarn, msg, data) }
func (s *State) Error(msg string, data any)  { s.Log(LevelError, msg, data) }
func (s *State) Notice(msg string, data any) { s.Log(LevelNotice, msg, data) }

func (s *State) mirror(e Entry) {
	fields := []logx.Field{logx.String("feed", "dashboard")}
	if e.Data != nil {
		if str, ok := e.Data.(string); ok && e.Level == LevelError {
			fields = append(fields, logx.Stack(str))
		} else {
			fields = append(fields, logx.Any("data", e.Data))
		}
	}
	switch e.Level {
	case LevelError:
		s.log.Error(e.Message, fields...)
	case LevelWarn:
		s.log.Warn(e.Message, fields...)
	case LevelNotice:
		s.log.Info(e.Message, append(fields, logx.Bool("notice", true))...)
	default:
		s.log.Info(e.Message, fields...)
	}
}

// Len returns the number of retained entries.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Entries returns all retained entries, oldest first.
func (s *State) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.ring[(s.head+i)%s.capacity]
	}
	return out
}

// Recent returns up to n entries, newest first. n <= 0 returns all of them.
func (s *State) Recent(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > s.size {
		n = s.size
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = s.ring[(s.head+s.size-1-i)%s.capacity]
	}
	return out
}

// MarkRun records a successful completion of the task owning kind.
// Concurrent callers race on last-write-wins; the value is never torn.
func (s *State) MarkRun(kind Kind, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case KindSync:
		s.last.Sync = at
	case KindScan:
		s.last.Scan = at
	case KindReport:
		s.last.Report = at
	}
}

func (s *State) LastRuns() LastRuns {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
