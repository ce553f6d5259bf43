package engine

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrDuplicate   = errors.New("task already registered")
)

// Trigger says who asked for a run. Tasks never see it; it only labels history.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerCLI      Trigger = "cli"
)

// Result is the explicit outcome of a task invocation.
type Result struct {
	OK        bool   `json:"ok"`
	Processed int    `json:"processed,omitempty"`
	Items     int    `json:"items,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Func is a task body. It must not panic past its own boundary; the engine
// does not recover on its behalf.
type Func func(ctx context.Context) Result

type Task struct {
	Name string
	Run  Func
}

// HistoryItem is one finished invocation kept in memory for the dashboard.
type HistoryItem struct {
	ID       string
	Name     string
	Trigger  Trigger
	Started  time.Time
	Duration time.Duration
	OK       bool
	Detail   string
}

// MetricsRecorder receives one observation per finished invocation.
type MetricsRecorder interface {
	ObserveTask(name string, ok bool, took time.Duration, finished time.Time)
}
