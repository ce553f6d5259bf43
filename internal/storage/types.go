package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one finished task invocation. Keep it compact and schema-stable.
type RunRecord struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	OK         bool      `json:"ok"`
	Detail     string    `json:"detail,omitempty"`
}

// Duration is FinishedAt - StartedAt.
func (r RunRecord) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
