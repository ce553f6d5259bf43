package jobs

import (
	"context"
	"time"
)

// TrendSource performs one market scan.
type TrendSource interface {
	Scan(ctx context.Context) error
}

// StubTrends stands in for an external trend API: it only waits.
type StubTrends struct {
	Delay time.Duration
}

func (s StubTrends) Scan(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
