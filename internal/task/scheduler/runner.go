package scheduler

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"

	"whoten/internal/state"
)

const (
	// MinInterval is the floor applied to every interval runner.
	MinInterval = 5 * time.Minute

	// dailyRecheck bounds a single daily wait so wall-clock jumps
	// (suspend, NTP step) are noticed.
	dailyRecheck = 30 * time.Second
)

var dailyParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Job is what a runner invokes. It has no arguments besides ctx and no result.
type Job func(ctx context.Context)

// EffectiveInterval converts an hours setting to the wait used between runs,
// truncated to whole seconds and never below MinInterval. Values too large for
// a Duration saturate at the maximum. NaN maps to MinInterval.
func EffectiveInterval(hours float64) time.Duration {
	secs := hours * 3600
	if math.IsNaN(secs) || secs < MinInterval.Seconds() {
		return MinInterval
	}
	if secs >= float64(math.MaxInt64/int64(time.Second)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs) * time.Second
}

// NextDailyRun returns the first hour:minute:00 strictly after now, in now's location.
// A target equal to now is pushed to the following day.
func NextDailyRun(now time.Time, hour, minute int) (time.Time, error) {
	sched, err := dailyParser.Parse(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return time.Time{}, fmt.Errorf("daily %02d:%02d: %w", hour, minute, err)
	}
	return sched.Next(now), nil
}

// runner carries what both runner kinds need. now and onNext are hooks for
// the service snapshot and for tests.
type runner struct {
	name   string
	st     *state.State
	job    Job
	now    func() time.Time
	onNext func(time.Time)
}

func (r *runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *runner) noteNext(t time.Time) {
	if r.onNext != nil {
		r.onNext(t)
	}
}

// invoke calls the job; a panic is logged and swallowed so the loop survives.
// Stopping does not cancel a job already running.
func (r *runner) invoke(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.st.Error(fmt.Sprintf("Task '%s' crashed", r.name), fmt.Sprintf("panic: %v\n%s", p, debug.Stack()))
		}
	}()
	r.job(context.WithoutCancel(ctx))
}

// RunInterval invokes job immediately and then every EffectiveInterval(hours)
// until ctx is canceled.
func RunInterval(ctx context.Context, st *state.State, name string, hours float64, job Job) {
	r := &runner{name: name, st: st, job: job}
	r.interval(ctx, EffectiveInterval(hours))
}

func (r *runner) interval(ctx context.Context, every time.Duration) {
	r.st.Info(fmt.Sprintf("Scheduler '%s' started; interval=%ds", r.name, int64(every/time.Second)), nil)
	for ctx.Err() == nil {
		r.invoke(ctx)
		r.noteNext(r.clock().Add(every))
		if !sleep(ctx, every) {
			return
		}
	}
}

// RunDailyAt invokes job once per day at hour:minute in loc (nil means Local)
// until ctx is canceled. A target already passed today is first run tomorrow.
func RunDailyAt(ctx context.Context, st *state.State, name string, hour, minute int, loc *time.Location, job Job) error {
	if _, err := NextDailyRun(time.Now(), hour, minute); err != nil {
		return err
	}
	r := &runner{name: name, st: st, job: job}
	r.daily(ctx, hour, minute, loc)
	return nil
}

func (r *runner) daily(ctx context.Context, hour, minute int, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	r.st.Info(fmt.Sprintf("Scheduler '%s' started; daily at %02d:%02d", r.name, hour, minute), nil)
	for ctx.Err() == nil {
		next, err := NextDailyRun(r.clock().In(loc), hour, minute)
		if err != nil {
			r.st.Error(fmt.Sprintf("Scheduler '%s' stopped", r.name), err.Error())
			return
		}
		r.noteNext(next)
		if !r.sleepUntil(ctx, next) {
			return
		}
		r.invoke(ctx)
	}
}

// sleepUntil waits until the wall clock reaches t, re-reading the clock at
// least every dailyRecheck. It reports false if ctx was canceled first.
func (r *runner) sleepUntil(ctx context.Context, t time.Time) bool {
	for {
		left := t.Sub(r.clock())
		if left <= 0 {
			return ctx.Err() == nil
		}
		if left > dailyRecheck {
			left = dailyRecheck
		}
		if !sleep(ctx, left) {
			return false
		}
	}
}

// sleep blocks for d or until ctx is done, whichever comes first.
// It reports whether the full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
