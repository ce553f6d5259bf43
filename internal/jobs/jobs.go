// Package jobs implements the sync, scan and report tasks.
//
// Each exported task method is its own failure boundary: a returned error or
// a panic inside the body becomes exactly one ERROR entry with a stack trace
// and Result{OK: false}. Nothing escapes to the caller.
package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"whoten/internal/shopify"
	"whoten/internal/state"
	"whoten/internal/task/engine"
)

// Shop is the slice of the e-commerce client the tasks use.
type Shop interface {
	Configured() bool
	ListProducts(ctx context.Context, limit int) []shopify.Product
	UpsertProduct(ctx context.Context, p shopify.Product) *shopify.Product
}

type Notifier interface {
	Send(ctx context.Context, text string)
}

const (
	TaskSync   = "sync"
	TaskScan   = "scan"
	TaskReport = "report"
)

const reportSampleSize = 5

type Jobs struct {
	st     *state.State
	shop   Shop
	notify Notifier
	now    func() time.Time

	mu       sync.RWMutex
	supplier Source
	pricing  Pricing
	trends   TrendSource
}

type Option func(*Jobs)

func WithSupplier(src Source) Option { return func(j *Jobs) { j.supplier = src } }
func WithPricing(p Pricing) Option   { return func(j *Jobs) { j.pricing = p } }
func WithTrends(t TrendSource) Option {
	return func(j *Jobs) { j.trends = t }
}

// WithClock replaces time.Now for completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(j *Jobs) {
		if now != nil {
			j.now = now
		}
	}
}

func New(st *state.State, shop Shop, notify Notifier, opts ...Option) *Jobs {
	j := &Jobs{
		st:       st,
		shop:     shop,
		notify:   notify,
		now:      time.Now,
		supplier: LocalSource{Delay: time.Second},
		pricing:  Pricing{Margin: 0.20, Decimals: 2},
		trends:   StubTrends{Delay: time.Second},
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Apply swaps the supplier and pricing used by subsequent syncs.
func (j *Jobs) Apply(src Source, p Pricing) {
	j.mu.Lock()
	j.supplier = src
	j.pricing = p
	j.mu.Unlock()
}

// Register adds the three tasks to reg.
func (j *Jobs) Register(reg *engine.Registry) error {
	for name, fn := range map[string]engine.Func{
		TaskSync:   j.Sync,
		TaskScan:   j.Scan,
		TaskReport: j.Report,
	} {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// guard runs body and converts an error or panic into one ERROR entry.
func (j *Jobs) guard(failMsg string, body func() (engine.Result, error), onFail func()) (res engine.Result) {
	defer func() {
		if r := recover(); r != nil {
			j.st.Error(failMsg, fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack()))
			res = engine.Result{OK: false, Detail: fmt.Sprint(r)}
			if onFail != nil {
				onFail()
			}
		}
	}()

	res, err := body()
	if err != nil {
		j.st.Error(failMsg, fmt.Sprintf("%v\n\n%s", err, debug.Stack()))
		if onFail != nil {
			onFail()
		}
		return engine.Result{OK: false, Detail: err.Error()}
	}
	return res
}

// Sync prices the supplier catalog and creates each item in the store.
func (j *Jobs) Sync(ctx context.Context) engine.Result {
	return j.guard("Shopify sync failure", func() (engine.Result, error) {
		return j.sync(ctx)
	}, func() {
		j.notify.Send(context.WithoutCancel(ctx), "⚠️ Whoten Sync failed. Check logs.")
	})
}

func (j *Jobs) sync(ctx context.Context) (engine.Result, error) {
	j.st.Info("Shopify sync started", nil)
	j.mu.RLock()
	src, pricing := j.supplier, j.pricing
	j.mu.RUnlock()

	j.st.Info("Supplier scan started", nil)
	items, err := src.Fetch(ctx)
	if err != nil {
		return engine.Result{}, fmt.Errorf("supplier scan: %w", err)
	}
	j.st.Info("Supplier scan completed", map[string]any{"items": len(items)})

	created := 0
	for _, it := range items {
		p := shopify.Product{
			Title:    it.Title,
			BodyHTML: "<strong>Auto-imported</strong> — SKU: " + it.SKU,
			Variants: []shopify.Variant{{
				SKU:                 it.SKU,
				Price:               pricing.Format(pricing.Price(it.Cost)),
				InventoryQuantity:   it.Inventory,
				InventoryManagement: "shopify",
			}},
		}
		if j.shop.UpsertProduct(ctx, p) != nil {
			created++
		}
	}

	j.st.MarkRun(state.KindSync, j.now())
	msg := fmt.Sprintf("Sync complete: %d items processed", created)
	j.st.Info(msg, nil)
	j.notify.Send(ctx, "🛠️ Whoten Sync: "+msg)
	return engine.Result{OK: true, Processed: created, Items: len(items), Detail: msg}, nil
}

// Scan runs one market scan.
func (j *Jobs) Scan(ctx context.Context) engine.Result {
	return j.guard("Market scan failure", func() (engine.Result, error) {
		j.st.Info("Market scan started", nil)
		j.mu.RLock()
		trends := j.trends
		j.mu.RUnlock()
		if err := trends.Scan(ctx); err != nil {
			return engine.Result{}, fmt.Errorf("market scan: %w", err)
		}
		j.st.MarkRun(state.KindScan, j.now())
		j.st.Info("Market scan completed", nil)
		return engine.Result{OK: true, Detail: "scan complete"}, nil
	}, nil)
}

// Report sends the daily summary.
func (j *Jobs) Report(ctx context.Context) engine.Result {
	return j.guard("Report failure", func() (engine.Result, error) {
		j.st.Info("Daily report composing", nil)
		count := 0
		if j.shop.Configured() {
			count = len(j.shop.ListProducts(ctx, reportSampleSize))
		}
		last := j.st.LastRuns()
		summary := fmt.Sprintf("📊 Daily Report\nProducts (sample fetched): %d\nLast Sync: %s\nLast Scan: %s",
			count, FormatTime(last.Sync), FormatTime(last.Scan))
		j.notify.Send(ctx, summary)
		j.st.MarkRun(state.KindReport, j.now())
		j.st.Info("Daily report sent", nil)
		return engine.Result{OK: true, Items: count, Detail: "report sent"}, nil
	}, nil)
}

// FormatTime renders a last-run time for humans; the zero time is "never".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}
