package app

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whoten/internal/config"
	"whoten/internal/storage"
	"whoten/internal/task/engine"
)

func lookup(env map[string]string) config.LookupFunc {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func newTestApp(t *testing.T, env map[string]string) *App {
	t.Helper()
	base := map[string]string{
		config.KeyHTTPAddr:      "127.0.0.1:0",
		config.KeyLogLevel:      "error",
		config.KeySessionSecret: "test-secret",
	}
	for k, v := range env {
		base[k] = v
	}
	a, err := New(Options{
		ConfigPath: filepath.Join(t.TempDir(), "absent.env"),
		Lookup:     lookup(base),
	})
	require.NoError(t, err)
	return a
}

func TestStartServesAndStops(t *testing.T) {
	a := newTestApp(t, map[string]string{config.KeyMetricsEnabled: "true"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	require.Error(t, a.Start(ctx), "second start is rejected")

	base := "http://" + a.Addr()
	readHealth := func() map[string]any {
		resp, err := http.Get(base + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		var m map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
		return m
	}

	m := readHealth()
	assert.Equal(t, true, m["ok"])
	assert.Equal(t, false, m["shopify_configured"])
	assert.Equal(t, "log", m["notifier"])

	// Interval schedulers run once right away.
	require.Eventually(t, func() bool {
		h := readHealth()
		return h["last_sync"] != nil && h["last_scan"] != nil
	}, 10*time.Second, 100*time.Millisecond)
	assert.Nil(t, readHealth()["last_report"])

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	require.NoError(t, a.Stop(sctx))

	select {
	case <-a.Done():
	default:
		t.Fatal("app not done after Stop")
	}
	assert.NoError(t, a.Err())

	_, err = http.Get(base + "/health")
	assert.Error(t, err, "listener is closed")
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	first := newTestApp(t, nil)
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop(context.Background())

	second := newTestApp(t, map[string]string{config.KeyHTTPAddr: first.Addr()})
	defer second.Close()
	assert.ErrorContains(t, second.Start(context.Background()), "listen")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Options{
		ConfigPath: filepath.Join(t.TempDir(), "absent.env"),
		Lookup:     lookup(map[string]string{config.KeyStorageDriver: "sqlite"}),
	})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunOncePersistsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	a := newTestApp(t, map[string]string{
		config.KeyStorageDriver: "file",
		config.KeyStoragePath:   path,
	})

	res, err := a.RunOnce(context.Background(), "scan")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, a.State().LastRuns().Scan.IsZero())

	_, err = a.RunOnce(context.Background(), "restock")
	assert.ErrorIs(t, err, engine.ErrUnknownTask)

	runs, err := a.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "scan", runs[0].Task)
	assert.Equal(t, string(engine.TriggerCLI), runs[0].Trigger)
	assert.True(t, runs[0].OK)
	a.Close()

	// A fresh process reads the same history back.
	b := newTestApp(t, map[string]string{
		config.KeyStorageDriver: "file",
		config.KeyStoragePath:   path,
	})
	defer b.Close()
	runs, err = b.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecentRunsWithoutStorage(t *testing.T) {
	a := newTestApp(t, nil)
	defer a.Close()
	_, err := a.RecentRuns(context.Background(), 5)
	assert.ErrorIs(t, err, storage.ErrDisabled)
}

func TestApplyPushesReloadedConfig(t *testing.T) {
	a := newTestApp(t, nil)
	defer a.Close()

	prev := a.cfgm.Get()
	next := *prev
	next.Telegram.BotToken = "123:abc"
	next.Telegram.ChatID = "42"
	next.Shopify.ShopName = "shop.example"
	next.Shopify.AccessToken = "tok"
	a.apply(prev, &next)

	assert.Equal(t, "telegram", a.notif.Channel())
	assert.True(t, a.shop.Configured())

	// No effective change is a no-op.
	a.apply(&next, &next)
	assert.True(t, a.shop.Configured())
}
