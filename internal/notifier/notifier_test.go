package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"whoten/internal/state"
	logx "whoten/pkg/logx"
)

func TestFallbackToNotice(t *testing.T) {
	t.Parallel()
	st := state.New()
	n := New(Config{BotToken: "tok"}, st, logx.Nop())
	if n.Enabled() || n.Channel() != ChannelLog {
		t.Fatalf("enabled without chat id: channel=%s", n.Channel())
	}
	n.Send(context.Background(), "hello")

	e := st.Recent(1)[0]
	if e.Level != state.LevelNotice || e.Message != "NOTICE: hello" {
		t.Fatalf("entry = %+v", e)
	}
}

type fakeTelegram struct {
	mu       sync.Mutex
	payloads []map[string]any
	fail     bool
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/bottok/sendMessage") {
		http.NotFound(w, r)
		return
	}
	var p map[string]any
	_ = json.NewDecoder(r.Body).Decode(&p)
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	fail := f.fail
	f.mu.Unlock()

	if fail {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":123,"type":"private"},"text":"x"}}`))
}

func TestSendTelegram(t *testing.T) {
	t.Parallel()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	st := state.New()
	n := New(Config{BotToken: "tok", ChatID: "123", APIURL: srv.URL, Timeout: 2 * time.Second, RatePerSec: 50}, st, logx.Nop())
	if n.Channel() != ChannelTelegram {
		t.Fatalf("channel = %s", n.Channel())
	}

	n.Send(context.Background(), "📊 Daily Report")
	if st.Len() != 0 {
		t.Fatalf("unexpected log entries: %+v", st.Entries())
	}
	fake.mu.Lock()
	if len(fake.payloads) != 1 || fake.payloads[0]["chat_id"] != "123" || fake.payloads[0]["text"] != "📊 Daily Report" {
		t.Fatalf("payloads = %+v", fake.payloads)
	}
	fake.fail = true
	fake.mu.Unlock()

	n.Send(context.Background(), "again")
	e := st.Recent(1)[0]
	if e.Level != state.LevelWarn || e.Message != "Telegram send failed" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestTransportErrorIsWarning(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	st := state.New()
	n := New(Config{BotToken: "tok", ChatID: "@ops", APIURL: url, Timeout: time.Second}, st, logx.Nop())
	n.Send(context.Background(), "x")
	if e := st.Recent(1)[0]; e.Level != state.LevelWarn {
		t.Fatalf("entry = %+v", e)
	}
}
