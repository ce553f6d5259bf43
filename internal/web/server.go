// Package web serves the PIN-gated dashboard, the manual task triggers and
// the unauthenticated health and metrics endpoints.
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"whoten/internal/config"
	"whoten/internal/state"
	"whoten/internal/task/engine"
	"whoten/internal/task/scheduler"
	logx "whoten/pkg/logx"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	dashboardLogLimit = 200
	dashboardRunLimit = 20
	timeLayout        = "2006-01-02 15:04:05"
)

type ShopStatus interface{ Configured() bool }

type NotifierStatus interface{ Channel() string }

type Schedules interface {
	Snapshot() []scheduler.ScheduleInfo
}

// Deps are the collaborators the handlers read from. Config is called per
// request so reloads (PIN, environment summary) show up immediately.
type Deps struct {
	State     *state.State
	Registry  *engine.Registry
	Schedules Schedules
	Shop      ShopStatus
	Notifier  NotifierStatus
	Config    func() *config.Config
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	Log     logx.Logger
}

type Server struct {
	d        Deps
	log      logx.Logger
	sessions *sessionStore
	tmpl     *template.Template
	mux      *http.ServeMux
}

func New(d Deps) (*Server, error) {
	if d.State == nil || d.Registry == nil || d.Config == nil || d.Shop == nil || d.Notifier == nil {
		return nil, errors.New("web: state, registry, config, shop and notifier are required")
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	tmpl, err := template.New("web").Funcs(template.FuncMap{
		"when":  formatWhen,
		"stamp": func(t time.Time) string { return t.Format(timeLayout) },
		"dur":   func(d time.Duration) string { return d.Round(time.Millisecond).String() },
		"data":  formatData,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: templates: %w", err)
	}

	s := &Server{
		d:        d,
		log:      d.Log.With(logx.String("comp", "web")),
		sessions: newSessionStore(d.Config().SessionSecret, sessionTTL),
		tmpl:     tmpl,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /login", s.loginPage)
	s.mux.HandleFunc("POST /login", s.login)
	s.mux.HandleFunc("GET /logout", s.logout)
	s.mux.HandleFunc("GET /health", s.health)
	s.mux.HandleFunc("GET /{$}", s.requireLogin(s.dashboard))
	for _, name := range []string{scheduler.TaskSync, scheduler.TaskScan, scheduler.TaskReport} {
		s.mux.HandleFunc("POST /"+name, s.requireLogin(s.trigger(name)))
	}
	if s.d.Metrics != nil {
		s.mux.Handle("GET /metrics", s.d.Metrics)
	}
}

func (s *Server) Handler() http.Handler { return s.mux }

// Serve runs the HTTP server on ln until ctx is done, then shuts it down
// within shutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http server started", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(sctx)
	<-errCh
	s.log.Info("http server stopped")
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *Server) authenticated(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	return err == nil && s.sessions.valid(c.Value)
}

func (s *Server) requireLogin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		h(w, r)
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("template render failed", logx.String("template", name), logx.Err(err))
	}
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, "login", struct{ Failed bool }{})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	pin := strings.TrimSpace(r.PostFormValue("pin"))
	want := s.d.Config().DashboardPIN
	if pin == "" || subtle.ConstantTimeCompare([]byte(pin), []byte(want)) != 1 {
		s.d.State.Warn("Login failed", nil)
		s.render(w, "login", struct{ Failed bool }{true})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.sessions.create(),
		Path:     "/",
		MaxAge:   int(sessionTTL / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	s.d.State.Info("Login success", nil)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.destroy(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	http.Redirect(w, r, "/login", http.StatusFound)
}

type dashboardView struct {
	LastSync   string
	LastScan   string
	LastReport string
	Notifier   string
	Shopify    string
	Env        []config.Summary
	Schedules  []scheduler.ScheduleInfo
	Runs       []engine.HistoryItem
	Logs       []state.Entry
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	last := s.d.State.LastRuns()
	v := dashboardView{
		LastSync:   formatWhen(last.Sync),
		LastScan:   formatWhen(last.Scan),
		LastReport: formatWhen(last.Report),
		Notifier:   "Logs only",
		Shopify:    "Missing creds",
		Env:        s.d.Config().Summary(),
		Runs:       s.d.Registry.History(dashboardRunLimit),
		Logs:       s.d.State.Recent(dashboardLogLimit),
	}
	if s.d.Notifier.Channel() == "telegram" {
		v.Notifier = "Telegram"
	}
	if s.d.Shop.Configured() {
		v.Shopify = "OK"
	}
	if s.d.Schedules != nil {
		v.Schedules = s.d.Schedules.Snapshot()
	}
	s.render(w, "dashboard", v)
}

type healthView struct {
	OK                bool    `json:"ok"`
	LastSync          *string `json:"last_sync"`
	LastScan          *string `json:"last_scan"`
	LastReport        *string `json:"last_report"`
	ShopifyConfigured bool    `json:"shopify_configured"`
	Notifier          string  `json:"notifier"`
}

func rfc3339OrNil(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := t.Format(time.RFC3339)
	return &v
}

// health never fails; it reports whatever is currently known.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	last := s.d.State.LastRuns()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(healthView{
		OK:                true,
		LastSync:          rfc3339OrNil(last.Sync),
		LastScan:          rfc3339OrNil(last.Scan),
		LastReport:        rfc3339OrNil(last.Report),
		ShopifyConfigured: s.d.Shop.Configured(),
		Notifier:          s.d.Notifier.Channel(),
	})
}

// trigger runs the task on the request goroutine. A client disconnect does
// not cancel the run.
func (s *Server) trigger(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.d.Registry.Run(context.WithoutCancel(r.Context()), name, engine.TriggerManual)
		if err != nil {
			s.log.Warn("manual trigger failed", logx.String("task", name), logx.Err(err))
		} else {
			s.log.Debug("manual trigger finished", logx.String("task", name), logx.Bool("ok", res.OK))
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(timeLayout)
}

func formatData(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
