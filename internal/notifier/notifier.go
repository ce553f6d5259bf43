// Package notifier delivers short operator messages to a Telegram chat.
//
// When the bot token or chat id is missing, messages are written to the
// dashboard log at NOTICE level instead, so nothing is silently dropped.
package notifier

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"whoten/internal/state"
	logx "whoten/pkg/logx"
)

const (
	ChannelTelegram = "telegram"
	ChannelLog      = "log"

	defaultTimeout = 15 * time.Second
)

type Config struct {
	BotToken string
	ChatID   string // numeric id or @channelusername
	// APIURL overrides the Telegram Bot API endpoint.
	APIURL     string
	Timeout    time.Duration
	RatePerSec int
}

// chat is a tele.Recipient for either a numeric id or an @username.
type chat string

func (c chat) Recipient() string { return string(c) }

type Service struct {
	mu      sync.RWMutex
	cfg     Config
	bot     *tele.Bot
	limiter *rate.Limiter

	st  *state.State
	log logx.Logger
}

func New(cfg Config, st *state.State, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{st: st, log: log}
	s.Apply(cfg)
	return s
}

// Apply swaps credentials. An invalid bot setup falls back to log-only delivery.
func (s *Service) Apply(cfg Config) {
	cfg.BotToken = strings.TrimSpace(cfg.BotToken)
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}

	var bot *tele.Bot
	if cfg.BotToken != "" && cfg.ChatID != "" {
		b, err := tele.NewBot(tele.Settings{
			Token:   cfg.BotToken,
			URL:     strings.TrimRight(cfg.APIURL, "/"),
			Client:  &http.Client{Timeout: cfg.Timeout},
			Offline: true,
		})
		if err != nil {
			s.log.Warn("telegram bot init failed; notifications go to logs", logx.Err(err))
		} else {
			bot = b
		}
	}

	s.mu.Lock()
	s.cfg = cfg
	s.bot = bot
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Enabled reports whether messages go to Telegram.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bot != nil
}

// Channel returns "telegram" or "log".
func (s *Service) Channel() string {
	if s.Enabled() {
		return ChannelTelegram
	}
	return ChannelLog
}

// Send delivers text. It never returns an error: failures become WARN entries.
func (s *Service) Send(ctx context.Context, text string) {
	s.mu.RLock()
	bot, to, lim, timeout := s.bot, chat(s.cfg.ChatID), s.limiter, s.cfg.Timeout
	s.mu.RUnlock()

	if bot == nil {
		s.st.Notice("NOTICE: "+text, nil)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	err := lim.Wait(wctx)
	cancel()
	if err != nil {
		s.st.Warn("Telegram send failed", map[string]any{"error": "rate limit wait: " + err.Error()})
		return
	}

	if _, err := bot.Send(to, text, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
		s.st.Warn("Telegram send failed", map[string]any{"error": err.Error()})
		return
	}
	s.log.Debug("notification sent", logx.Int("len", len(text)))
}
