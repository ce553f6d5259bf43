package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	sessionCookie = "whoten_session"
	sessionTTL    = 24 * time.Hour
)

// sessionStore keeps authenticated session ids in memory. The cookie value is
// "<id>.<mac>" so a forged or truncated id is rejected before the map lookup.
// Sessions do not survive a restart.
type sessionStore struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

func newSessionStore(secret string, ttl time.Duration) *sessionStore {
	if ttl <= 0 {
		ttl = sessionTTL
	}
	return &sessionStore{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		expires: map[string]time.Time{},
	}
}

func (s *sessionStore) sign(id string) string {
	m := hmac.New(sha256.New, s.secret)
	_, _ = m.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

// create opens a session and returns the cookie value.
func (s *sessionStore) create() string {
	id := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	s.expires[id] = now.Add(s.ttl)
	for k, exp := range s.expires {
		if now.After(exp) {
			delete(s.expires, k)
		}
	}
	s.mu.Unlock()
	return id + "." + s.sign(id)
}

func (s *sessionStore) parse(value string) (string, bool) {
	id, mac, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(mac), []byte(s.sign(id))) {
		return "", false
	}
	return id, true
}

// valid reports whether value names a live session.
func (s *sessionStore) valid(value string) bool {
	id, ok := s.parse(value)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[id]
	if !ok {
		return false
	}
	if s.now().After(exp) {
		delete(s.expires, id)
		return false
	}
	return true
}

func (s *sessionStore) destroy(value string) {
	if id, ok := s.parse(value); ok {
		s.mu.Lock()
		delete(s.expires, id)
		s.mu.Unlock()
	}
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}
