package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "whoten/pkg/logx"
)

// fileTail is how many records the file store keeps in memory for RecentRuns.
const fileTail = 500

// fileStore appends runs to <path> as JSON Lines. The newest fileTail records
// are replayed on open and kept in memory.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	f    *os.File
	tail []RunRecord // oldest first
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	tail, err := replayRuns(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("run history replay failed", logx.String("path", path), logx.Err(err))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, f: f, tail: tail}, nil
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("run history file closed")
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.tail = append(s.tail, r)
	if len(s.tail) > fileTail {
		s.tail = append([]RunRecord(nil), s.tail[len(s.tail)-fileTail:]...)
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.tail) {
		limit = len(s.tail)
	}
	out := make([]RunRecord, 0, limit)
	for i := len(s.tail) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.tail[i])
	}
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func replayRuns(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tail []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.ID == "" {
			continue
		}
		tail = append(tail, r)
		if len(tail) > 2*fileTail {
			tail = append([]RunRecord(nil), tail[len(tail)-fileTail:]...)
		}
	}
	if len(tail) > fileTail {
		tail = tail[len(tail)-fileTail:]
	}
	return tail, sc.Err()
}
