package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"portal-chat/internal/chat"
)

// Transcript is the persisted state of one manager.
type Transcript struct {
	SessionID string         `json:"sessionId,omitempty"`
	Messages  []chat.Message `json:"messages"`
}

type Storage interface {
	// Load reports ok=false when nothing is stored under key.
	Load(key string) (t Transcript, ok bool, err error)
	Save(key string, t Transcript) error
}

// FileStorage keeps one JSON file per key in a directory.
type FileStorage struct {
	dir string
	mu  sync.Mutex
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure transcript dir: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
	if safe == "" {
		safe = "default"
	}
	return filepath.Join(s.dir, safe+".json")
}

func (s *FileStorage) Load(key string) (Transcript, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return Transcript{}, false, nil
	}
	if err != nil {
		return Transcript{}, false, fmt.Errorf("read transcript: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return Transcript{}, false, fmt.Errorf("decode transcript: %w", err)
	}
	return t, true, nil
}

// Save replaces the stored file atomically.
func (s *FileStorage) Save(key string, t Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	p := s.path(key)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return os.Rename(tmp, p)
}
