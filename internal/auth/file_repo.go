package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository keeps principals in a JSON array file.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	// Touch file if not exists
	f, err := os.OpenFile(path, os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRepository) Upsert(p Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i, existing := range all {
		if existing.Name == p.Name {
			all[i] = p
			updated = true
			break
		}
	}
	if !updated {
		all = append(all, p)
	}
	return r.saveUnlocked(all)
}

func (r *FileRepository) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	all, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	out := make([]Principal, 0, len(all))
	for _, p := range all {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return r.saveUnlocked(out)
}

func (r *FileRepository) loadUnlocked() ([]Principal, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Principal{}, nil
	}
	var all []Principal
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	return all, nil
}

func (r *FileRepository) saveUnlocked(all []Principal) error {
	f, err := os.OpenFile(r.path, os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(all)
}
