// Package auth resolves bearer tokens to portal principals.
package auth

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"
)

// Principal is an authenticated portal identity.
type Principal struct {
	Name string `json:"name"`
	// TokenHash is the hex blake3 digest of the bearer token; raw tokens are never stored.
	TokenHash string `json:"token_hash"`
}

type Repository interface {
	LoadAll() ([]Principal, error)
	Upsert(p Principal) error
	Remove(name string) error
}

type Service struct {
	mu      sync.RWMutex
	repo    Repository
	static  map[string]string
	byToken map[string]Principal
}

// HashToken returns the stored form of a bearer token.
func HashToken(token string) string {
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewWithRepo preloads principals from repo and merges the static name→token pairs.
func NewWithRepo(repo Repository, static map[string]string) (*Service, error) {
	s := &Service{repo: repo, static: static, byToken: make(map[string]Principal)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rebuilds the token table from the repository, picking up grants and
// revocations made by other processes. On error the current table is kept.
func (s *Service) Reload() error {
	byToken := make(map[string]Principal)
	if s.repo != nil {
		principals, err := s.repo.LoadAll()
		if err != nil {
			return fmt.Errorf("load tokens: %w", err)
		}
		for _, p := range principals {
			byToken[p.TokenHash] = p
		}
	}
	for name, token := range s.static {
		if token == "" {
			continue
		}
		p := Principal{Name: name, TokenHash: HashToken(token)}
		byToken[p.TokenHash] = p
	}
	s.mu.Lock()
	s.byToken = byToken
	s.mu.Unlock()
	return nil
}

// Authenticate resolves a raw bearer token.
func (s *Service) Authenticate(token string) (Principal, bool) {
	if token == "" {
		return Principal{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byToken[HashToken(token)]
	return p, ok
}

// Grant binds token to the named principal, replacing its previous token.
func (s *Service) Grant(name, token string) error {
	p := Principal{Name: name, TokenHash: HashToken(token)}
	s.mu.Lock()
	for h, existing := range s.byToken {
		if existing.Name == name {
			delete(s.byToken, h)
		}
	}
	s.byToken[p.TokenHash] = p
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Upsert(p)
	}
	return nil
}

func (s *Service) Revoke(name string) error {
	s.mu.Lock()
	for h, p := range s.byToken {
		if p.Name == name {
			delete(s.byToken, h)
		}
	}
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Remove(name)
	}
	return nil
}

func (s *Service) List() []Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Principal, 0, len(s.byToken))
	for _, p := range s.byToken {
		out = append(out, p)
	}
	return out
}
