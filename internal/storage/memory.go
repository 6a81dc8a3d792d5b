package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/codegrant/internal/log"
)

// Ensure MemoryStorage implements required interfaces
var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps everything in process memory. Each map has its own
// lock so token reads never wait on code redemption.
type MemoryStorage struct {
	codes      map[string]*AuthorizationCode
	codesMutex sync.Mutex

	tokens      map[string]*AccessToken
	tokensMutex sync.RWMutex

	pending      map[string]*PendingAuthorization
	pendingMutex sync.Mutex

	now func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		codes:   make(map[string]*AuthorizationCode),
		tokens:  make(map[string]*AccessToken),
		pending: make(map[string]*PendingAuthorization),
		now:     time.Now,
	}
}

// SetClock replaces the clock used by CleanupExpired
func (s *MemoryStorage) SetClock(now func() time.Time) {
	s.now = now
}

func (s *MemoryStorage) PutCode(_ context.Context, code *AuthorizationCode) error {
	c := *code
	s.codesMutex.Lock()
	s.codes[code.Code] = &c
	s.codesMutex.Unlock()

	log.LogTraceWithFields("storage", "Stored authorization code", map[string]any{
		"code":      log.Redact(code.Code),
		"client_id": code.ClientID,
	})
	return nil
}

func (s *MemoryStorage) GetCode(_ context.Context, code string) (*AuthorizationCode, error) {
	s.codesMutex.Lock()
	defer s.codesMutex.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return nil, ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStorage) DeleteCode(_ context.Context, code string) (bool, error) {
	s.codesMutex.Lock()
	defer s.codesMutex.Unlock()

	if _, ok := s.codes[code]; !ok {
		return false, nil
	}
	delete(s.codes, code)
	return true, nil
}

func (s *MemoryStorage) PutToken(_ context.Context, token *AccessToken) error {
	t := *token
	s.tokensMutex.Lock()
	s.tokens[token.Token] = &t
	s.tokensMutex.Unlock()
	return nil
}

func (s *MemoryStorage) GetToken(_ context.Context, token string) (*AccessToken, error) {
	s.tokensMutex.RLock()
	defer s.tokensMutex.RUnlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStorage) PutPending(_ context.Context, sessionID string, pending *PendingAuthorization) error {
	p := *pending
	s.pendingMutex.Lock()
	s.pending[sessionID] = &p
	s.pendingMutex.Unlock()
	return nil
}

func (s *MemoryStorage) TakePending(_ context.Context, sessionID string) (*PendingAuthorization, error) {
	s.pendingMutex.Lock()
	defer s.pendingMutex.Unlock()

	p, ok := s.pending[sessionID]
	if !ok {
		return nil, ErrPendingNotFound
	}
	delete(s.pending, sessionID)
	return p, nil
}

// CleanupExpired removes expired codes, tokens and pending authorizations
func (s *MemoryStorage) CleanupExpired(_ context.Context) (int, error) {
	now := s.now()
	removed := 0

	s.codesMutex.Lock()
	for k, c := range s.codes {
		if c.IsExpired(now) {
			delete(s.codes, k)
			removed++
		}
	}
	s.codesMutex.Unlock()

	s.tokensMutex.Lock()
	for k, t := range s.tokens {
		if t.IsExpired(now) {
			delete(s.tokens, k)
			removed++
		}
	}
	s.tokensMutex.Unlock()

	s.pendingMutex.Lock()
	for k, p := range s.pending {
		if p.IsExpired(now) {
			delete(s.pending, k)
			removed++
		}
	}
	s.pendingMutex.Unlock()

	return removed, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
