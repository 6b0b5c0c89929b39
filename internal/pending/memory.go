package pending

import (
	"context"
	"sync"
	"time"

	"github.com/dwongdev/defguard/internal/errs"
)

// Memory is an in-process Store for tests and single-node deployments.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu sync.Mutex
	m  map[string]memoryEntry
}

type memoryEntry struct {
	r       Request
	expires time.Time
}

// NewMemory constructs an in-process store with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, m: make(map[string]memoryEntry)}
}

func (s *Memory) Put(_ context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[r.Token] = memoryEntry{r: *r, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *Memory) Get(_ context.Context, token string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[token]
	if !ok || s.now().After(e.expires) {
		delete(s.m, token)
		return nil, errs.ErrExpired
	}
	out := e.r
	return &out, nil
}

func (s *Memory) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, token)
	return nil
}

var _ Store = (*Memory)(nil)
