package twofactor

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps sessions in an in-process TTL cache. Suitable for
// single-instance deployments and tests.
type MemoryStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, Session]
}

// NewMemoryStore builds a memory-backed session store and starts its
// expiry janitor.
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, Session](DefaultSessionTTL),
		ttlcache.WithDisableTouchOnHit[string, Session](),
	)
	go cache.Start()

	return &MemoryStore{cache: cache}
}

func (m *MemoryStore) Put(ctx context.Context, s Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}
	m.cache.Set(s.Token, s, ttl)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, token string) (Session, error) {
	item := m.cache.Get(token)
	if item == nil {
		return Session{}, ErrSessionNotFound
	}
	return item.Value(), nil
}

func (m *MemoryStore) Update(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cache.Get(s.Token) == nil {
		return ErrSessionNotFound
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		m.cache.Delete(s.Token)
		return ErrSessionExpired
	}
	m.cache.Set(s.Token, s, ttl)
	return nil
}

func (m *MemoryStore) Consume(ctx context.Context, token string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.cache.Get(token)
	if item == nil {
		return Session{}, ErrSessionNotFound
	}
	m.cache.Delete(token)
	return item.Value(), nil
}

func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.cache.Delete(token)
	return nil
}

func (m *MemoryStore) Close() error {
	m.cache.Stop()
	return nil
}
