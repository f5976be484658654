/*
Package cache holds the default finance book caches.

PURPOSE:
  Status derivation of a multi-book asset needs the company's default
  finance book. Both caches here implement depreciation.BookCache so the
  lookup does not hit the settings store on every status refresh.

IMPLEMENTATIONS:
  Memory  process-local, TTL entries, background cleanup
  Redis   shared between server instances

INVALIDATION:
  The company endpoint calls Invalidate after saving a company. Entries
  also expire after the configured TTL.

SEE ALSO:
  - depreciation/status.go: BookCache, CachedBooks
  - config/config.go: CacheConfig
*/
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/warp/asset-engine/depreciation"
)

const (
	defaultTTL             = 10 * time.Minute
	defaultCleanupInterval = 30 * time.Second
)

type entry struct {
	book      string
	expiresAt time.Time
}

// Memory is an in-process BookCache.
type Memory struct {
	books   sync.Map // company -> *entry
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
	stopCh  chan struct{}
	stopped int32

	hits   int64
	misses int64
}

type MemoryOption func(*Memory)

func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithLogger(logger *zap.Logger) MemoryOption {
	return func(m *Memory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMemory starts a cache with a background cleanup loop. Call Close to
// stop it.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		ttl:    defaultTTL,
		logger: zap.NewNop(),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.cleanupExpired()
	return m
}

func (m *Memory) Get(ctx context.Context, company string) (string, bool) {
	if v, ok := m.books.Load(company); ok {
		e := v.(*entry)
		if m.now().Before(e.expiresAt) {
			atomic.AddInt64(&m.hits, 1)
			return e.book, true
		}
		m.books.Delete(company)
	}
	atomic.AddInt64(&m.misses, 1)
	return "", false
}

func (m *Memory) Set(ctx context.Context, company, book string) {
	m.books.Store(company, &entry{book: book, expiresAt: m.now().Add(m.ttl)})
	m.logger.Debug("cached default finance book",
		zap.String("company", company),
		zap.String("finance_book", book))
}

func (m *Memory) Invalidate(ctx context.Context, company string) error {
	m.books.Delete(company)
	return nil
}

// Close stops the cleanup loop. Safe to call twice.
func (m *Memory) Close() error {
	if atomic.CompareAndSwapInt32(&m.stopped, 0, 1) {
		close(m.stopCh)
	}
	return nil
}

// Stats returns hit and miss counts.
func (m *Memory) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&m.hits), atomic.LoadInt64(&m.misses)
}

func (m *Memory) Count() int {
	n := 0
	m.books.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (m *Memory) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.doCleanup()
		}
	}
}

func (m *Memory) doCleanup() int {
	removed := 0
	now := m.now()
	m.books.Range(func(key, value any) bool {
		if !now.Before(value.(*entry).expiresAt) {
			m.books.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		m.logger.Debug("removed expired finance book entries", zap.Int("removed", removed))
	}
	return removed
}

var _ depreciation.BookCache = (*Memory)(nil)
