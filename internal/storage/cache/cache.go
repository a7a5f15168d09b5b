// Package cache layers a read-through, write-invalidate cache over the
// entity repositories. Single-entity lookups and the by-parent list lookups
// are cached; paginated listings always hit the database, and every mutation
// invalidates the keys it could have changed. Status operations are never
// cached: a revocation must be visible on the next read.
package cache

import (
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/opencreds/badgestore/internal/logging"
)

// Key prefixes. One shared store keeps cross-entity invalidation (cascade
// deletes) a prefix sweep instead of a cross-cache protocol.
const (
	keyIssuer                 = "issuer:"
	keyBadgeClass             = "badgeClass:"
	keyAssertion              = "assertion:"
	keyBadgeClassesByIssuer   = "badgeClasses:byIssuer:"
	keyAssertionsByIssuer     = "assertions:byIssuer:"
	keyAssertionsByBadgeClass = "assertions:byBadgeClass:"
	keyAssertionsByRecipient  = "assertions:byRecipient:"
)

// Store is the shared TTL cache behind the repository decorators.
type Store struct {
	c   *ttlcache.Cache[string, any]
	log *logging.Logger
}

// NewStore creates the shared cache. A non-positive ttl keeps entries until
// they are invalidated. Expired entries are reaped by a background goroutine
// until Stop is called.
func NewStore(ttl time.Duration, log *logging.Logger) *Store {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	c := ttlcache.New[string, any](
		ttlcache.WithTTL[string, any](ttl),
		ttlcache.WithDisableTouchOnHit[string, any](),
	)
	go c.Start()
	return &Store{c: c, log: log.Named("cache")}
}

// Stop halts the expiration reaper.
func (s *Store) Stop() {
	s.c.Stop()
}

func (s *Store) get(key string) (any, bool) {
	item := s.c.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (s *Store) set(key string, v any) {
	s.c.Set(key, v, ttlcache.DefaultTTL)
}

func (s *Store) delete(keys ...string) {
	for _, k := range keys {
		s.c.Delete(k)
	}
}

// deletePrefix sweeps every key under the given prefixes. Used for cascade
// invalidation, where the database removed rows we cannot enumerate.
func (s *Store) deletePrefix(prefixes ...string) {
	var doomed []string
	s.c.Range(func(item *ttlcache.Item[string, any]) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(item.Key(), p) {
				doomed = append(doomed, item.Key())
				break
			}
		}
		return true
	})
	for _, k := range doomed {
		s.c.Delete(k)
	}
	if len(doomed) > 0 {
		s.log.Debug("cascade invalidation", zap.Int("keys", len(doomed)))
	}
}

// getAs is the typed read helper for the decorators.
func getAs[T any](s *Store, key string) (T, bool) {
	var zero T
	v, ok := s.get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		// Should not happen; treat as a miss and let the read repopulate.
		s.delete(key)
		return zero, false
	}
	return typed, true
}
