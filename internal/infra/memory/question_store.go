package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tutor-live-service/internal/domain"
)

// QuestionBackend is the durable store behind the cache, e.g. Redis.
type QuestionBackend interface {
	Save(ctx context.Context, roomID string, set domain.QuestionSet) error
	Load(ctx context.Context, roomID string) (domain.QuestionSet, error)
}

// QuestionStore caches question sets with a TTL in front of an optional
// backend. Without a backend it is the only copy, and entries still expire.
type QuestionStore struct {
	backend QuestionBackend
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionStore(backend QuestionBackend, ttl time.Duration) *QuestionStore {
	return &QuestionStore{
		backend: backend,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedSet),
	}
}

// Save writes through to the backend and refreshes the cache.
func (s *QuestionStore) Save(ctx context.Context, roomID string, set domain.QuestionSet) error {
	if s.backend != nil {
		if err := s.backend.Save(ctx, roomID, set); err != nil {
			return err
		}
	}
	s.put(roomID, set, s.clock())
	return nil
}

// Load returns the cached set, loading it once from the backend on a miss.
func (s *QuestionStore) Load(ctx context.Context, roomID string) (domain.QuestionSet, error) {
	if set, ok := s.lookup(roomID, s.clock()); ok {
		return set, nil
	}
	if s.backend == nil {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}

	result, err, _ := s.sf.Do(roomID, func() (interface{}, error) {
		now := s.clock()
		if set, ok := s.lookup(roomID, now); ok {
			return set, nil
		}
		set, err := s.backend.Load(ctx, roomID)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		s.put(roomID, set, now)
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

// Delete evicts a set from the cache only.
func (s *QuestionStore) Delete(roomID string) {
	s.mu.Lock()
	delete(s.cache, roomID)
	s.mu.Unlock()
}

func (s *QuestionStore) lookup(roomID string, now time.Time) (domain.QuestionSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[roomID]
	if !ok || (!entry.expiresAt.IsZero() && !entry.expiresAt.After(now)) {
		return domain.QuestionSet{}, false
	}
	return entry.set, true
}

func (s *QuestionStore) put(roomID string, set domain.QuestionSet, now time.Time) {
	entry := cachedSet{set: set}
	if ttl := s.ttlWithJitter(); ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	s.mu.Lock()
	s.cache[roomID] = entry
	s.mu.Unlock()
}

func (s *QuestionStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
