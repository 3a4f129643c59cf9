package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tutor-live-service/internal/domain"
)

func TestQuestionStoreCachesBackendLoads(t *testing.T) {
	backend := &countingBackend{sets: map[string]domain.QuestionSet{"R1": sampleSet()}}
	store := NewQuestionStore(backend, time.Minute)

	if _, err := store.Load(context.Background(), "R1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := store.Load(context.Background(), "R1"); err != nil {
		t.Fatalf("load 2: %v", err)
	}
	if got := backend.loads.Load(); got != 1 {
		t.Fatalf("expected backend loaded once, got %d", got)
	}
}

func TestQuestionStoreCollapsesConcurrentMisses(t *testing.T) {
	backend := &countingBackend{sets: map[string]domain.QuestionSet{"R1": sampleSet()}, delay: 20 * time.Millisecond}
	store := NewQuestionStore(backend, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Load(context.Background(), "R1"); err != nil {
				t.Errorf("load: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := backend.loads.Load(); got != 1 {
		t.Fatalf("expected a single backend load, got %d", got)
	}
}

func TestQuestionStoreWithoutBackend(t *testing.T) {
	store := NewQuestionStore(nil, time.Minute)
	now := time.Now()
	store.clock = func() time.Time { return now }

	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected ErrQuestionSetNotFound, got %v", err)
	}
	if err := store.Save(context.Background(), "R1", sampleSet()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(context.Background(), "R1")
	if err != nil || got.Total() != 1 {
		t.Fatalf("expected saved set, got %+v err=%v", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Load(context.Background(), "R1"); !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected expired entry, got %v", err)
	}
}

type countingBackend struct {
	mu    sync.Mutex
	sets  map[string]domain.QuestionSet
	delay time.Duration
	loads atomic.Int32
}

func (b *countingBackend) Save(_ context.Context, roomID string, set domain.QuestionSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sets[roomID] = set
	return nil
}

func (b *countingBackend) Load(_ context.Context, roomID string) (domain.QuestionSet, error) {
	b.loads.Add(1)
	time.Sleep(b.delay)
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.sets[roomID]
	if !ok {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	return set, nil
}
