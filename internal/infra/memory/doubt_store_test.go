package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"tutor-live-service/internal/domain"
)

func TestDoubtStoreAssignIsConditional(t *testing.T) {
	store := NewDoubtStore()
	ctx := context.Background()

	doubt, err := store.Create(ctx, domain.Doubt{StudentID: "s1", Content: "limits?", Subject: "Mathematics"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doubt.ID == "" || doubt.Status != domain.DoubtPending {
		t.Fatalf("expected pending doubt with id, got %+v", doubt)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, teacher := range []string{"t1", "t2", "t3", "t4"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := store.Assign(ctx, doubt.ID, id)
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, domain.ErrDoubtNotPending):
				t.Errorf("unexpected error: %v", err)
			}
		}(teacher)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one assignment, got %d", wins.Load())
	}

	got, _ := store.Get(ctx, doubt.ID)
	if got.Status != domain.DoubtAssigned || got.AssignedTeacher == "" {
		t.Fatalf("expected assigned doubt, got %+v", got)
	}
	byTeacher, _ := store.ListByTeacher(ctx, got.AssignedTeacher)
	if len(byTeacher) != 1 {
		t.Fatalf("expected doubt listed for its teacher")
	}
}

func TestDoubtStoreResolveAndLists(t *testing.T) {
	store := NewDoubtStore()
	ctx := context.Background()

	a, _ := store.Create(ctx, domain.Doubt{StudentID: "s1", Content: "a", Subject: "Physics"})
	_, _ = store.Create(ctx, domain.Doubt{StudentID: "s2", Content: "b", Subject: "Physics"})

	if _, err := store.Resolve(ctx, a.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	pending, _ := store.ListByStatus(ctx, domain.DoubtPending)
	if len(pending) != 1 || pending[0].StudentID != "s2" {
		t.Fatalf("expected only s2 pending, got %+v", pending)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
