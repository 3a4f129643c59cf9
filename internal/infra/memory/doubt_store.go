package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tutor-live-service/internal/domain"
)

// DoubtStore is an in-memory implementation of app.DoubtStore.
type DoubtStore struct {
	clock func() time.Time

	mu     sync.RWMutex
	doubts map[string]domain.Doubt
}

func NewDoubtStore() *DoubtStore {
	return &DoubtStore{
		clock:  time.Now,
		doubts: make(map[string]domain.Doubt),
	}
}

func (s *DoubtStore) Create(_ context.Context, doubt domain.Doubt) (domain.Doubt, error) {
	if doubt.ID == "" {
		doubt.ID = uuid.NewString()
	}
	if doubt.Status == "" {
		doubt.Status = domain.DoubtPending
	}
	now := s.clock().UTC()
	if doubt.CreatedAt.IsZero() {
		doubt.CreatedAt = now
	}
	doubt.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doubts[doubt.ID] = doubt
	return doubt, nil
}

func (s *DoubtStore) Get(_ context.Context, id string) (domain.Doubt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doubt, ok := s.doubts[id]
	if !ok {
		return domain.Doubt{}, domain.ErrDoubtNotFound
	}
	return doubt, nil
}

// Assign binds a pending doubt to teacherID. Any other status yields
// domain.ErrDoubtNotPending and leaves the doubt untouched.
func (s *DoubtStore) Assign(_ context.Context, id, teacherID string) (domain.Doubt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doubt, ok := s.doubts[id]
	if !ok {
		return domain.Doubt{}, domain.ErrDoubtNotFound
	}
	if doubt.Status != domain.DoubtPending {
		return doubt, domain.ErrDoubtNotPending
	}
	doubt.Status = domain.DoubtAssigned
	doubt.AssignedTeacher = teacherID
	doubt.UpdatedAt = s.clock().UTC()
	s.doubts[id] = doubt
	return doubt, nil
}

func (s *DoubtStore) Resolve(_ context.Context, id string) (domain.Doubt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doubt, ok := s.doubts[id]
	if !ok {
		return domain.Doubt{}, domain.ErrDoubtNotFound
	}
	doubt.Status = domain.DoubtResolved
	doubt.UpdatedAt = s.clock().UTC()
	s.doubts[id] = doubt
	return doubt, nil
}

func (s *DoubtStore) ListByStatus(_ context.Context, status domain.DoubtStatus) ([]domain.Doubt, error) {
	return s.list(func(d domain.Doubt) bool { return d.Status == status }), nil
}

func (s *DoubtStore) ListByTeacher(_ context.Context, teacherID string) ([]domain.Doubt, error) {
	return s.list(func(d domain.Doubt) bool { return d.AssignedTeacher == teacherID }), nil
}

// list returns matching doubts oldest first.
func (s *DoubtStore) list(keep func(domain.Doubt) bool) []domain.Doubt {
	s.mu.RLock()
	out := make([]domain.Doubt, 0, len(s.doubts))
	for _, d := range s.doubts {
		if keep(d) {
			out = append(out, d)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
