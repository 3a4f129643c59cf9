package memory

import (
	"context"
	"sort"
	"sync"

	"tutor-live-service/internal/domain"
)

// ResultStore keeps published result records in process memory.
type ResultStore struct {
	mu      sync.RWMutex
	records map[string]domain.ResultRecord
}

func NewResultStore() *ResultStore {
	return &ResultStore{records: make(map[string]domain.ResultRecord)}
}

func (s *ResultStore) SaveResult(_ context.Context, record domain.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.RoomID] = record
	return nil
}

func (s *ResultStore) GetResult(_ context.Context, roomID string) (domain.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[roomID]
	if !ok {
		return domain.ResultRecord{}, domain.ErrResultsNotFound
	}
	return record, nil
}

// ListResults returns every record, most recently published first.
func (s *ResultStore) ListResults(_ context.Context) ([]domain.ResultRecord, error) {
	s.mu.RLock()
	out := make([]domain.ResultRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return out, nil
}
