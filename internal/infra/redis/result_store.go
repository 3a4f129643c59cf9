package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tutor-live-service/internal/domain"
)

// ResultStore keeps the latest published results of a room under
// quiz:result:{roomID} for a limited time.
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	return &ResultStore{client: client, ttl: ttl}
}

func (s *ResultStore) SaveResult(ctx context.Context, record domain.ResultRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode result record: %w", err)
	}
	if err := s.client.Set(ctx, resultKey(record.RoomID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", resultKey(record.RoomID), err)
	}
	return nil
}

func (s *ResultStore) GetResult(ctx context.Context, roomID string) (domain.ResultRecord, error) {
	raw, err := s.client.Get(ctx, resultKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ResultRecord{}, domain.ErrResultsNotFound
	}
	if err != nil {
		return domain.ResultRecord{}, fmt.Errorf("redis get %s: %w", resultKey(roomID), err)
	}
	var record domain.ResultRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.ResultRecord{}, fmt.Errorf("decode result record: %w", err)
	}
	return record, nil
}

func resultKey(roomID string) string {
	return "quiz:result:" + roomID
}
