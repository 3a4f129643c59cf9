package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"tutor-live-service/internal/domain"
)

// QuestionStore keeps question sets as JSON under quiz:{roomID}.
type QuestionStore struct {
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionStore(client *redis.Client, ttl time.Duration) *QuestionStore {
	return &QuestionStore{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *QuestionStore) Save(ctx context.Context, roomID string, set domain.QuestionSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode question set: %w", err)
	}
	if err := s.client.Set(ctx, questionKey(roomID), payload, s.ttlWithJitter()).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", questionKey(roomID), err)
	}
	return nil
}

// Load reads a set; concurrent loads of the same room share one round trip.
func (s *QuestionStore) Load(ctx context.Context, roomID string) (domain.QuestionSet, error) {
	result, err, _ := s.sf.Do(roomID, func() (interface{}, error) {
		raw, err := s.client.Get(ctx, questionKey(roomID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
		}
		if err != nil {
			return domain.QuestionSet{}, fmt.Errorf("redis get %s: %w", questionKey(roomID), err)
		}
		var set domain.QuestionSet
		if err := json.Unmarshal(raw, &set); err != nil {
			return domain.QuestionSet{}, fmt.Errorf("decode question set: %w", err)
		}
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (s *QuestionStore) Delete(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, questionKey(roomID)).Err()
}

func questionKey(roomID string) string {
	return "quiz:" + roomID
}

func (s *QuestionStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
