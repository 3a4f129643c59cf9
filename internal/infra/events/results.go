package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"

	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/metrics"
)

const recorderHandler = "record_quiz_results"

// ResultStore persists published result records. Saving the same record
// twice must leave a single copy.
type ResultStore interface {
	SaveResult(ctx context.Context, record domain.ResultRecord) error
}

// ResultPublisher hands result records to the pub/sub topic.
type ResultPublisher struct {
	publisher message.Publisher
	topic     string
}

func NewResultPublisher(publisher message.Publisher, topic string) *ResultPublisher {
	return &ResultPublisher{publisher: publisher, topic: topic}
}

// Record publishes record as JSON, keyed by room. The publication time is
// fixed here so every redelivery carries the same one.
func (p *ResultPublisher) Record(_ context.Context, record domain.ResultRecord) error {
	if record.PublishedAt.IsZero() {
		record.PublishedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode result record: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("room_id", record.RoomID)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

// RetryPolicy bounds how a failing record is retried before it is nacked.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy backs off from 100ms up to 5s over five retries.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      5,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// ResultRecorder consumes result records and writes each one to every store.
type ResultRecorder struct {
	subscriber message.Subscriber
	topic      string
	stores     []ResultStore
	log        zerolog.Logger
	retry      RetryPolicy

	mu sync.Mutex
	// saved tracks, per message UUID, which stores already hold the record
	// so a retry only touches the stores that failed.
	saved map[string]map[int]struct{}
}

func NewResultRecorder(subscriber message.Subscriber, topic string, log zerolog.Logger, stores ...ResultStore) *ResultRecorder {
	return &ResultRecorder{
		subscriber: subscriber,
		topic:      topic,
		stores:     stores,
		log:        log,
		retry:      DefaultRetryPolicy,
		saved:      make(map[string]map[int]struct{}),
	}
}

// WithRetry replaces the retry policy and returns r.
func (r *ResultRecorder) WithRetry(policy RetryPolicy) *ResultRecorder {
	r.retry = policy
	return r
}

// Run consumes through a watermill router until ctx is cancelled. A failing
// record is retried with backoff; once retries run out it is nacked and the
// transport redelivers it.
func (r *ResultRecorder) Run(ctx context.Context) error {
	logger := NewLoggerAdapter(r.log)
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, logger)
	if err != nil {
		return fmt.Errorf("result router: %w", err)
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      r.retry.MaxRetries,
			InitialInterval: r.retry.InitialInterval,
			MaxInterval:     r.retry.MaxInterval,
			Multiplier:      2,
			Logger:          logger,
		}.Middleware,
	)
	router.AddNoPublisherHandler(recorderHandler, r.topic, r.subscriber, r.handle)
	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("run result router: %w", err)
	}
	return nil
}

func (r *ResultRecorder) handle(msg *message.Message) error {
	var record domain.ResultRecord
	if err := json.Unmarshal(msg.Payload, &record); err != nil {
		metrics.RecordResultRecorded("malformed")
		r.log.Error().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed result record")
		return nil
	}
	if err := r.save(msg.Context(), msg.UUID, record); err != nil {
		metrics.RecordResultRecorded("failed")
		r.log.Error().Err(err).Str("message_uuid", msg.UUID).Msg("failed to record quiz results")
		return err
	}
	metrics.RecordResultRecorded("ok")
	return nil
}

func (r *ResultRecorder) save(ctx context.Context, msgID string, record domain.ResultRecord) error {
	var errs []error
	for i, store := range r.stores {
		if r.isSaved(msgID, i) {
			continue
		}
		if err := store.SaveResult(ctx, record); err != nil {
			errs = append(errs, err)
			continue
		}
		r.markSaved(msgID, i)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	r.forget(msgID)
	r.log.Info().Str("room_id", record.RoomID).Int("results", len(record.Results)).Msg("quiz results recorded")
	return nil
}

func (r *ResultRecorder) isSaved(msgID string, store int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.saved[msgID][store]
	return ok
}

func (r *ResultRecorder) markSaved(msgID string, store int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved[msgID] == nil {
		r.saved[msgID] = make(map[int]struct{})
	}
	r.saved[msgID][store] = struct{}{}
}

func (r *ResultRecorder) forget(msgID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.saved, msgID)
}
