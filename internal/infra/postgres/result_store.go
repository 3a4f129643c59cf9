package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"tutor-live-service/internal/domain"
)

type quizResultModel struct {
	bun.BaseModel `bun:"table:quiz_results,alias:qr"`

	ID          int64                 `bun:"id,pk,autoincrement"`
	RoomID      string                `bun:"room_id,notnull"`
	OwnerID     string                `bun:"owner_id,notnull"`
	EndedEarly  bool                  `bun:"ended_early,notnull"`
	Results     []domain.RankedResult `bun:"results,type:jsonb,notnull"`
	PublishedAt time.Time             `bun:"published_at,notnull"`
}

func (m quizResultModel) record() domain.ResultRecord {
	return domain.ResultRecord{
		RoomID:      m.RoomID,
		OwnerID:     m.OwnerID,
		EndedEarly:  m.EndedEarly,
		Results:     m.Results,
		PublishedAt: m.PublishedAt.UTC(),
	}
}

// ResultStore keeps every published scoreboard in quiz_results. Saving the
// same record twice leaves one row.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) SaveResult(ctx context.Context, record domain.ResultRecord) error {
	model := &quizResultModel{
		RoomID:      record.RoomID,
		OwnerID:     record.OwnerID,
		EndedEarly:  record.EndedEarly,
		Results:     record.Results,
		PublishedAt: record.PublishedAt,
	}
	if model.Results == nil {
		model.Results = []domain.RankedResult{}
	}
	if model.PublishedAt.IsZero() {
		model.PublishedAt = time.Now().UTC()
	}
	// A redelivered record is already stored; (room_id, published_at) is unique.
	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (room_id, published_at) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert quiz result: %w", err)
	}
	return nil
}

// GetResult returns the latest scoreboard published for roomID.
func (s *ResultStore) GetResult(ctx context.Context, roomID string) (domain.ResultRecord, error) {
	var model quizResultModel
	err := s.db.NewSelect().
		Model(&model).
		Where("room_id = ?", roomID).
		Order("published_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ResultRecord{}, domain.ErrResultsNotFound
	}
	if err != nil {
		return domain.ResultRecord{}, fmt.Errorf("load quiz result: %w", err)
	}
	return model.record(), nil
}

// ListResults returns every record, most recently published first.
func (s *ResultStore) ListResults(ctx context.Context) ([]domain.ResultRecord, error) {
	var models []quizResultModel
	if err := s.db.NewSelect().Model(&models).Order("published_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list quiz results: %w", err)
	}
	out := make([]domain.ResultRecord, len(models))
	for i, m := range models {
		out[i] = m.record()
	}
	return out, nil
}
