package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/metrics"
)

// maxCandidates is how many teachers a match offers back to the caller.
const maxCandidates = 3

// DoubtStore persists doubts. Assign must only succeed while the doubt is
// pending and returns domain.ErrDoubtNotPending otherwise.
type DoubtStore interface {
	Create(ctx context.Context, doubt domain.Doubt) (domain.Doubt, error)
	Get(ctx context.Context, id string) (domain.Doubt, error)
	Assign(ctx context.Context, id, teacherID string) (domain.Doubt, error)
	Resolve(ctx context.Context, id string) (domain.Doubt, error)
	ListByStatus(ctx context.Context, status domain.DoubtStatus) ([]domain.Doubt, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]domain.Doubt, error)
}

// AvailabilityIndex is the online-teacher view consulted by the matcher.
type AvailabilityIndex interface {
	Register(teacherID string, profile domain.TeacherAvailability)
	Unregister(teacherID string)
	UpdateRating(teacherID string, rating float64, solvedCount int)
	FindBySubjectAndSubcategory(subject, subcategory string) []domain.TeacherAvailability
	FindBySubject(subject string) []domain.TeacherAvailability
}

// UserNotifier pushes an event to every connection of one user.
type UserNotifier interface {
	NotifyUser(userID string, event domain.Outbound)
}

// ChannelPublisher pushes an event to every connection subscribed to a
// channel.
type ChannelPublisher interface {
	Publish(channel string, event domain.Outbound)
}

// DoubtChannel names the channel carrying a doubt's chat.
func DoubtChannel(doubtID string) string {
	return "doubt:" + doubtID
}

// DoubtService runs the doubt workflow: submission, matching and resolution.
type DoubtService struct {
	doubts   DoubtStore
	index    AvailabilityIndex
	notifier UserNotifier
	channels ChannelPublisher
	log      zerolog.Logger
	now      func() time.Time
}

// DoubtOption configures a DoubtService.
type DoubtOption func(*DoubtService)

// WithDoubtLogger sets the service logger.
func WithDoubtLogger(l zerolog.Logger) DoubtOption {
	return func(s *DoubtService) { s.log = l }
}

// WithDoubtChannels makes status changes visible in the doubt's chat.
func WithDoubtChannels(p ChannelPublisher) DoubtOption {
	return func(s *DoubtService) { s.channels = p }
}

// WithDoubtClock replaces time.Now, for tests.
func WithDoubtClock(now func() time.Time) DoubtOption {
	return func(s *DoubtService) { s.now = now }
}

func NewDoubtService(doubts DoubtStore, index AvailabilityIndex, notifier UserNotifier, opts ...DoubtOption) *DoubtService {
	s := &DoubtService{
		doubts:   doubts,
		index:    index,
		notifier: notifier,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores a new pending doubt.
func (s *DoubtService) Submit(ctx context.Context, studentID, content, subject, subcategory string) (domain.Doubt, error) {
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(content) == "" || strings.TrimSpace(subject) == "" {
		return domain.Doubt{}, fmt.Errorf("%w: student, content and subject are required", domain.ErrInvalidRequest)
	}
	now := s.now().UTC()
	doubt, err := s.doubts.Create(ctx, domain.Doubt{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		Content:     content,
		Subject:     strings.TrimSpace(subject),
		Subcategory: strings.TrimSpace(subcategory),
		Status:      domain.DoubtPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Doubt{}, err
	}
	s.log.Info().Str("doubt_id", doubt.ID).Str("subject", doubt.Subject).Msg("doubt submitted")
	return doubt, nil
}

// Match routes a pending doubt to the best online teacher. Exact
// subject/subcategory matches are preferred; only when none exist are
// subject-only matches considered. An empty result is not an error: the doubt
// stays pending and the caller falls back to the AI answer path.
func (s *DoubtService) Match(ctx context.Context, doubtID string) (domain.MatchResult, error) {
	doubt, err := s.doubts.Get(ctx, doubtID)
	if err != nil {
		return domain.MatchResult{}, err
	}
	if doubt.Status != domain.DoubtPending {
		return existingAssignment(doubt), nil
	}

	outcome := domain.MatchExact
	candidates := s.index.FindBySubjectAndSubcategory(doubt.Subject, doubt.Subcategory)
	if len(candidates) == 0 {
		outcome = domain.MatchSubject
		candidates = s.index.FindBySubject(doubt.Subject)
	}
	if len(candidates) == 0 {
		metrics.RecordMatch(string(domain.MatchNone))
		s.log.Info().Str("doubt_id", doubtID).Msg("no online teacher found, doubt remains pending")
		return domain.MatchResult{DoubtID: doubtID, Outcome: domain.MatchNone}, nil
	}

	ranked := RankCandidates(candidates)
	assigned, err := s.doubts.Assign(ctx, doubtID, ranked[0].TeacherID)
	if errors.Is(err, domain.ErrDoubtNotPending) {
		// Lost a race with a concurrent match; that one already notified.
		current, getErr := s.doubts.Get(ctx, doubtID)
		if getErr != nil {
			return domain.MatchResult{}, getErr
		}
		return existingAssignment(current), nil
	}
	if err != nil {
		return domain.MatchResult{}, err
	}

	metrics.RecordMatch(string(outcome))
	s.notifier.NotifyUser(assigned.AssignedTeacher, domain.NewDoubt{
		DoubtID: doubtID,
		Message: "A new doubt has been assigned to you",
	})
	s.log.Info().
		Str("doubt_id", doubtID).
		Str("teacher_id", assigned.AssignedTeacher).
		Str("outcome", string(outcome)).
		Msg("doubt assigned")

	return domain.MatchResult{
		DoubtID:         doubtID,
		Outcome:         outcome,
		AssignedTeacher: assigned.AssignedTeacher,
		Candidates:      ranked,
	}, nil
}

// RankCandidates orders teachers by rating, then solved count (both
// descending) and returns at most three. Teacher id breaks remaining ties so
// the binding assignment is deterministic.
func RankCandidates(candidates []domain.TeacherAvailability) []domain.TeacherAvailability {
	ranked := append([]domain.TeacherAvailability(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Rating != ranked[j].Rating {
			return ranked[i].Rating > ranked[j].Rating
		}
		if ranked[i].SolvedCount != ranked[j].SolvedCount {
			return ranked[i].SolvedCount > ranked[j].SolvedCount
		}
		return ranked[i].TeacherID < ranked[j].TeacherID
	})
	if len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}
	return ranked
}

func existingAssignment(doubt domain.Doubt) domain.MatchResult {
	return domain.MatchResult{
		DoubtID:         doubt.ID,
		Outcome:         domain.MatchExisting,
		AssignedTeacher: doubt.AssignedTeacher,
	}
}

// Get returns one doubt.
func (s *DoubtService) Get(ctx context.Context, doubtID string) (domain.Doubt, error) {
	return s.doubts.Get(ctx, doubtID)
}

// Resolve marks a doubt as resolved on behalf of its student or its assigned
// teacher and announces the change in the doubt's chat.
func (s *DoubtService) Resolve(ctx context.Context, doubtID, userID string, role domain.Role) (domain.Doubt, error) {
	current, err := s.doubts.Get(ctx, doubtID)
	if err != nil {
		return domain.Doubt{}, err
	}
	if !current.HasParticipant(userID, role) {
		return domain.Doubt{}, fmt.Errorf("%w: only the doubt's student or assigned teacher may resolve it", domain.ErrUnauthorized)
	}
	doubt, err := s.doubts.Resolve(ctx, doubtID)
	if err != nil {
		return domain.Doubt{}, err
	}
	if s.channels != nil {
		s.channels.Publish(DoubtChannel(doubtID), domain.DoubtUpdated{DoubtID: doubtID, Status: doubt.Status})
	}
	s.log.Info().Str("doubt_id", doubtID).Str("resolved_by", userID).Msg("doubt resolved")
	return doubt, nil
}

// Pending lists doubts still waiting for a teacher.
func (s *DoubtService) Pending(ctx context.Context) ([]domain.Doubt, error) {
	return s.doubts.ListByStatus(ctx, domain.DoubtPending)
}

// AssignedTo lists the doubts bound to a teacher.
func (s *DoubtService) AssignedTo(ctx context.Context, teacherID string) ([]domain.Doubt, error) {
	return s.doubts.ListByTeacher(ctx, teacherID)
}

// GoOnline makes a teacher available for matching.
func (s *DoubtService) GoOnline(profile domain.TeacherAvailability) error {
	if profile.TeacherID == "" || profile.Subject == "" {
		return fmt.Errorf("%w: teacher id and subject are required", domain.ErrInvalidRequest)
	}
	if err := validateRating(profile.Rating, profile.SolvedCount); err != nil {
		return err
	}
	s.index.Register(profile.TeacherID, profile)
	s.log.Info().Str("teacher_id", profile.TeacherID).Str("subject", profile.Subject).Msg("teacher online")
	return nil
}

// GoOffline removes a teacher from matching.
func (s *DoubtService) GoOffline(teacherID string) {
	s.index.Unregister(teacherID)
	s.log.Info().Str("teacher_id", teacherID).Msg("teacher offline")
}

// UpdateRating refreshes the cached rating of an online teacher.
func (s *DoubtService) UpdateRating(teacherID string, rating float64, solvedCount int) error {
	if err := validateRating(rating, solvedCount); err != nil {
		return err
	}
	s.index.UpdateRating(teacherID, rating, solvedCount)
	return nil
}

func validateRating(rating float64, solvedCount int) error {
	if math.IsNaN(rating) || rating < 0 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 0 and 5", domain.ErrInvalidRequest)
	}
	if solvedCount < 0 {
		return fmt.Errorf("%w: solved count must not be negative", domain.ErrInvalidRequest)
	}
	return nil
}
