package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/metrics"
)

// RoomRegistry maps room codes to live rooms and connection handles to the
// room they are bound to.
type RoomRegistry interface {
	CreateRoom(roomID, ownerID string, set domain.QuestionSet) *Room
	Get(roomID string) (*Room, bool)
	Remove(roomID string)
	RemoveRoom(room *Room) bool
	Exists(roomID string) bool
	Bind(handle, roomID string) (previous string)
	RoomOf(handle string) (string, bool)
	Unbind(handle, roomID string)
	Len() int
}

// QuestionStore keeps question sets by room code.
type QuestionStore interface {
	Save(ctx context.Context, roomID string, set domain.QuestionSet) error
	Load(ctx context.Context, roomID string) (domain.QuestionSet, error)
}

// ResultSink receives the record of every published room.
type ResultSink interface {
	Record(ctx context.Context, record domain.ResultRecord) error
}

// Notifier delivers outbound events to connection handles without blocking.
type Notifier interface {
	Send(handle string, event domain.Outbound)
	Broadcast(handles []string, event domain.Outbound)
}

// Session is the authenticated connection an inbound event arrived on.
type Session struct {
	Handle string
	UserID string
	Role   domain.Role
	Name   string
}

// Coordinator runs the live quiz state machine. Each room is guarded by its
// own mutex and every event of a room is emitted while that mutex is held.
// A room lock may be held while calling the registry, never the reverse, and
// at most one room lock is held at a time. Rooms are closed under their lock
// but only removed from the registry after it is released, since removal may
// reach an external store.
type Coordinator struct {
	rooms     RoomRegistry
	questions QuestionStore
	notifier  Notifier
	sink      ResultSink
	log       zerolog.Logger
	now       func() time.Time
	timeout   time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithResultSink sets where published results go.
func WithResultSink(sink ResultSink) CoordinatorOption {
	return func(c *Coordinator) { c.sink = sink }
}

// WithCoordinatorLogger sets the coordinator logger.
func WithCoordinatorLogger(l zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

// WithCoordinatorClock replaces time.Now, for tests.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithQuestionTimeout enables the per-question deadline. Zero disables it.
func WithQuestionTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeout = d }
}

func NewCoordinator(rooms RoomRegistry, questions QuestionStore, notifier Notifier, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		rooms:     rooms,
		questions: questions,
		notifier:  notifier,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle dispatches one inbound event. Errors are meant for the requesting
// connection only.
func (c *Coordinator) Handle(ctx context.Context, sess Session, event domain.Inbound) error {
	switch ev := event.(type) {
	case domain.StoreQuiz:
		return c.StoreQuiz(ctx, sess, ev)
	case domain.JoinRoom:
		return c.Join(ctx, sess, ev)
	case domain.StartQuiz:
		return c.Start(ctx, sess, ev)
	case domain.SubmitAnswer:
		return c.Submit(ctx, sess, ev)
	case domain.EndQuiz:
		return c.End(ctx, sess, ev)
	case domain.PublishResults:
		return c.Publish(ctx, sess, ev)
	case domain.VerifyRoom:
		c.Verify(sess, ev)
		return nil
	case domain.Disconnect:
		c.Disconnect(sess.Handle)
		return nil
	default:
		return fmt.Errorf("%w: unsupported event %T", domain.ErrInvalidRequest, event)
	}
}

func authorize(sess Session, userID string, role domain.Role) error {
	if sess.UserID == "" || sess.UserID != userID || sess.Role != role {
		return domain.ErrUnauthorized
	}
	return nil
}

// withRoom runs fn with the room locked. A room torn down between lookup and
// lock counts as absent.
func (c *Coordinator) withRoom(roomID string, fn func(*Room) error) error {
	room, ok := c.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return domain.ErrRoomNotFound
	}
	return fn(room)
}

func (c *Coordinator) broadcastLocked(room *Room, event domain.Outbound) {
	c.notifier.Broadcast(room.connsLocked(), event)
}

// bindHandle points handle at roomID, first leaving any other room the
// handle was in, and returns the previous binding. No room lock may be held
// by the caller.
func (c *Coordinator) bindHandle(handle, roomID string) string {
	if handle == "" {
		return ""
	}
	previous := c.rooms.Bind(handle, roomID)
	if previous != "" && previous != roomID {
		c.detach(previous, handle)
	}
	return previous
}

// StoreQuiz creates or re-creates a room around a question set and binds the
// teacher's connection to it.
func (c *Coordinator) StoreQuiz(ctx context.Context, sess Session, ev domain.StoreQuiz) error {
	if err := authorize(sess, ev.TeacherID, domain.RoleTeacher); err != nil {
		return err
	}
	set := ev.QuestionSet.Normalized()
	if set.Total() == 0 {
		loaded, err := c.questions.Load(ctx, ev.RoomID)
		if err != nil {
			return err
		}
		set = loaded.Normalized()
		if set.Total() == 0 {
			return domain.ErrQuestionSetNotFound
		}
	} else if err := c.questions.Save(ctx, ev.RoomID, set); err != nil {
		return fmt.Errorf("save question set: %w", err)
	}

	if old, ok := c.rooms.Get(ev.RoomID); ok {
		old.mu.Lock()
		old.closeLocked(domain.RoomAbandoned)
		old.mu.Unlock()
	}
	room := c.rooms.CreateRoom(ev.RoomID, ev.TeacherID, set)
	c.bindHandle(sess.Handle, ev.RoomID)

	err := c.withRoom(ev.RoomID, func(r *Room) error {
		if r != room {
			return domain.ErrRoomNotFound
		}
		r.attachTeacherLocked(sess.Handle, sess.Name)
		c.broadcastLocked(r, r.rosterLocked())
		return nil
	})
	if err != nil {
		return err
	}
	c.log.Info().
		Str("room_id", ev.RoomID).
		Str("teacher_id", ev.TeacherID).
		Int("questions", set.Total()).
		Msg("quiz stored")
	return nil
}

// Join adds a teacher or student to a room and broadcasts the roster.
func (c *Coordinator) Join(_ context.Context, sess Session, ev domain.JoinRoom) error {
	if err := authorize(sess, ev.UserID, ev.Role); err != nil {
		return err
	}
	check := func(r *Room) error {
		if ev.Role == domain.RoleTeacher && r.owner != ev.UserID {
			return domain.ErrUnauthorized
		}
		if !r.acceptsJoinLocked(ev.Role) {
			return domain.ErrInvalidState
		}
		return nil
	}
	if err := c.withRoom(ev.RoomID, check); err != nil {
		return err
	}

	previous := c.bindHandle(sess.Handle, ev.RoomID)

	err := c.withRoom(ev.RoomID, func(r *Room) error {
		if err := check(r); err != nil {
			return err
		}
		var replaced string
		if ev.Role == domain.RoleTeacher {
			replaced = r.attachTeacherLocked(sess.Handle, ev.DisplayName)
		} else {
			replaced = r.addStudentLocked(ev.UserID, ev.DisplayName, sess.Handle)
		}
		if replaced != "" && replaced != sess.Handle {
			c.rooms.Unbind(replaced, r.id)
		}
		c.broadcastLocked(r, r.rosterLocked())
		if r.state == domain.RoomInProgress {
			c.notifier.Send(sess.Handle, domain.QuizQuestions{RoomID: r.id, Questions: r.questions})
		}
		return nil
	})
	if err != nil {
		if previous != ev.RoomID {
			c.rooms.Unbind(sess.Handle, ev.RoomID)
		}
		return err
	}
	c.log.Debug().
		Str("room_id", ev.RoomID).
		Str("user_id", ev.UserID).
		Str("role", string(ev.Role)).
		Msg("joined room")
	return nil
}

// Start opens answering and sends the question set to everyone in the room.
func (c *Coordinator) Start(_ context.Context, sess Session, ev domain.StartQuiz) error {
	if err := authorize(sess, ev.TeacherID, domain.RoleTeacher); err != nil {
		return err
	}
	return c.withRoom(ev.RoomID, func(r *Room) error {
		if r.owner != ev.TeacherID {
			return domain.ErrUnauthorized
		}
		if r.state != domain.RoomCreated && r.state != domain.RoomLobby {
			return domain.ErrInvalidState
		}
		r.state = domain.RoomInProgress
		r.startedAt = c.now()
		c.broadcastLocked(r, domain.QuizQuestions{RoomID: r.id, Questions: r.questions})
		c.armDeadlineLocked(r)
		c.log.Info().Str("room_id", r.id).Int("students", len(r.students)).Msg("quiz started")
		return nil
	})
}

// Submit records one answer. Submissions for rooms that are gone or closed
// for answering are dropped without an error.
func (c *Coordinator) Submit(_ context.Context, sess Session, ev domain.SubmitAnswer) error {
	if sess.UserID != ev.UserID {
		return domain.ErrUnauthorized
	}
	err := c.withRoom(ev.RoomID, func(r *Room) error {
		switch r.state {
		case domain.RoomInProgress:
		case domain.RoomCreated, domain.RoomLobby:
			return domain.ErrInvalidState
		default:
			c.log.Debug().Str("room_id", r.id).Str("state", string(r.state)).Msg("late submission dropped")
			return nil
		}
		correct, err := r.recordAnswerLocked(ev.UserID, ev.Question, ev.SelectedOption, ev.Points)
		if err != nil {
			return err
		}
		metrics.RecordSubmission(correct)
		update := r.scoreUpdateLocked()
		c.broadcastLocked(r, update)
		if update.AllCompleted {
			c.completeLocked(r, false, "barrier")
		}
		return nil
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		c.log.Debug().Str("room_id", ev.RoomID).Msg("submission for unknown room dropped")
		return nil
	}
	return err
}

// completeLocked closes answering and broadcasts quiz_completed exactly once.
func (c *Coordinator) completeLocked(r *Room, endedEarly bool, reason string) {
	r.stopDeadlineLocked()
	r.state = domain.RoomAwaitingPublication
	r.endedEarly = endedEarly
	c.broadcastLocked(r, r.completionLocked())
	metrics.RecordQuizCompletion(reason)
	c.log.Info().Str("room_id", r.id).Str("reason", reason).Msg("quiz completed")
}

// End lets the owner close answering early.
func (c *Coordinator) End(_ context.Context, sess Session, ev domain.EndQuiz) error {
	if err := authorize(sess, ev.TeacherID, domain.RoleTeacher); err != nil {
		return err
	}
	return c.withRoom(ev.RoomID, func(r *Room) error {
		if r.owner != ev.TeacherID {
			return domain.ErrUnauthorized
		}
		switch r.state {
		case domain.RoomCreated, domain.RoomLobby, domain.RoomInProgress:
			c.completeLocked(r, true, "ended")
			return nil
		default:
			return domain.ErrInvalidState
		}
	})
}

// Publish ranks the room, tears it down and broadcasts the scoreboard.
func (c *Coordinator) Publish(ctx context.Context, sess Session, ev domain.PublishResults) error {
	if err := authorize(sess, ev.TeacherID, domain.RoleTeacher); err != nil {
		return err
	}
	var (
		record    domain.ResultRecord
		published *Room
	)
	err := c.withRoom(ev.RoomID, func(r *Room) error {
		if r.owner != ev.TeacherID {
			return domain.ErrUnauthorized
		}
		if r.state != domain.RoomAwaitingPublication {
			return domain.ErrInvalidState
		}
		results := r.rankedLocked()
		r.closeLocked(domain.RoomPublished)
		published = r
		conns := r.connsLocked()
		for _, conn := range conns {
			c.rooms.Unbind(conn, r.id)
		}
		c.notifier.Broadcast(conns, domain.ResultsPublished{RoomID: r.id, Results: results})
		record = domain.ResultRecord{
			RoomID:      r.id,
			OwnerID:     r.owner,
			EndedEarly:  r.endedEarly,
			Results:     results,
			PublishedAt: c.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.rooms.RemoveRoom(published)
	c.log.Info().Str("room_id", ev.RoomID).Int("students", len(record.Results)).Msg("results published")

	if c.sink != nil {
		if err := c.sink.Record(ctx, record); err != nil {
			c.log.Error().Err(err).Str("room_id", ev.RoomID).Msg("failed to record published results")
		}
	}
	return nil
}

// Verify tells the requester whether a room code is live.
func (c *Coordinator) Verify(sess Session, ev domain.VerifyRoom) {
	c.notifier.Send(sess.Handle, domain.RoomVerified{RoomID: ev.RoomID, Exists: c.Exists(ev.RoomID)})
}

// Exists reports whether roomID names a live room.
func (c *Coordinator) Exists(roomID string) bool {
	return c.rooms.Exists(roomID)
}

// Snapshot returns a copy of a live room.
func (c *Coordinator) Snapshot(roomID string) (RoomSnapshot, error) {
	room, ok := c.rooms.Get(roomID)
	if !ok || room.Closed() {
		return RoomSnapshot{}, domain.ErrRoomNotFound
	}
	return room.Snapshot(), nil
}

// Disconnect cleans up after a connection that went away. Unknown or stale
// handles are ignored.
func (c *Coordinator) Disconnect(handle string) {
	roomID, ok := c.rooms.RoomOf(handle)
	if !ok {
		return
	}
	c.rooms.Unbind(handle, roomID)
	c.detach(roomID, handle)
}

// detach removes handle from roomID and tears the room down once nobody is left.
func (c *Coordinator) detach(roomID, handle string) {
	var emptied *Room
	_ = c.withRoom(roomID, func(r *Room) error {
		userID, teacher, ok := r.detachConnLocked(handle)
		if !ok {
			return nil
		}
		c.log.Debug().Str("room_id", r.id).Str("user_id", userID).Bool("teacher", teacher).Msg("left room")

		if r.isEmptyLocked() {
			final := r.state
			if final == domain.RoomCreated || final == domain.RoomLobby {
				final = domain.RoomAbandoned
			}
			r.closeLocked(final)
			emptied = r
			c.log.Info().Str("room_id", r.id).Str("state", string(final)).Msg("empty room removed")
			return nil
		}
		c.broadcastLocked(r, r.rosterLocked())
		if r.state == domain.RoomInProgress && !teacher && r.allCompletedLocked() {
			c.completeLocked(r, false, "barrier")
		}
		return nil
	})
	if emptied != nil {
		c.rooms.RemoveRoom(emptied)
	}
}
