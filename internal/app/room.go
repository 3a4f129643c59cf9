package app

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"tutor-live-service/internal/domain"
)

// Room is the in-memory state of one live quiz. Every field below mu is
// guarded by it; methods ending in Locked expect the caller to hold it.
type Room struct {
	id        string
	createdAt time.Time
	now       func() time.Time

	mu          sync.Mutex
	closed      bool
	state       domain.RoomState
	owner       string
	teacherName string
	teacherConn string
	questions   domain.QuestionSet
	ordered     []domain.Question
	byID        map[string]int
	byPrompt    map[string]int

	students []string
	names    map[string]string
	conns    map[string]string
	scores   map[string]int
	bonus    map[string]int
	answered map[string]map[string]struct{}
	lastSeq  map[string]uint64
	seq      uint64

	endedEarly bool
	startedAt  time.Time
	deadline   *time.Timer
	tick       int
}

// NewRoom creates a room owned by ownerID around a normalized question set.
func NewRoom(id, ownerID string, set domain.QuestionSet) *Room {
	return NewRoomWithClock(id, ownerID, set, time.Now)
}

// NewRoomWithClock is NewRoom with an injectable clock for tests.
func NewRoomWithClock(id, ownerID string, set domain.QuestionSet, now func() time.Time) *Room {
	set = set.Normalized()
	ordered := set.Ordered()
	r := &Room{
		id:        id,
		createdAt: now(),
		now:       now,
		state:     domain.RoomCreated,
		owner:     ownerID,
		questions: set,
		ordered:   ordered,
		byID:      make(map[string]int, len(ordered)),
		byPrompt:  make(map[string]int, len(ordered)),
		names:     make(map[string]string),
		conns:     make(map[string]string),
		scores:    make(map[string]int),
		bonus:     make(map[string]int),
		answered:  make(map[string]map[string]struct{}),
		lastSeq:   make(map[string]uint64),
	}
	for i, q := range ordered {
		r.byID[q.ID] = i
		if _, ok := r.byPrompt[q.Prompt]; !ok {
			r.byPrompt[q.Prompt] = i
		}
	}
	if len(r.byID) != len(ordered) {
		panic("app: question set has duplicate ids after normalization")
	}
	return r
}

// ID returns the room code.
func (r *Room) ID() string { return r.id }

// Owner returns the teacher id that created the room.
func (r *Room) Owner() string { return r.owner }

// State returns the current lifecycle state.
func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Closed reports whether the room was torn down.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// RoomSnapshot is a read-only copy of a room, used by the REST surface and tests.
type RoomSnapshot struct {
	RoomID         string            `json:"roomId"`
	Owner          string            `json:"owner"`
	State          domain.RoomState  `json:"state"`
	TeacherPresent bool              `json:"teacherPresent"`
	Students       []string          `json:"students"`
	Names          map[string]string `json:"names"`
	Scores         map[string]int    `json:"scores"`
	Bonus          map[string]int    `json:"bonus"`
	Answered       map[string]int    `json:"answered"`
	TotalQuestions int               `json:"totalQuestions"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Snapshot copies the room under its lock.
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomSnapshot{
		RoomID:         r.id,
		Owner:          r.owner,
		State:          r.state,
		TeacherPresent: r.teacherConn != "",
		Students:       append([]string(nil), r.students...),
		Names:          r.namesLocked(),
		Scores:         r.scoresLocked(),
		Bonus:          r.bonusLocked(),
		Answered:       r.answeredLocked(),
		TotalQuestions: len(r.ordered),
		CreatedAt:      r.createdAt,
	}
}

func (r *Room) total() int { return len(r.ordered) }

// acceptsJoinLocked reports whether role may join now. The owner may also
// come back while results wait to be published.
func (r *Room) acceptsJoinLocked(role domain.Role) bool {
	if r.closed {
		return false
	}
	switch r.state {
	case domain.RoomCreated, domain.RoomLobby, domain.RoomInProgress:
		return true
	case domain.RoomAwaitingPublication:
		return role == domain.RoleTeacher
	default:
		return false
	}
}

// attachTeacherLocked records the owner's connection and returns the one it replaced.
func (r *Room) attachTeacherLocked(conn, name string) string {
	previous := r.teacherConn
	r.teacherConn = conn
	if name != "" {
		r.teacherName = name
	} else if r.teacherName == "" {
		r.teacherName = "Teacher"
	}
	if r.state == domain.RoomCreated {
		r.state = domain.RoomLobby
	}
	return previous
}

// addStudentLocked adds userID or refreshes its connection. A rejoin keeps
// scores and answers; it returns the connection the user had before.
func (r *Room) addStudentLocked(userID, name, conn string) string {
	if previous, ok := r.conns[userID]; ok {
		r.conns[userID] = conn
		if name != "" {
			r.names[userID] = name
		}
		return previous
	}
	if name == "" {
		name = "Student " + strconv.Itoa(len(r.students)+1)
	}
	r.students = append(r.students, userID)
	r.names[userID] = name
	r.conns[userID] = conn
	r.scores[userID] = 0
	r.bonus[userID] = 0
	r.answered[userID] = make(map[string]struct{})
	if r.state == domain.RoomCreated {
		r.state = domain.RoomLobby
	}
	return ""
}

// detachConnLocked forgets whoever is bound to conn. Students leave the room
// entirely; the teacher only loses presence so the owner can come back.
func (r *Room) detachConnLocked(conn string) (userID string, teacher bool, ok bool) {
	if conn == "" {
		return "", false, false
	}
	if conn == r.teacherConn {
		r.teacherConn = ""
		return r.owner, true, true
	}
	for uid, c := range r.conns {
		if c == conn {
			r.removeStudentLocked(uid)
			return uid, false, true
		}
	}
	return "", false, false
}

func (r *Room) removeStudentLocked(userID string) {
	for i, s := range r.students {
		if s == userID {
			r.students = append(r.students[:i], r.students[i+1:]...)
			break
		}
	}
	delete(r.names, userID)
	delete(r.conns, userID)
	delete(r.scores, userID)
	delete(r.bonus, userID)
	delete(r.answered, userID)
	delete(r.lastSeq, userID)
}

func (r *Room) isEmptyLocked() bool {
	return len(r.students) == 0 && r.teacherConn == ""
}

func (r *Room) hasStudentLocked(userID string) bool {
	_, ok := r.conns[userID]
	return ok
}

func (r *Room) lookupLocked(q domain.SubmittedQuestion) (domain.Question, bool) {
	if q.ID != "" {
		if i, ok := r.byID[q.ID]; ok {
			return r.ordered[i], true
		}
	}
	if q.Prompt != "" {
		if i, ok := r.byPrompt[q.Prompt]; ok {
			return r.ordered[i], true
		}
	}
	return domain.Question{}, false
}

// recordAnswerLocked applies one submission. The score only moves when the
// selected option matches the stored answer; points is kept as the bonus.
func (r *Room) recordAnswerLocked(userID string, submitted domain.SubmittedQuestion, selected string, points *int) (bool, error) {
	if !r.hasStudentLocked(userID) {
		return false, domain.ErrParticipantNotFound
	}
	question, ok := r.lookupLocked(submitted)
	if !ok {
		return false, domain.ErrQuestionNotFound
	}
	done := r.answered[userID]
	if _, dup := done[question.ID]; dup {
		return false, domain.ErrAlreadyAnswered
	}
	done[question.ID] = struct{}{}
	r.seq++
	r.lastSeq[userID] = r.seq

	correct := selected == question.Answer
	if correct {
		r.scores[userID]++
	}
	if points != nil {
		r.bonus[userID] = *points
	}
	return correct, nil
}

// forceAnswersLocked marks unanswered questions as answered with no option
// until every student has at least k answers. It returns how many it added.
func (r *Room) forceAnswersLocked(k int) int {
	forced := 0
	for _, userID := range r.students {
		done := r.answered[userID]
		for _, q := range r.ordered {
			if len(done) >= k {
				break
			}
			if _, ok := done[q.ID]; !ok {
				done[q.ID] = struct{}{}
				forced++
			}
		}
	}
	return forced
}

// allCompletedLocked is the completion barrier: at least one student and
// every student has answered every question.
func (r *Room) allCompletedLocked() bool {
	if len(r.students) == 0 {
		return false
	}
	total := r.total()
	for _, userID := range r.students {
		if len(r.answered[userID]) < total {
			return false
		}
	}
	return true
}

// connsLocked lists every live connection of the room, teacher first.
func (r *Room) connsLocked() []string {
	out := make([]string, 0, len(r.students)+1)
	if r.teacherConn != "" {
		out = append(out, r.teacherConn)
	}
	for _, userID := range r.students {
		out = append(out, r.conns[userID])
	}
	return out
}

func (r *Room) rosterLocked() domain.RoomUpdate {
	members := make([]domain.RoomMember, 0, len(r.students))
	for _, userID := range r.students {
		members = append(members, domain.RoomMember{ID: userID, Name: r.names[userID]})
	}
	teacher := ""
	if r.teacherConn != "" {
		teacher = r.owner
	}
	return domain.RoomUpdate{
		RoomID:      r.id,
		State:       r.state,
		Students:    members,
		Teacher:     teacher,
		TeacherName: r.teacherName,
	}
}

func (r *Room) scoreUpdateLocked() domain.UpdateScores {
	return domain.UpdateScores{
		RoomID:       r.id,
		Scores:       r.scoresLocked(),
		Bonus:        r.bonusLocked(),
		Answered:     r.answeredLocked(),
		AllCompleted: r.allCompletedLocked(),
	}
}

func (r *Room) completionLocked() domain.QuizCompleted {
	return domain.QuizCompleted{
		RoomID:       r.id,
		Scores:       r.scoresLocked(),
		StudentNames: r.namesLocked(),
		EndedEarly:   r.endedEarly,
	}
}

// rankedLocked orders students by score, then by who submitted their last
// answer first. Students who never submitted go last, in join order.
func (r *Room) rankedLocked() []domain.RankedResult {
	order := append([]string(nil), r.students...)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if r.scores[a] != r.scores[b] {
			return r.scores[a] > r.scores[b]
		}
		sa, sb := r.lastSeq[a], r.lastSeq[b]
		switch {
		case sa == sb:
			return false
		case sa == 0:
			return false
		case sb == 0:
			return true
		default:
			return sa < sb
		}
	})
	out := make([]domain.RankedResult, len(order))
	for i, userID := range order {
		out[i] = domain.RankedResult{
			Rank:        i + 1,
			UserID:      userID,
			DisplayName: r.names[userID],
			Score:       r.scores[userID],
			Bonus:       r.bonus[userID],
		}
	}
	return out
}

func (r *Room) scoresLocked() map[string]int {
	out := make(map[string]int, len(r.scores))
	for k, v := range r.scores {
		out[k] = v
	}
	return out
}

func (r *Room) bonusLocked() map[string]int {
	out := make(map[string]int, len(r.bonus))
	for k, v := range r.bonus {
		out[k] = v
	}
	return out
}

func (r *Room) namesLocked() map[string]string {
	out := make(map[string]string, len(r.names))
	for k, v := range r.names {
		out[k] = v
	}
	return out
}

func (r *Room) answeredLocked() map[string]int {
	out := make(map[string]int, len(r.answered))
	for k, v := range r.answered {
		out[k] = len(v)
	}
	return out
}

func (r *Room) stopDeadlineLocked() {
	if r.deadline != nil {
		r.deadline.Stop()
		r.deadline = nil
	}
}

// closeLocked marks the room as torn down; later lookups through a stale
// pointer see it as gone.
func (r *Room) closeLocked(final domain.RoomState) {
	r.stopDeadlineLocked()
	r.closed = true
	r.state = final
}
