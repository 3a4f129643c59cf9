package domain

// Inbound event names.
const (
	EventJoinRoom       = "join_room"
	EventStartQuiz      = "start_quiz"
	EventSubmitAnswer   = "submit_answer"
	EventEndQuiz        = "end_quiz"
	EventPublishResults = "publish_results"
	EventVerifyRoom     = "verify_room"
	EventStoreQuiz      = "store_quiz"
	EventDisconnect     = "disconnect"

	EventJoinChat          = "join_chat"
	EventSendMessage       = "send_message"
	EventLeaveChat         = "leave_chat"
	EventDoubtStatusUpdate = "doubt_status_update"
)

// Outbound event names.
const (
	EventRoomUpdate       = "room_update"
	EventQuizQuestions    = "quiz_questions"
	EventUpdateScores     = "update_scores"
	EventQuizCompleted    = "quiz_completed"
	EventResultsPublished = "results_published"
	EventRoomVerified     = "room_verified"
	EventError            = "error"
	EventNewDoubt         = "new_doubt"

	EventChatJoined   = "joined_chat"
	EventChatMessage  = "chat_message"
	EventDoubtUpdated = "doubt_updated"
	EventUserLeft     = "user_left"
)

// Inbound is the closed set of events a participant can send to a room.
type Inbound interface {
	EventName() string
	inbound()
}

// JoinRoom adds a teacher or student to a room.
type JoinRoom struct {
	RoomID      string `json:"roomId" validate:"required"`
	UserID      string `json:"userId" validate:"required"`
	Role        Role   `json:"role" validate:"required,oneof=teacher student"`
	DisplayName string `json:"displayName,omitempty"`
}

// StartQuiz broadcasts the stored question set and opens answering.
type StartQuiz struct {
	RoomID    string `json:"roomId" validate:"required"`
	TeacherID string `json:"teacherId" validate:"required"`
}

// SubmittedQuestion identifies the question being answered, by ID or prompt.
type SubmittedQuestion struct {
	ID     string `json:"id,omitempty"`
	Prompt string `json:"question,omitempty"`
}

// SubmitAnswer records one answer. Points is the client's own running total
// (speed and streak bonuses); it is kept as a bonus and never used as score.
type SubmitAnswer struct {
	RoomID         string            `json:"roomId" validate:"required"`
	UserID         string            `json:"userId" validate:"required"`
	Question       SubmittedQuestion `json:"question"`
	SelectedOption string            `json:"selectedOption"`
	Points         *int              `json:"points,omitempty" validate:"omitempty,min=0"`
}

// EndQuiz lets the owner close answering before the completion barrier.
type EndQuiz struct {
	RoomID    string `json:"roomId" validate:"required"`
	TeacherID string `json:"teacherId" validate:"required"`
}

// PublishResults ranks and publishes final scores.
type PublishResults struct {
	RoomID    string `json:"roomId" validate:"required"`
	TeacherID string `json:"teacherId" validate:"required"`
}

// VerifyRoom checks that a shared code names a live room.
type VerifyRoom struct {
	RoomID string `json:"roomId" validate:"required"`
}

// StoreQuiz creates (or re-creates) a room around a question set.
type StoreQuiz struct {
	RoomID      string      `json:"roomId" validate:"required"`
	TeacherID   string      `json:"teacherId" validate:"required"`
	QuestionSet QuestionSet `json:"questionSet"`
}

// Disconnect is raised by the transport when a connection goes away.
type Disconnect struct{}

// JoinChat subscribes a connection to the chat of a doubt. Only the doubt's
// student or its assigned teacher may join.
type JoinChat struct {
	DoubtID string `json:"doubtId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
	Role    Role   `json:"role" validate:"required,oneof=teacher student"`
}

// SendMessage posts a line to a doubt chat.
type SendMessage struct {
	DoubtID string `json:"doubtId" validate:"required"`
	Sender  string `json:"sender" validate:"required"`
	Message string `json:"message" validate:"required,max=4000"`
}

// LeaveChat unsubscribes a connection from a doubt chat.
type LeaveChat struct {
	DoubtID string `json:"doubtId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

// DoubtStatusUpdate moves a doubt forward from its chat. Only resolving is
// accepted; assignment belongs to the matcher.
type DoubtStatusUpdate struct {
	DoubtID string      `json:"doubtId" validate:"required"`
	Status  DoubtStatus `json:"status" validate:"required,oneof=resolved"`
}

func (JoinRoom) EventName() string       { return EventJoinRoom }
func (StartQuiz) EventName() string      { return EventStartQuiz }
func (SubmitAnswer) EventName() string   { return EventSubmitAnswer }
func (EndQuiz) EventName() string        { return EventEndQuiz }
func (PublishResults) EventName() string { return EventPublishResults }
func (VerifyRoom) EventName() string     { return EventVerifyRoom }
func (StoreQuiz) EventName() string      { return EventStoreQuiz }
func (Disconnect) EventName() string     { return EventDisconnect }

func (JoinChat) EventName() string          { return EventJoinChat }
func (SendMessage) EventName() string       { return EventSendMessage }
func (LeaveChat) EventName() string         { return EventLeaveChat }
func (DoubtStatusUpdate) EventName() string { return EventDoubtStatusUpdate }

func (JoinRoom) inbound()       {}
func (StartQuiz) inbound()      {}
func (SubmitAnswer) inbound()   {}
func (EndQuiz) inbound()        {}
func (PublishResults) inbound() {}
func (VerifyRoom) inbound()     {}
func (StoreQuiz) inbound()      {}
func (Disconnect) inbound()     {}

func (JoinChat) inbound()          {}
func (SendMessage) inbound()       {}
func (LeaveChat) inbound()         {}
func (DoubtStatusUpdate) inbound() {}

// Outbound is the closed set of events pushed to clients.
type Outbound interface {
	EventName() string
	outbound()
}

// RoomMember is one entry of a lobby roster.
type RoomMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomUpdate is a roster snapshot sent after joins and leaves.
type RoomUpdate struct {
	RoomID      string       `json:"roomId"`
	State       RoomState    `json:"state"`
	Students    []RoomMember `json:"students"`
	Teacher     string       `json:"teacher"`
	TeacherName string       `json:"teacherName"`
}

// QuizQuestions carries the room's question set, identical for everyone.
type QuizQuestions struct {
	RoomID    string      `json:"roomId"`
	Questions QuestionSet `json:"questions"`
}

// UpdateScores is sent after every accepted submission.
type UpdateScores struct {
	RoomID       string         `json:"roomId"`
	Scores       map[string]int `json:"scores"`
	Bonus        map[string]int `json:"bonus"`
	Answered     map[string]int `json:"answered"`
	AllCompleted bool           `json:"allCompleted"`
}

// QuizCompleted fires once when answering closes, by barrier or by the owner.
type QuizCompleted struct {
	RoomID       string            `json:"roomId"`
	Scores       map[string]int    `json:"scores"`
	StudentNames map[string]string `json:"studentNames"`
	EndedEarly   bool              `json:"endedEarly"`
}

// ResultsPublished carries the ranked scoreboard.
type ResultsPublished struct {
	RoomID  string         `json:"roomId"`
	Results []RankedResult `json:"results"`
}

// RoomVerified answers a verify_room request.
type RoomVerified struct {
	RoomID string `json:"roomId"`
	Exists bool   `json:"exists"`
}

// ErrorEvent reports a failure to the requesting connection only.
type ErrorEvent struct {
	Message string `json:"message"`
}

// NewDoubt notifies a teacher that a doubt was assigned to them.
type NewDoubt struct {
	DoubtID string `json:"doubtId"`
	Message string `json:"message"`
}

// ChatJoined confirms a chat subscription and carries recent history,
// oldest first.
type ChatJoined struct {
	DoubtID string        `json:"doubtId"`
	History []ChatMessage `json:"history"`
}

// DoubtUpdated tells a doubt's chat that its status changed.
type DoubtUpdated struct {
	DoubtID string      `json:"doubtId"`
	Status  DoubtStatus `json:"status"`
}

// UserLeft tells a doubt's chat that a participant left.
type UserLeft struct {
	DoubtID string `json:"doubtId"`
	UserID  string `json:"userId"`
}

func (RoomUpdate) EventName() string       { return EventRoomUpdate }
func (QuizQuestions) EventName() string    { return EventQuizQuestions }
func (UpdateScores) EventName() string     { return EventUpdateScores }
func (QuizCompleted) EventName() string    { return EventQuizCompleted }
func (ResultsPublished) EventName() string { return EventResultsPublished }
func (RoomVerified) EventName() string     { return EventRoomVerified }
func (ErrorEvent) EventName() string       { return EventError }
func (NewDoubt) EventName() string         { return EventNewDoubt }
func (ChatJoined) EventName() string       { return EventChatJoined }
func (ChatMessage) EventName() string      { return EventChatMessage }
func (DoubtUpdated) EventName() string     { return EventDoubtUpdated }
func (UserLeft) EventName() string         { return EventUserLeft }

func (RoomUpdate) outbound()       {}
func (QuizQuestions) outbound()    {}
func (UpdateScores) outbound()     {}
func (QuizCompleted) outbound()    {}
func (ResultsPublished) outbound() {}
func (RoomVerified) outbound()     {}
func (ErrorEvent) outbound()       {}
func (NewDoubt) outbound()         {}
func (ChatJoined) outbound()       {}
func (ChatMessage) outbound()      {}
func (DoubtUpdated) outbound()     {}
func (UserLeft) outbound()         {}
