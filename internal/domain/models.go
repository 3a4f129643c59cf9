package domain

import "time"

// Role identifies which side of a room or doubt a user is on.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// TeacherAvailability is the ephemeral record of an online teacher.
type TeacherAvailability struct {
	TeacherID      string   `json:"teacherId" yaml:"teacherId"`
	Name           string   `json:"name" yaml:"name"`
	Rating         float64  `json:"rating" yaml:"rating"`
	SolvedCount    int      `json:"solvedCount" yaml:"solvedCount"`
	Subject        string   `json:"subject" yaml:"subject"`
	Subcategories  []string `json:"subcategories" yaml:"subcategories"`
	Certifications []string `json:"certifications,omitempty" yaml:"certifications"`
}

// Teaches reports whether the teacher lists subcategory under their subject.
func (t TeacherAvailability) Teaches(subcategory string) bool {
	for _, s := range t.Subcategories {
		if s == subcategory {
			return true
		}
	}
	return false
}

// DoubtStatus is the lifecycle state of a doubt.
type DoubtStatus string

const (
	DoubtPending  DoubtStatus = "pending"
	DoubtAssigned DoubtStatus = "assigned"
	DoubtResolved DoubtStatus = "resolved"
)

// Doubt is a student's question awaiting a teacher (or the AI fallback).
type Doubt struct {
	ID              string      `json:"id" yaml:"id"`
	StudentID       string      `json:"studentId" yaml:"studentId"`
	Content         string      `json:"content" yaml:"content"`
	Subject         string      `json:"subject" yaml:"subject"`
	Subcategory     string      `json:"subcategory" yaml:"subcategory"`
	Status          DoubtStatus `json:"status" yaml:"status"`
	AssignedTeacher string      `json:"assignedTeacher,omitempty" yaml:"assignedTeacher"`
	CreatedAt       time.Time   `json:"createdAt" yaml:"-"`
	UpdatedAt       time.Time   `json:"updatedAt" yaml:"-"`
}

// HasParticipant reports whether userID, acting as role, is the doubt's
// student or its assigned teacher.
func (d Doubt) HasParticipant(userID string, role Role) bool {
	if userID == "" {
		return false
	}
	switch role {
	case RoleStudent:
		return d.StudentID == userID
	case RoleTeacher:
		return d.AssignedTeacher == userID
	default:
		return false
	}
}

// ChatMessage is one line of the chat attached to a doubt.
type ChatMessage struct {
	ID         string    `json:"id"`
	DoubtID    string    `json:"doubtId"`
	Sender     string    `json:"sender"`
	SenderRole Role      `json:"senderRole"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// MatchOutcome tells which tier of the matcher produced the candidates.
type MatchOutcome string

const (
	MatchExact   MatchOutcome = "exact"
	MatchSubject MatchOutcome = "subject"
	MatchNone    MatchOutcome = "none"
	// MatchExisting reports an assignment made by an earlier match.
	MatchExisting MatchOutcome = "existing"
)

// MatchResult is returned by the doubt matcher. Candidates holds up to three
// advisory teachers; AssignedTeacher is the binding assignment (rank 0).
type MatchResult struct {
	DoubtID         string                `json:"doubtId"`
	Outcome         MatchOutcome          `json:"outcome"`
	AssignedTeacher string                `json:"assignedTeacher,omitempty"`
	Candidates      []TeacherAvailability `json:"onlineTeachers"`
}

// Matched reports whether the doubt has a teacher bound to it.
func (m MatchResult) Matched() bool {
	return m.AssignedTeacher != ""
}

// RoomState is a state of the quiz room lifecycle.
type RoomState string

const (
	RoomCreated             RoomState = "created"
	RoomLobby               RoomState = "lobby"
	RoomInProgress          RoomState = "in_progress"
	RoomAwaitingPublication RoomState = "awaiting_publication"
	RoomPublished           RoomState = "published"
	RoomAbandoned           RoomState = "abandoned"
)

// RankedResult is one line of a published scoreboard.
type RankedResult struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Bonus       int    `json:"bonus"`
}

// ResultRecord is the durable summary of a published room.
type ResultRecord struct {
	RoomID      string         `json:"roomId"`
	OwnerID     string         `json:"ownerId"`
	EndedEarly  bool           `json:"endedEarly"`
	Results     []RankedResult `json:"results"`
	PublishedAt time.Time      `json:"publishedAt"`
}
