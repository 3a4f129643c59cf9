package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every "entity absent" error.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the caller is not allowed to act on a room.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidRequest marks malformed or semantically invalid payloads.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidState is returned for state machine violations (e.g. starting twice).
	ErrInvalidState = errors.New("invalid room state")

	// ErrRoomNotFound is returned when a room code does not resolve to a live room.
	ErrRoomNotFound = fmt.Errorf("room %w", ErrNotFound)
	// ErrDoubtNotFound is returned when a doubt id does not resolve to a stored doubt.
	ErrDoubtNotFound = fmt.Errorf("doubt %w", ErrNotFound)
	// ErrQuestionSetNotFound indicates no question set was stored for a room.
	ErrQuestionSetNotFound = fmt.Errorf("question set %w", ErrNotFound)
	// ErrResultsNotFound indicates no published results exist for a room.
	ErrResultsNotFound = fmt.Errorf("results %w", ErrNotFound)

	// ErrParticipantNotFound is returned when a user acts in a room before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrQuestionNotFound indicates a submitted question is not part of the room's set.
	ErrQuestionNotFound = fmt.Errorf("%w: question not found", ErrInvalidRequest)
	// ErrAlreadyAnswered indicates a student submitted the same question twice.
	ErrAlreadyAnswered = fmt.Errorf("%w: question already answered", ErrInvalidRequest)
	// ErrDoubtNotPending is returned when assigning a doubt that left the pending state.
	ErrDoubtNotPending = errors.New("doubt is not pending")
)
