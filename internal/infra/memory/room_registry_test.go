package memory

import (
	"testing"

	"tutor-live-service/internal/domain"
)

func sampleSet() domain.QuestionSet {
	return domain.QuestionSet{Easy: []domain.Question{{Prompt: "1+1", Options: []string{"1", "2"}, Answer: "2"}}}
}

func TestRoomRegistryLifecycle(t *testing.T) {
	reg := NewRoomRegistry()

	room := reg.CreateRoom("ABC123", "t1", sampleSet())
	if room == nil || room.Owner() != "t1" {
		t.Fatalf("expected room owned by t1")
	}
	if !reg.Exists("ABC123") {
		t.Fatalf("expected room present")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 room, got %d", reg.Len())
	}

	reg.Remove("ABC123")
	if reg.Exists("ABC123") {
		t.Fatalf("expected room removed")
	}
}

func TestRoomRegistryOverwriteAndRemoveRoom(t *testing.T) {
	reg := NewRoomRegistry()
	first := reg.CreateRoom("R1", "t1", sampleSet())
	second := reg.CreateRoom("R1", "t2", sampleSet())

	got, ok := reg.Get("R1")
	if !ok || got != second {
		t.Fatalf("expected second room to replace the first")
	}
	if reg.RemoveRoom(first) {
		t.Fatalf("removing the replaced room must not evict its successor")
	}
	if !reg.Exists("R1") {
		t.Fatalf("expected successor still present")
	}
	if !reg.RemoveRoom(second) {
		t.Fatalf("expected current room removed")
	}
}

func TestRoomRegistryHandleBinding(t *testing.T) {
	reg := NewRoomRegistry()

	if prev := reg.Bind("h1", "R1"); prev != "" {
		t.Fatalf("expected no previous binding, got %q", prev)
	}
	if prev := reg.Bind("h1", "R2"); prev != "R1" {
		t.Fatalf("expected previous binding R1, got %q", prev)
	}

	reg.Unbind("h1", "R1")
	if roomID, ok := reg.RoomOf("h1"); !ok || roomID != "R2" {
		t.Fatalf("stale unbind must keep the current binding, got %q %v", roomID, ok)
	}

	reg.Unbind("h1", "R2")
	if _, ok := reg.RoomOf("h1"); ok {
		t.Fatalf("expected binding removed")
	}
}
