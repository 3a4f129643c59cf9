package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"tutor-live-service/internal/app"
	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/infra/memory"
)

// RoomRegistry keeps rooms in process (room state never leaves this
// instance) and mirrors which codes are live to Redis so other processes
// and operators can see them.
type RoomRegistry struct {
	*memory.RoomRegistry
	client *redis.Client
	ttl    time.Duration
}

func NewRoomRegistry(client *redis.Client, ttl time.Duration) *RoomRegistry {
	return &RoomRegistry{
		RoomRegistry: memory.NewRoomRegistry(),
		client:       client,
		ttl:          ttl,
	}
}

func (r *RoomRegistry) CreateRoom(roomID, ownerID string, set domain.QuestionSet) *app.Room {
	room := r.RoomRegistry.CreateRoom(roomID, ownerID, set)
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), liveKey(roomID), ownerID, r.ttl).Err()
	return room
}

func (r *RoomRegistry) Remove(roomID string) {
	r.RoomRegistry.Remove(roomID)
	_ = r.client.Del(context.Background(), liveKey(roomID)).Err()
}

func (r *RoomRegistry) RemoveRoom(room *app.Room) bool {
	if !r.RoomRegistry.RemoveRoom(room) {
		return false
	}
	_ = r.client.Del(context.Background(), liveKey(room.ID())).Err()
	return true
}

// Touch extends the liveness marker of every room still in the registry.
func (r *RoomRegistry) Touch(ctx context.Context) error {
	if r.ttl <= 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, id := range r.RoomIDs() {
		pipe.Expire(ctx, liveKey(id), r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func liveKey(roomID string) string {
	return "room:live:" + roomID
}
