package app

import (
	"time"

	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/metrics"
)

// armDeadlineLocked schedules the first question deadline when a timeout is
// configured. Question k closes at k*timeout after the start.
func (c *Coordinator) armDeadlineLocked(r *Room) {
	if c.timeout <= 0 || r.total() == 0 {
		return
	}
	r.tick = 0
	r.deadline = time.AfterFunc(c.timeout, func() { c.onDeadline(r) })
}

// onDeadline forces every student up to the closed question, broadcasts the
// new progress and re-arms until the barrier passes or questions run out.
func (c *Coordinator) onDeadline(r *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.state != domain.RoomInProgress || r.deadline == nil {
		return
	}
	r.tick++
	if forced := r.forceAnswersLocked(r.tick); forced > 0 {
		metrics.RecordForcedSubmission(forced)
		c.log.Debug().Str("room_id", r.id).Int("tick", r.tick).Int("forced", forced).Msg("question deadline passed")
		c.broadcastLocked(r, r.scoreUpdateLocked())
	}
	if r.allCompletedLocked() {
		c.completeLocked(r, false, "deadline")
		return
	}
	if r.tick >= r.total() {
		r.deadline = nil
		return
	}
	r.deadline = time.AfterFunc(c.timeout, func() { c.onDeadline(r) })
}
