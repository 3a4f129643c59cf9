package app_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"tutor-live-service/internal/app"
	"tutor-live-service/internal/availability"
	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/infra/memory"
)

type userNotifier struct {
	mu     sync.Mutex
	events map[string][]domain.Outbound
}

func (n *userNotifier) NotifyUser(userID string, event domain.Outbound) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.events == nil {
		n.events = make(map[string][]domain.Outbound)
	}
	n.events[userID] = append(n.events[userID], event)
}

func (n *userNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, evs := range n.events {
		total += len(evs)
	}
	return total
}

func (n *userNotifier) of(userID string) []domain.Outbound {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Outbound(nil), n.events[userID]...)
}

func online(id, subject string, rating float64, solved int, subs ...string) domain.TeacherAvailability {
	return domain.TeacherAvailability{
		TeacherID:     id,
		Name:          "Teacher " + id,
		Rating:        rating,
		SolvedCount:   solved,
		Subject:       subject,
		Subcategories: subs,
	}
}

func TestRankCandidates(t *testing.T) {
	convey.Convey("Given candidates rated 3.0, 4.5 and 4.5", t, func() {
		ranked := app.RankCandidates([]domain.TeacherAvailability{
			online("a", "Mathematics", 3.0, 10),
			online("b", "Mathematics", 4.5, 2),
			online("c", "Mathematics", 4.5, 8),
		})

		convey.Convey("Higher rating wins and solved count breaks ties", func() {
			convey.So(len(ranked), convey.ShouldEqual, 3)
			convey.So(ranked[0].TeacherID, convey.ShouldEqual, "c")
			convey.So(ranked[1].TeacherID, convey.ShouldEqual, "b")
			convey.So(ranked[2].TeacherID, convey.ShouldEqual, "a")
		})
	})

	convey.Convey("Given more than three candidates", t, func() {
		ranked := app.RankCandidates([]domain.TeacherAvailability{
			online("a", "Physics", 1.0, 0),
			online("b", "Physics", 2.0, 0),
			online("c", "Physics", 3.0, 0),
			online("d", "Physics", 4.0, 0),
		})

		convey.Convey("Only the top three are kept", func() {
			convey.So(len(ranked), convey.ShouldEqual, 3)
			convey.So(ranked[0].TeacherID, convey.ShouldEqual, "d")
			convey.So(ranked[2].TeacherID, convey.ShouldEqual, "b")
		})
	})
}

func TestDoubtMatching(t *testing.T) {
	convey.Convey("Given a doubt service with an empty index", t, func() {
		ctx := context.Background()
		store := memory.NewDoubtStore()
		index := availability.NewIndex()
		notifier := &userNotifier{}
		svc := app.NewDoubtService(store, index, notifier)

		doubt, err := svc.Submit(ctx, "s1", "What is a derivative?", "Mathematics", "Calculus")
		convey.So(err, convey.ShouldBeNil)
		convey.So(doubt.Status, convey.ShouldEqual, domain.DoubtPending)

		convey.Convey("No online teacher leaves the doubt pending", func() {
			result, err := svc.Match(ctx, doubt.ID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(result.Outcome, convey.ShouldEqual, domain.MatchNone)
			convey.So(result.Matched(), convey.ShouldBeFalse)

			stored, _ := store.Get(ctx, doubt.ID)
			convey.So(stored.Status, convey.ShouldEqual, domain.DoubtPending)
			pending, _ := svc.Pending(ctx)
			convey.So(len(pending), convey.ShouldEqual, 1)
			convey.So(notifier.total(), convey.ShouldEqual, 0)
		})

		convey.Convey("An exact match beats a higher rated subject match", func() {
			convey.So(svc.GoOnline(online("calc", "Mathematics", 4.0, 1, "Calculus")), convey.ShouldBeNil)
			convey.So(svc.GoOnline(online("broad", "Mathematics", 5.0, 50, "Algebra")), convey.ShouldBeNil)

			result, err := svc.Match(ctx, doubt.ID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(result.Outcome, convey.ShouldEqual, domain.MatchExact)
			convey.So(result.AssignedTeacher, convey.ShouldEqual, "calc")
			convey.So(len(result.Candidates), convey.ShouldEqual, 1)

			events := notifier.of("calc")
			convey.So(len(events), convey.ShouldEqual, 1)
			convey.So(events[0].(domain.NewDoubt).DoubtID, convey.ShouldEqual, doubt.ID)

			assigned, _ := svc.AssignedTo(ctx, "calc")
			convey.So(len(assigned), convey.ShouldEqual, 1)
			convey.So(assigned[0].Status, convey.ShouldEqual, domain.DoubtAssigned)
		})

		convey.Convey("Subject-only teachers are used when no exact match exists", func() {
			convey.So(svc.GoOnline(online("alg", "Mathematics", 3.0, 4, "Algebra")), convey.ShouldBeNil)
			convey.So(svc.GoOnline(online("geo", "Mathematics", 4.0, 2, "Geometry")), convey.ShouldBeNil)
			convey.So(svc.GoOnline(online("phy", "Physics", 5.0, 9, "Calculus")), convey.ShouldBeNil)

			result, err := svc.Match(ctx, doubt.ID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(result.Outcome, convey.ShouldEqual, domain.MatchSubject)
			convey.So(result.AssignedTeacher, convey.ShouldEqual, "geo")
			convey.So(len(result.Candidates), convey.ShouldEqual, 2)
			for _, c := range result.Candidates {
				convey.So(c.Subject, convey.ShouldEqual, "Mathematics")
			}
		})

		convey.Convey("A second match reports the existing assignment", func() {
			convey.So(svc.GoOnline(online("calc", "Mathematics", 4.0, 1, "Calculus")), convey.ShouldBeNil)
			_, err := svc.Match(ctx, doubt.ID)
			convey.So(err, convey.ShouldBeNil)

			again, err := svc.Match(ctx, doubt.ID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(again.Outcome, convey.ShouldEqual, domain.MatchExisting)
			convey.So(again.AssignedTeacher, convey.ShouldEqual, "calc")
			convey.So(notifier.total(), convey.ShouldEqual, 1)
		})

		convey.Convey("Concurrent matches notify the teacher once", func() {
			convey.So(svc.GoOnline(online("calc", "Mathematics", 4.0, 1, "Calculus")), convey.ShouldBeNil)

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = svc.Match(ctx, doubt.ID)
				}()
			}
			wg.Wait()
			convey.So(notifier.total(), convey.ShouldEqual, 1)
		})

		convey.Convey("Offline teachers are not matched", func() {
			convey.So(svc.GoOnline(online("calc", "Mathematics", 4.0, 1, "Calculus")), convey.ShouldBeNil)
			svc.GoOffline("calc")

			result, err := svc.Match(ctx, doubt.ID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(result.Outcome, convey.ShouldEqual, domain.MatchNone)
		})

		convey.Convey("Resolve closes the doubt for its student", func() {
			resolved, err := svc.Resolve(ctx, doubt.ID, "s1", domain.RoleStudent)
			convey.So(err, convey.ShouldBeNil)
			convey.So(resolved.Status, convey.ShouldEqual, domain.DoubtResolved)
		})

		convey.Convey("Only the assigned teacher may resolve and the chat is told", func() {
			channels := newChannelRecorder()
			svc := app.NewDoubtService(store, index, notifier, app.WithDoubtChannels(channels))
			convey.So(svc.GoOnline(online("calc", "Mathematics", 4.0, 1, "Calculus")), convey.ShouldBeNil)
			_, err := svc.Match(ctx, doubt.ID)
			convey.So(err, convey.ShouldBeNil)

			_, err = svc.Resolve(ctx, doubt.ID, "other", domain.RoleTeacher)
			convey.So(errors.Is(err, domain.ErrUnauthorized), convey.ShouldBeTrue)
			_, err = svc.Resolve(ctx, doubt.ID, "s2", domain.RoleStudent)
			convey.So(errors.Is(err, domain.ErrUnauthorized), convey.ShouldBeTrue)
			convey.So(channels.published(app.DoubtChannel(doubt.ID)), convey.ShouldBeEmpty)

			resolved, err := svc.Resolve(ctx, doubt.ID, "calc", domain.RoleTeacher)
			convey.So(err, convey.ShouldBeNil)
			convey.So(resolved.Status, convey.ShouldEqual, domain.DoubtResolved)
			convey.So(channels.published(app.DoubtChannel(doubt.ID)), convey.ShouldResemble, []domain.Outbound{
				domain.DoubtUpdated{DoubtID: doubt.ID, Status: domain.DoubtResolved},
			})
		})

		convey.Convey("Unknown doubts are not found", func() {
			_, err := svc.Match(ctx, "missing")
			convey.So(errors.Is(err, domain.ErrDoubtNotFound), convey.ShouldBeTrue)
		})
	})
}

func TestDoubtServiceValidation(t *testing.T) {
	convey.Convey("Given a doubt service", t, func() {
		svc := app.NewDoubtService(memory.NewDoubtStore(), availability.NewIndex(), &userNotifier{})

		convey.Convey("Submissions need a student, content and subject", func() {
			_, err := svc.Submit(context.Background(), "s1", " ", "Mathematics", "")
			convey.So(errors.Is(err, domain.ErrInvalidRequest), convey.ShouldBeTrue)
		})

		convey.Convey("Ratings are bounded", func() {
			convey.So(errors.Is(svc.GoOnline(online("t", "Mathematics", 6, 0)), domain.ErrInvalidRequest), convey.ShouldBeTrue)
			convey.So(errors.Is(svc.UpdateRating("t", 4.5, -1), domain.ErrInvalidRequest), convey.ShouldBeTrue)
			convey.So(svc.UpdateRating("t", 4.5, 3), convey.ShouldBeNil)
		})

		convey.Convey("NaN ratings are rejected", func() {
			convey.So(errors.Is(svc.GoOnline(online("t", "Mathematics", math.NaN(), 0)), domain.ErrInvalidRequest), convey.ShouldBeTrue)
			convey.So(errors.Is(svc.UpdateRating("t", math.NaN(), 3), domain.ErrInvalidRequest), convey.ShouldBeTrue)
		})
	})
}
