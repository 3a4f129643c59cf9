package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tutor-live-service/internal/app"
	"tutor-live-service/internal/auth"
	"tutor-live-service/internal/availability"
	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/infra/memory"
)

type restFixture struct {
	router  *gin.Engine
	hub     *Hub
	coord   *app.Coordinator
	results *memory.ResultStore
	chat    *memory.ChatStore
}

func newRESTFixture() *restFixture {
	gin.SetMode(gin.TestMode)
	hub := NewHub(zerolog.Nop())
	rooms := memory.NewRoomRegistry()
	results := memory.NewResultStore()
	coord := app.NewCoordinator(rooms, memory.NewQuestionStore(nil, time.Hour), hub)
	doubts := app.NewDoubtService(memory.NewDoubtStore(), availability.NewIndex(), hub, app.WithDoubtChannels(hub))
	chatStore := memory.NewChatStore()

	router := NewRouter(RouterDeps{
		Doubts:  doubts,
		Rooms:   coord,
		Results: results,
		Chat:    app.NewChatService(doubts, chatStore, hub),
		Auth:    auth.QueryAuthenticator{},
		Log:     zerolog.Nop(),
	})
	return &restFixture{router: router, hub: hub, coord: coord, results: results, chat: chatStore}
}

func (f *restFixture) do(method, path, userID, role string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestDoubtRESTFlow(t *testing.T) {
	f := newRESTFixture()
	notifications := f.hub.Register("teacher-conn", "calc")

	rec := f.do(http.MethodPost, "/api/teachers/online", "calc", "teacher", map[string]any{
		"rating": 4.0, "solvedCount": 3, "subject": "Mathematics", "subcategories": []string{"Calculus"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("go online: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.do(http.MethodPost, "/api/teachers/online", "broad", "teacher", map[string]any{
		"rating": 5.0, "solvedCount": 30, "subject": "Mathematics",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("go online: expected 200, got %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/api/doubts", "s1", "student", map[string]any{
		"content": "Chain rule?", "subject": "Mathematics", "subcategory": "Calculus",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit doubt: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Doubt domain.Doubt       `json:"doubt"`
		Match domain.MatchResult `json:"match"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Match.AssignedTeacher != "calc" || created.Match.Outcome != domain.MatchExact {
		t.Fatalf("expected exact match to calc, got %+v", created.Match)
	}

	select {
	case raw := <-notifications:
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(raw, &env)
		if env.Type != domain.EventNewDoubt {
			t.Fatalf("expected new_doubt, got %s", env.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("assigned teacher was not notified")
	}

	rec = f.do(http.MethodGet, "/api/teachers/calc/doubts", "calc", "teacher", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(created.Doubt.ID)) {
		t.Fatalf("assigned doubts: %d %s", rec.Code, rec.Body.String())
	}

	_, _ = f.chat.Append(context.Background(), domain.ChatMessage{DoubtID: created.Doubt.ID, Sender: "s1", SenderRole: domain.RoleStudent, Message: "hello"})
	messages := fmt.Sprintf("/api/doubts/%s/messages", created.Doubt.ID)
	if rec = f.do(http.MethodGet, messages, "calc", "teacher", nil); rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("hello")) {
		t.Fatalf("chat history: %d %s", rec.Code, rec.Body.String())
	}
	if rec = f.do(http.MethodGet, messages, "broad", "teacher", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("chat history for another teacher: expected 403, got %d", rec.Code)
	}

	path := fmt.Sprintf("/api/doubts/%s/resolve", created.Doubt.ID)
	if rec = f.do(http.MethodPost, path, "s2", "student", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("other student resolve: expected 403, got %d", rec.Code)
	}
	if rec = f.do(http.MethodPost, path, "broad", "teacher", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("other teacher resolve: expected 403, got %d", rec.Code)
	}
	if rec = f.do(http.MethodPost, path, "calc", "teacher", nil); rec.Code != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d", rec.Code)
	}

	if rec = f.do(http.MethodPost, "/api/doubts/missing/match", "s1", "student", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown doubt: expected 404, got %d", rec.Code)
	}
	if rec = f.do(http.MethodPost, "/api/doubts", "", "", map[string]any{"content": "x", "subject": "y"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rec.Code)
	}
	if rec = f.do(http.MethodPost, "/api/doubts", "s1", "student", map[string]any{"content": "x"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing subject: expected 400, got %d", rec.Code)
	}
}

func TestRatingUpdateIsLimitedToSelf(t *testing.T) {
	f := newRESTFixture()
	body := map[string]any{"rating": 4.5, "solvedCount": 10}

	if rec := f.do(http.MethodPut, "/api/teachers/calc/rating", "broad", "teacher", body); rec.Code != http.StatusForbidden {
		t.Fatalf("rating another teacher: expected 403, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPut, "/api/teachers/calc/rating", "calc", "student", body); rec.Code != http.StatusForbidden {
		t.Fatalf("rating as student: expected 403, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPut, "/api/teachers/calc/rating", "calc", "teacher", body); rec.Code != http.StatusNoContent {
		t.Fatalf("own rating: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRoomREST(t *testing.T) {
	f := newRESTFixture()
	ctx := context.Background()
	owner := app.Session{Handle: "h-t1", UserID: "t1", Role: domain.RoleTeacher}
	err := f.coord.StoreQuiz(ctx, owner, domain.StoreQuiz{
		RoomID:    "ABC123",
		TeacherID: "t1",
		QuestionSet: domain.QuestionSet{Easy: []domain.Question{
			{Prompt: "2+2?", Options: []string{"3", "4"}, Answer: "4"},
		}},
	})
	if err != nil {
		t.Fatalf("store quiz: %v", err)
	}

	rec := f.do(http.MethodGet, "/api/rooms/ABC123/verify", "s1", "student", nil)
	var verified domain.RoomVerified
	_ = json.Unmarshal(rec.Body.Bytes(), &verified)
	if rec.Code != http.StatusOK || !verified.Exists {
		t.Fatalf("verify: %d %+v", rec.Code, verified)
	}
	rec = f.do(http.MethodGet, "/api/rooms/NOPE/verify", "s1", "student", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &verified)
	if verified.Exists {
		t.Fatalf("unknown room must not verify")
	}

	rec = f.do(http.MethodGet, "/api/rooms/ABC123", "t1", "teacher", nil)
	var snap app.RoomSnapshot
	_ = json.Unmarshal(rec.Body.Bytes(), &snap)
	if rec.Code != http.StatusOK || snap.TotalQuestions != 1 || snap.Owner != "t1" {
		t.Fatalf("room snapshot: %d %+v", rec.Code, snap)
	}
	if rec = f.do(http.MethodGet, "/api/rooms/NOPE", "t1", "teacher", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown room: expected 404, got %d", rec.Code)
	}

	if rec = f.do(http.MethodGet, "/api/rooms/ABC123/results", "t1", "teacher", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unpublished results: expected 404, got %d", rec.Code)
	}
	_ = f.results.SaveResult(ctx, domain.ResultRecord{RoomID: "ABC123", OwnerID: "t1", PublishedAt: time.Now()})
	if rec = f.do(http.MethodGet, "/api/rooms/ABC123/results", "t1", "teacher", nil); rec.Code != http.StatusOK {
		t.Fatalf("results: expected 200, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	f := newRESTFixture()
	rec := f.do(http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrRoomNotFound, http.StatusNotFound},
		{domain.ErrDoubtNotFound, http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrAlreadyAnswered, http.StatusBadRequest},
		{domain.ErrInvalidState, http.StatusConflict},
		{domain.ErrDoubtNotPending, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", domain.ErrQuestionSetNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
