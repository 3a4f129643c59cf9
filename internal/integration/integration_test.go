package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"tutor-live-service/internal/app"
	"tutor-live-service/internal/availability"
	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/infra/postgres"
	infraredis "tutor-live-service/internal/infra/redis"
)

type teacherInbox struct {
	events []domain.Outbound
}

func (n *teacherInbox) NotifyUser(_ string, event domain.Outbound) {
	n.events = append(n.events, event)
}

func TestPostgresStores(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	dsn, cleanup := startPostgres(t, ctx)
	defer cleanup()

	db := postgres.OpenBun(dsn)
	defer db.Close()
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	group, err := postgres.Migrate(ctx, db)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if !group.IsZero() {
		t.Fatalf("expected migrations to be applied once, got %s", group)
	}

	pool, err := postgres.OpenPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	doubts := postgres.NewDoubtStore(pool)
	inbox := &teacherInbox{}
	svc := app.NewDoubtService(doubts, availability.NewIndex(), inbox)
	if err := svc.GoOnline(domain.TeacherAvailability{
		TeacherID: "calc", Rating: 4, SolvedCount: 1, Subject: "Mathematics", Subcategories: []string{"Calculus"},
	}); err != nil {
		t.Fatalf("go online: %v", err)
	}

	doubt, err := svc.Submit(ctx, "s1", "What is a limit?", "Mathematics", "Calculus")
	if err != nil {
		t.Fatalf("submit doubt: %v", err)
	}
	result, err := svc.Match(ctx, doubt.ID)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if result.AssignedTeacher != "calc" || len(inbox.events) != 1 {
		t.Fatalf("expected assignment to calc, got %+v", result)
	}
	if _, err := doubts.Assign(ctx, doubt.ID, "other"); !errors.Is(err, domain.ErrDoubtNotPending) {
		t.Fatalf("expected conditional assign to fail, got %v", err)
	}
	if _, err := doubts.Get(ctx, "missing"); !errors.Is(err, domain.ErrDoubtNotFound) {
		t.Fatalf("expected doubt not found, got %v", err)
	}
	assigned, err := svc.AssignedTo(ctx, "calc")
	if err != nil || len(assigned) != 1 {
		t.Fatalf("assigned to calc: %v %+v", err, assigned)
	}
	if _, err := svc.Resolve(ctx, doubt.ID, "other", domain.RoleTeacher); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected another teacher to be refused, got %v", err)
	}
	resolved, err := svc.Resolve(ctx, doubt.ID, "calc", domain.RoleTeacher)
	if err != nil || resolved.Status != domain.DoubtResolved {
		t.Fatalf("resolve: %v %+v", err, resolved)
	}

	chat := postgres.NewChatStore(db)
	sent := time.Now().UTC().Truncate(time.Millisecond)
	for i, text := range []string{"hi", "what is a limit?", "let me explain"} {
		_, err := chat.Append(ctx, domain.ChatMessage{
			DoubtID:    doubt.ID,
			Sender:     "s1",
			SenderRole: domain.RoleStudent,
			Message:    text,
			Timestamp:  sent.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append chat message: %v", err)
		}
	}
	history, err := chat.History(ctx, doubt.ID, 2)
	if err != nil {
		t.Fatalf("chat history: %v", err)
	}
	if len(history) != 2 || history[0].Message != "what is a limit?" || history[1].SenderRole != domain.RoleStudent {
		t.Fatalf("expected the two latest messages oldest first, got %+v", history)
	}

	results := postgres.NewResultStore(db)
	published := time.Now().UTC().Truncate(time.Second)
	saves := []struct {
		after time.Duration
		score int
	}{
		{0, 1},
		{0, 1}, // redelivery of the first record
		{time.Minute, 3},
	}
	for _, save := range saves {
		err := results.SaveResult(ctx, domain.ResultRecord{
			RoomID:      "ABC123",
			OwnerID:     "t1",
			Results:     []domain.RankedResult{{Rank: 1, UserID: "S1", DisplayName: "Asha", Score: save.score}},
			PublishedAt: published.Add(save.after),
		})
		if err != nil {
			t.Fatalf("save result: %v", err)
		}
	}
	latest, err := results.GetResult(ctx, "ABC123")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if len(latest.Results) != 1 || latest.Results[0].Score != 3 {
		t.Fatalf("expected the latest record, got %+v", latest)
	}
	if _, err := results.GetResult(ctx, "NOPE"); !errors.Is(err, domain.ErrResultsNotFound) {
		t.Fatalf("expected results not found, got %v", err)
	}
	all, err := results.ListResults(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("list results: %v %d", err, len(all))
	}
}

func TestRedisStores(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, cleanup := startRedis(t, ctx)
	defer cleanup()

	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	questions := infraredis.NewQuestionStore(client, time.Minute)
	set := domain.QuestionSet{Medium: []domain.Question{{Prompt: "2+2?", Options: []string{"3", "4"}, Answer: "4"}}}
	if err := questions.Save(ctx, "ABC123", set.Normalized()); err != nil {
		t.Fatalf("save questions: %v", err)
	}
	loaded, err := questions.Load(ctx, "ABC123")
	if err != nil || loaded.Total() != 1 || loaded.Medium[0].Answer != "4" {
		t.Fatalf("load questions: %v %+v", err, loaded)
	}

	rooms := infraredis.NewRoomRegistry(client, time.Minute)
	room := rooms.CreateRoom("ABC123", "t1", loaded)
	if n, err := client.Exists(ctx, "room:live:ABC123").Result(); err != nil || n != 1 {
		t.Fatalf("expected live marker: %v %d", err, n)
	}
	if err := rooms.Touch(ctx); err != nil {
		t.Fatalf("touch: %v", err)
	}
	rooms.RemoveRoom(room)
	if n, _ := client.Exists(ctx, "room:live:ABC123").Result(); n != 0 {
		t.Fatalf("expected live marker to be removed")
	}

	results := infraredis.NewResultStore(client, time.Minute)
	if err := results.SaveResult(ctx, domain.ResultRecord{RoomID: "ABC123", OwnerID: "t1"}); err != nil {
		t.Fatalf("save result: %v", err)
	}
	record, err := results.GetResult(ctx, "ABC123")
	if err != nil || record.OwnerID != "t1" {
		t.Fatalf("get result: %v %+v", err, record)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "tutor", "POSTGRES_PASSWORD": "tutorpass", "POSTGRES_DB": "tutordb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://tutor:tutorpass@%s:%s/tutordb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
