package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tutor-live-service/internal/app"
	"tutor-live-service/internal/availability"
	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/infra/memory"
)

const fixture = `
teachers:
  - teacherId: t1
    name: Ms Rao
    rating: 4.5
    solvedCount: 10
    subject: Mathematics
    subcategories: [Calculus]
doubts:
  - studentId: s1
    content: What is a limit?
    subject: Mathematics
    subcategory: Calculus
quizzes:
  ABC123:
    - question: "2+2?"
      options: ["3", "4", "5"]
      answer: "4"
`

func TestParseAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(fixture), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(f.Teachers) != 1 || f.Teachers[0].Rating != 4.5 || len(f.Doubts) != 1 {
		t.Fatalf("unexpected fixtures: %+v", f)
	}

	ctx := context.Background()
	index := availability.NewIndex()
	doubts := memory.NewDoubtStore()
	questions := memory.NewQuestionStore(nil, 0)
	svc := app.NewDoubtService(doubts, index, nil)

	now := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	if err := Apply(ctx, f, Targets{Teachers: svc, Doubts: doubts, Questions: questions}, now); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if got := index.FindBySubjectAndSubcategory("Mathematics", "Calculus"); len(got) != 1 {
		t.Fatalf("expected seeded teacher online, got %d", len(got))
	}
	pending, _ := doubts.ListByStatus(ctx, domain.DoubtPending)
	if len(pending) != 1 || pending[0].ID == "" || !pending[0].CreatedAt.Equal(now) {
		t.Fatalf("unexpected seeded doubts: %+v", pending)
	}
	set, err := questions.Load(ctx, "ABC123")
	if err != nil {
		t.Fatalf("load seeded quiz: %v", err)
	}
	if set.Total() != 1 || set.Medium[0].ID != "medium-0" {
		t.Fatalf("unexpected seeded quiz: %+v", set)
	}
}

func TestApplyStopsOnInvalidTeacher(t *testing.T) {
	f := Fixtures{Teachers: []domain.TeacherAvailability{{TeacherID: "t1"}}}
	svc := app.NewDoubtService(memory.NewDoubtStore(), availability.NewIndex(), nil)
	if err := Apply(context.Background(), f, Targets{Teachers: svc}, time.Now()); err == nil {
		t.Fatalf("expected error for a teacher without subject")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for a missing file")
	}
}
