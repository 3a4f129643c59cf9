// Package seed loads development fixtures: online teachers, doubts and
// stored question sets.
package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"tutor-live-service/internal/domain"
)

// Fixtures is the YAML document read by Load.
type Fixtures struct {
	Teachers []domain.TeacherAvailability  `yaml:"teachers"`
	Doubts   []domain.Doubt                `yaml:"doubts"`
	Quizzes  map[string]domain.QuestionSet `yaml:"quizzes"`
}

// Teachers brings teachers online.
type Teachers interface {
	GoOnline(profile domain.TeacherAvailability) error
}

// DoubtCreator stores doubts.
type DoubtCreator interface {
	Create(ctx context.Context, doubt domain.Doubt) (domain.Doubt, error)
}

// QuestionSaver stores question sets by room code.
type QuestionSaver interface {
	Save(ctx context.Context, roomID string, set domain.QuestionSet) error
}

// Targets receive the fixtures. Nil targets are skipped.
type Targets struct {
	Teachers  Teachers
	Doubts    DoubtCreator
	Questions QuestionSaver
}

// Load reads fixtures from a YAML file.
func Load(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read seed file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML fixtures document.
func Parse(data []byte) (Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixtures{}, fmt.Errorf("decode seed: %w", err)
	}
	return f, nil
}

// Apply pushes fixtures into the targets and stops at the first failure.
func Apply(ctx context.Context, f Fixtures, t Targets, now time.Time) error {
	if t.Teachers != nil {
		for _, teacher := range f.Teachers {
			if err := t.Teachers.GoOnline(teacher); err != nil {
				return fmt.Errorf("seed teacher %s: %w", teacher.TeacherID, err)
			}
		}
	}
	if t.Doubts != nil {
		for _, doubt := range f.Doubts {
			if doubt.ID == "" {
				doubt.ID = uuid.NewString()
			}
			if doubt.Status == "" {
				doubt.Status = domain.DoubtPending
			}
			doubt.CreatedAt, doubt.UpdatedAt = now.UTC(), now.UTC()
			if _, err := t.Doubts.Create(ctx, doubt); err != nil {
				return fmt.Errorf("seed doubt %s: %w", doubt.ID, err)
			}
		}
	}
	if t.Questions != nil {
		for roomID, set := range f.Quizzes {
			if err := t.Questions.Save(ctx, roomID, set.Normalized()); err != nil {
				return fmt.Errorf("seed quiz %s: %w", roomID, err)
			}
		}
	}
	return nil
}
