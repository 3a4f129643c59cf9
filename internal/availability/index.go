// Package availability keeps the in-memory view of teachers currently online.
//
// The index is a cache of who can take a doubt right now. The durable teacher
// profile lives elsewhere and is the source of truth after a restart.
package availability

import (
	"sync"

	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/metrics"
)

// Index maps teacher id to availability. One coarse lock guards the map;
// writes (login, logout, rating) are rare compared to match queries.
type Index struct {
	mu       sync.RWMutex
	teachers map[string]domain.TeacherAvailability
}

func NewIndex() *Index {
	return &Index{teachers: make(map[string]domain.TeacherAvailability)}
}

// Register inserts or overwrites the teacher's record.
func (i *Index) Register(teacherID string, profile domain.TeacherAvailability) {
	profile.TeacherID = teacherID
	profile = clone(profile)

	i.mu.Lock()
	i.teachers[teacherID] = profile
	n := len(i.teachers)
	i.mu.Unlock()

	metrics.SetTeachersOnline(n)
}

// Unregister removes the record; absent ids are ignored.
func (i *Index) Unregister(teacherID string) {
	i.mu.Lock()
	delete(i.teachers, teacherID)
	n := len(i.teachers)
	i.mu.Unlock()

	metrics.SetTeachersOnline(n)
}

// UpdateRating overwrites rating and solved count of a registered teacher.
// Teachers that are not online are ignored.
func (i *Index) UpdateRating(teacherID string, rating float64, solvedCount int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	t, ok := i.teachers[teacherID]
	if !ok {
		return
	}
	t.Rating = rating
	t.SolvedCount = solvedCount
	i.teachers[teacherID] = t
}

// FindBySubjectAndSubcategory returns teachers matching both fields exactly.
func (i *Index) FindBySubjectAndSubcategory(subject, subcategory string) []domain.TeacherAvailability {
	return i.filter(func(t domain.TeacherAvailability) bool {
		return t.Subject == subject && t.Teaches(subcategory)
	})
}

// FindBySubject returns teachers whose primary subject matches.
func (i *Index) FindBySubject(subject string) []domain.TeacherAvailability {
	return i.filter(func(t domain.TeacherAvailability) bool {
		return t.Subject == subject
	})
}

// Get returns a copy of one teacher's record.
func (i *Index) Get(teacherID string) (domain.TeacherAvailability, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	t, ok := i.teachers[teacherID]
	if !ok {
		return domain.TeacherAvailability{}, false
	}
	return clone(t), true
}

// Len is the number of teachers online.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.teachers)
}

func (i *Index) filter(keep func(domain.TeacherAvailability) bool) []domain.TeacherAvailability {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []domain.TeacherAvailability
	for _, t := range i.teachers {
		if keep(t) {
			out = append(out, clone(t))
		}
	}
	return out
}

func clone(t domain.TeacherAvailability) domain.TeacherAvailability {
	t.Subcategories = append([]string(nil), t.Subcategories...)
	t.Certifications = append([]string(nil), t.Certifications...)
	return t
}
