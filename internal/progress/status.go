// Package progress derives lesson display state and progress rollups from a
// child's raw completion records. Everything here is pure: no I/O and the
// same input always yields the same output.
package progress

import (
	"fmt"

	"teachme/internal/models"
	"teachme/internal/validation"
)

// DeriveStatuses returns the display status of each lesson in an ordered
// module. The first lesson is never locked; every later lesson is locked
// until its predecessor is completed. An unlocked lesson that is not marked
// complete is reported as in progress, even at 0%.
func DeriveStatuses(records []models.LessonCompletion) ([]models.LessonStatus, error) {
	statuses := make([]models.LessonStatus, len(records))
	for i, rec := range records {
		if err := validation.ValidateProgressPercent(rec.ProgressPercent); err != nil {
			return nil, fmt.Errorf("lesson %d: %w", i, err)
		}

		switch {
		case i > 0 && statuses[i-1] != models.LessonCompleted:
			statuses[i] = models.LessonLocked
		case rec.Completed:
			statuses[i] = models.LessonCompleted
		default:
			statuses[i] = models.LessonInProgress
		}
	}
	return statuses, nil
}

// ApplyCompletions fills in status, progress and the derived lesson counts
// of m from the child's completion records, keyed by lesson ID. Lessons
// without a record are treated as not started.
func ApplyCompletions(m models.Module, completions map[string]models.LessonCompletion) (models.Module, error) {
	records := make([]models.LessonCompletion, len(m.Lessons))
	for i, lesson := range m.Lessons {
		rec := completions[lesson.ID]
		rec.LessonID = lesson.ID
		records[i] = rec
	}

	statuses, err := DeriveStatuses(records)
	if err != nil {
		return models.Module{}, fmt.Errorf("module %s: %w", m.ID, err)
	}

	lessons := make([]models.Lesson, len(m.Lessons))
	completed := 0
	for i, lesson := range m.Lessons {
		lesson.Status = statuses[i]
		switch statuses[i] {
		case models.LessonCompleted:
			lesson.Progress = 100
			completed++
		case models.LessonInProgress:
			lesson.Progress = min(records[i].ProgressPercent, 99)
		default:
			lesson.Progress = 0
		}
		lessons[i] = lesson
	}

	m.Lessons = lessons
	m.CompletedLessons = completed
	m.TotalLessons = len(lessons)
	m.ProgressPercent = ModuleProgressPercent(m)
	return m, nil
}
