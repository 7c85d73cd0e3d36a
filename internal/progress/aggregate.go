package progress

import (
	"math"

	"teachme/internal/models"
	"teachme/internal/validation"
)

// ModuleProgressPercent returns the share of completed lessons in m as a
// rounded percentage, or 0 for a module without lessons.
func ModuleProgressPercent(m models.Module) int {
	return percent(m.CompletedLessons, m.TotalLessons)
}

// OverallProgressPercent applies the module formula to the summed lesson
// counts of all modules.
func OverallProgressPercent(modules []models.Module) int {
	var completed, total int
	for _, m := range modules {
		completed += m.CompletedLessons
		total += m.TotalLessons
	}
	return percent(completed, total)
}

// MaxLevelAcrossSubjects returns the highest level across all subjects.
// Missing subjects count as level 1, so the result is never below 1.
func MaxLevelAcrossSubjects(p models.Progress) (int, error) {
	if err := Validate(p); err != nil {
		return 0, err
	}
	maxLevel := 1
	for _, subject := range models.Subjects {
		if sp, ok := p[subject]; ok && sp.Level > maxLevel {
			maxLevel = sp.Level
		}
	}
	return maxLevel, nil
}

// TotalStars sums stars over all present subjects
func TotalStars(p models.Progress) (int, error) {
	if err := Validate(p); err != nil {
		return 0, err
	}
	total := 0
	for _, subject := range models.Subjects {
		total += p[subject].Stars
	}
	return total, nil
}

// Validate rejects progress records with unknown subjects, levels below 1
// or negative star counts.
func Validate(p models.Progress) error {
	for subject, sp := range p {
		if _, ok := models.ParseSubject(string(subject)); !ok {
			return validation.ValidationError{Field: "progress", Message: "unknown subject " + string(subject)}
		}
		if sp.Level < 1 {
			return validation.ValidationError{Field: "progress." + string(subject) + ".level", Message: "level must be at least 1"}
		}
		if sp.Stars < 0 {
			return validation.ValidationError{Field: "progress." + string(subject) + ".stars", Message: "stars must not be negative"}
		}
	}
	return nil
}

func percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}
