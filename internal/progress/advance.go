package progress

import (
	"teachme/internal/models"
	"teachme/internal/validation"
)

// Award returns a copy of p with stars added to subject and its level raised
// to at least level. Counters only ever grow: a level lower than the current
// one is ignored and negative star awards are rejected.
func Award(p models.Progress, subject models.Subject, stars, level int) (models.Progress, error) {
	if _, ok := models.ParseSubject(string(subject)); !ok {
		return nil, validation.ValidationError{Field: "subject", Message: "unknown subject " + string(subject)}
	}
	if stars < 0 {
		return nil, validation.ValidationError{Field: "stars", Message: "stars must not be negative"}
	}
	if err := Validate(p); err != nil {
		return nil, err
	}

	out := p.Clone()
	sp, ok := out[subject]
	if !ok {
		sp = models.SubjectProgress{Level: 1}
	}
	sp.Stars += stars
	if level > sp.Level {
		sp.Level = level
	}
	out[subject] = sp
	return out, nil
}

// LevelForCompletedModules maps the number of fully completed modules in a
// subject to the subject level.
func LevelForCompletedModules(completedModules int) int {
	return 1 + max(completedModules, 0)
}
