package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"teachme/internal/database"
	"teachme/internal/models"
	"teachme/internal/profilesync"
	"teachme/internal/progress"
	"teachme/internal/repository"
	"teachme/internal/validation"
)

var ErrLessonLocked = errors.New("lesson is locked until the previous lesson is completed")

// catalogueNamespace derives stable IDs for seeded modules and lessons that
// do not carry one
var catalogueNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://teachme.app/catalogue"))

// LessonProgressResult reports the outcome of a progress update
type LessonProgressResult struct {
	Lesson          models.Lesson `json:"lesson"`
	Module          models.Module `json:"module"`
	Child           *models.Child `json:"child"`
	LessonCompleted bool          `json:"lessonCompleted"`
	ModuleCompleted bool          `json:"moduleCompleted"`
	StarsAwarded    int           `json:"starsAwarded"`
}

// LearningService serves the module catalogue with per-child lesson state
// and records lesson progress
type LearningService struct {
	db         *database.DB
	sync       *profilesync.Synchronizer
	moduleRepo *repository.ModuleRepository
	childRepo  *repository.ChildRepository
}

// NewLearningService creates a new learning service
func NewLearningService(db *database.DB, sync *profilesync.Synchronizer) *LearningService {
	return &LearningService{
		db:         db,
		sync:       sync,
		moduleRepo: repository.NewModuleRepository(db),
		childRepo:  repository.NewChildRepository(db),
	}
}

func parseSubject(s string) (models.Subject, error) {
	subject, ok := models.ParseSubject(strings.ToLower(s))
	if !ok {
		return "", validation.ValidationError{Field: "subject", Message: "unknown subject " + s}
	}
	return subject, nil
}

// ModulesFor returns the child's modules in subject for their grade with
// lesson statuses and progress rollups filled in
func (s *LearningService) ModulesFor(ctx context.Context, child *models.Child, subjectName string) (*models.SubjectOverview, error) {
	subject, err := parseSubject(subjectName)
	if err != nil {
		return nil, err
	}

	modules, err := s.sync.LoadModulesForSubjectGrade(ctx, subject, child.Grade)
	if err != nil {
		return nil, err
	}
	completions, err := s.moduleRepo.ListCompletions(ctx, child.ID)
	if err != nil {
		return nil, err
	}

	for i := range modules {
		if modules[i], err = progress.ApplyCompletions(modules[i], completions); err != nil {
			return nil, err
		}
	}

	return &models.SubjectOverview{
		Subject:         subject,
		Grade:           child.Grade,
		Modules:         modules,
		ProgressPercent: progress.OverallProgressPercent(modules),
	}, nil
}

// RecordLessonProgress stores progress on a lesson. Progress never goes
// down; reaching 100 completes the lesson and awards a star. Completing
// the last lesson of a module raises the subject level and adds the
// module to the child's rewards.
func (s *LearningService) RecordLessonProgress(ctx context.Context, child *models.Child, lessonID string, percent int) (*LessonProgressResult, error) {
	if err := validation.ValidateProgressPercent(percent); err != nil {
		return nil, err
	}

	module, err := s.moduleRepo.GetModuleForLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if module.Grade != child.Grade {
		return nil, repository.ErrLessonNotFound
	}

	var result *LessonProgressResult
	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		result, err = s.recordInTx(ctx, tx, child.ID, *module, lessonID, percent)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.LessonCompleted {
		s.sync.ChildrenChanged(ctx, child.ParentID)
		log.Info().Str("child_id", child.ID).Str("lesson_id", lessonID).
			Bool("module_completed", result.ModuleCompleted).Msg("Lesson completed")
	}
	return result, nil
}

func (s *LearningService) recordInTx(ctx context.Context, tx *database.Tx, childID string, module models.Module, lessonID string, percent int) (*LessonProgressResult, error) {
	modules := s.moduleRepo.WithTx(tx)
	children := s.childRepo.WithTx(tx)

	completions, err := modules.ListCompletions(ctx, childID)
	if err != nil {
		return nil, err
	}
	before, err := progress.ApplyCompletions(module, completions)
	if err != nil {
		return nil, err
	}

	idx := lessonIndex(before, lessonID)
	if idx < 0 {
		return nil, repository.ErrLessonNotFound
	}
	if before.Lessons[idx].Status == models.LessonLocked {
		return nil, ErrLessonLocked
	}

	child, err := children.GetChild(ctx, childID)
	if err != nil {
		return nil, err
	}

	current := completions[lessonID]
	if current.Completed {
		return &LessonProgressResult{Lesson: before.Lessons[idx], Module: before, Child: child}, nil
	}

	next := models.LessonCompletion{
		LessonID:        lessonID,
		ProgressPercent: max(current.ProgressPercent, percent),
	}
	next.Completed = next.ProgressPercent >= 100
	if err := modules.SaveCompletion(ctx, childID, next); err != nil {
		return nil, err
	}
	completions[lessonID] = next

	after, err := progress.ApplyCompletions(module, completions)
	if err != nil {
		return nil, err
	}
	result := &LessonProgressResult{
		Lesson:          after.Lessons[idx],
		Module:          after,
		Child:           child,
		LessonCompleted: next.Completed,
	}
	if !next.Completed {
		return result, nil
	}

	result.StarsAwarded = 1
	result.ModuleCompleted = after.CompletedLessons == after.TotalLessons

	level := 0
	if result.ModuleCompleted {
		if level, err = s.completedModuleLevel(ctx, modules, module, completions); err != nil {
			return nil, err
		}
		if err := children.AddReward(ctx, childID, module.Title); err != nil {
			return nil, err
		}
		child.Rewards = append(child.Rewards, module.Title)
	}

	updated, err := progress.Award(child.Progress, module.Subject, result.StarsAwarded, level)
	if err != nil {
		return nil, err
	}
	if err := children.SetProgress(ctx, childID, updated); err != nil {
		return nil, err
	}
	child.Progress = updated
	return result, nil
}

// completedModuleLevel counts the fully completed modules of module's
// subject and grade and maps the count to a level
func (s *LearningService) completedModuleLevel(ctx context.Context, modules *repository.ModuleRepository, module models.Module, completions map[string]models.LessonCompletion) (int, error) {
	all, err := modules.ListModules(ctx, module.Subject, module.Grade)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, m := range all {
		applied, err := progress.ApplyCompletions(m, completions)
		if err != nil {
			return 0, err
		}
		if applied.TotalLessons > 0 && applied.CompletedLessons == applied.TotalLessons {
			done++
		}
	}
	return progress.LevelForCompletedModules(done), nil
}

func lessonIndex(m models.Module, lessonID string) int {
	for i, l := range m.Lessons {
		if l.ID == lessonID {
			return i
		}
	}
	return -1
}

// Catalogue is the JSON document SeedModules reads
type Catalogue struct {
	Modules []CatalogueModule `json:"modules"`
}

// CatalogueModule is one module of a seed catalogue. Positions default to
// the order of appearance.
type CatalogueModule struct {
	ID      string            `json:"id,omitempty"`
	Subject string            `json:"subject"`
	Grade   int               `json:"grade"`
	Title   string            `json:"title"`
	Icon    string            `json:"icon"`
	Lessons []CatalogueLesson `json:"lessons"`
}

// CatalogueLesson is one lesson of a seed catalogue module
type CatalogueLesson struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

// SeedModules loads a JSON catalogue into the module store, replacing
// modules and lessons with the same IDs. A seeded module loses the lessons
// the catalogue no longer lists. It returns the number of modules written.
func (s *LearningService) SeedModules(ctx context.Context, r io.Reader) (int, error) {
	var catalogue Catalogue
	if err := json.NewDecoder(r).Decode(&catalogue); err != nil {
		return 0, fmt.Errorf("failed to decode catalogue: %w", err)
	}

	type shelf struct {
		subject models.Subject
		grade   int
	}
	var shelves []shelf
	positions := make(map[shelf]int)
	modules := make([]models.Module, 0, len(catalogue.Modules))
	for i, cm := range catalogue.Modules {
		m, err := cm.toModule()
		if err != nil {
			return 0, fmt.Errorf("module %d: %w", i, err)
		}
		key := shelf{m.Subject, m.Grade}
		if _, ok := positions[key]; !ok {
			shelves = append(shelves, key)
		}
		m.Position = positions[key]
		positions[key]++
		modules = append(modules, m)
	}

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		repo := s.moduleRepo.WithTx(tx)
		// Modules left out of the catalogue keep their order after the
		// seeded ones
		for _, sh := range shelves {
			if err := repo.ReleaseModulePositions(ctx, sh.subject, sh.grade, positions[sh]); err != nil {
				return err
			}
		}
		for _, m := range modules {
			if err := repo.UpsertModule(ctx, m); err != nil {
				return fmt.Errorf("failed to store module %q: %w", m.Title, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().Int("modules", len(modules)).Msg("Module catalogue seeded")
	return len(modules), nil
}

func (cm CatalogueModule) toModule() (models.Module, error) {
	subject, err := parseSubject(cm.Subject)
	if err != nil {
		return models.Module{}, err
	}
	if err := validation.ValidateGrade(cm.Grade); err != nil {
		return models.Module{}, err
	}
	title := strings.TrimSpace(cm.Title)
	if title == "" {
		return models.Module{}, validation.ValidationError{Field: "title", Message: "module title is required"}
	}

	id := cm.ID
	if id == "" {
		id = uuid.NewSHA1(catalogueNamespace, fmt.Appendf(nil, "%s/%d/%s", subject, cm.Grade, title)).String()
	}

	m := models.Module{
		ID:      id,
		Subject: subject,
		Grade:   cm.Grade,
		Title:   title,
		Icon:    cm.Icon,
		Lessons: make([]models.Lesson, 0, len(cm.Lessons)),
	}
	for i, cl := range cm.Lessons {
		lessonTitle := strings.TrimSpace(cl.Title)
		if lessonTitle == "" {
			return models.Module{}, validation.ValidationError{Field: "lessons", Message: fmt.Sprintf("lesson %d has no title", i)}
		}
		lessonID := cl.ID
		if lessonID == "" {
			lessonID = uuid.NewSHA1(catalogueNamespace, fmt.Appendf(nil, "%s/%d/%s", id, i, lessonTitle)).String()
		}
		m.Lessons = append(m.Lessons, models.Lesson{
			ID:       lessonID,
			ModuleID: id,
			Position: i,
			Title:    lessonTitle,
			Icon:     cl.Icon,
		})
	}
	return m, nil
}
