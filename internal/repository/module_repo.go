package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"teachme/internal/database"
	"teachme/internal/models"
)

// ModuleRepository handles the module catalogue and per-child lesson
// completion markers
type ModuleRepository struct {
	db database.DBTX
}

// NewModuleRepository creates a new module repository
func NewModuleRepository(db database.DBTX) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ModuleRepository) WithTx(tx *database.Tx) *ModuleRepository {
	return &ModuleRepository{db: tx}
}

// ReleaseModulePositions moves the modules of a subject and grade to
// positions from offset upward, keeping their order, so that positions
// 0..offset-1 are free to write. Unique constraints are checked row by row,
// so the shift goes through negative positions.
func (r *ModuleRepository) ReleaseModulePositions(ctx context.Context, subject models.Subject, grade, offset int) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE modules SET position = -1 - position WHERE subject = ? AND grade = ?",
		string(subject), grade); err != nil {
		return wrapErr("release module positions", err)
	}
	if _, err := r.db.ExecContext(ctx,
		"UPDATE modules SET position = ? - 1 - position WHERE subject = ? AND grade = ? AND position < 0",
		offset, string(subject), grade); err != nil {
		return wrapErr("release module positions", err)
	}
	return nil
}

// UpsertModule creates or replaces a module and its lessons. Lessons of the
// module that are not in m.Lessons are deleted along with their completion
// markers. The module's position must be free in its subject and grade,
// see ReleaseModulePositions.
func (r *ModuleRepository) UpsertModule(ctx context.Context, m models.Module) error {
	dialect := r.db.GetDialect()

	moduleQuery := dialect.UpsertQuery("modules",
		[]string{"id", "subject", "grade", "position", "title", "icon"}, []string{"id"})
	if _, err := r.db.ExecContext(ctx, moduleQuery,
		m.ID, string(m.Subject), m.Grade, m.Position, m.Title, m.Icon); err != nil {
		return wrapErr("upsert module", err)
	}

	if err := r.releaseLessons(ctx, m); err != nil {
		return err
	}

	lessonQuery := dialect.UpsertQuery("lessons",
		[]string{"id", "module_id", "position", "title", "icon"}, []string{"id"})
	for _, l := range m.Lessons {
		if _, err := r.db.ExecContext(ctx, lessonQuery, l.ID, m.ID, l.Position, l.Title, l.Icon); err != nil {
			return wrapErr("upsert lesson", err)
		}
	}
	return nil
}

// releaseLessons frees every lesson position of m and drops lessons that m
// no longer lists
func (r *ModuleRepository) releaseLessons(ctx context.Context, m models.Module) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE lessons SET position = -1 - position WHERE module_id = ?", m.ID); err != nil {
		return wrapErr("release lesson positions", err)
	}

	query := "DELETE FROM lessons WHERE module_id = ?"
	args := []any{m.ID}
	if len(m.Lessons) > 0 {
		placeholders := make([]string, len(m.Lessons))
		for i, l := range m.Lessons {
			placeholders[i] = "?"
			args = append(args, l.ID)
		}
		query += " AND id NOT IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return wrapErr("delete dropped lessons", err)
	}
	return nil
}

// ListModules returns the modules for a subject and grade in position
// order, each with its lessons in position order. Status and progress
// fields are left empty.
func (r *ModuleRepository) ListModules(ctx context.Context, subject models.Subject, grade int) ([]models.Module, error) {
	return r.listModules(ctx, "WHERE m.subject = ? AND m.grade = ?", string(subject), grade)
}

// ListAllModules returns the whole catalogue
func (r *ModuleRepository) ListAllModules(ctx context.Context) ([]models.Module, error) {
	return r.listModules(ctx, "")
}

func (r *ModuleRepository) listModules(ctx context.Context, where string, args ...any) ([]models.Module, error) {
	query := `
		SELECT m.id, m.subject, m.grade, m.position, m.title, m.icon,
			l.id, l.position, l.title, l.icon
		FROM modules m
		LEFT JOIN lessons l ON l.module_id = m.id
		` + where + `
		ORDER BY m.subject ASC, m.grade ASC, m.position ASC, l.position ASC
	`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query modules", err)
	}
	defer rows.Close()

	modules := []models.Module{}
	for rows.Next() {
		var (
			m                                 models.Module
			lessonID, lessonTitle, lessonIcon sql.NullString
			lessonPosition                    sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.Subject, &m.Grade, &m.Position, &m.Title, &m.Icon,
			&lessonID, &lessonPosition, &lessonTitle, &lessonIcon); err != nil {
			return nil, wrapErr("scan module", err)
		}

		if n := len(modules); n == 0 || modules[n-1].ID != m.ID {
			m.Lessons = []models.Lesson{}
			modules = append(modules, m)
		}
		if lessonID.Valid {
			last := &modules[len(modules)-1]
			last.Lessons = append(last.Lessons, models.Lesson{
				ID:       lessonID.String,
				ModuleID: last.ID,
				Position: int(lessonPosition.Int64),
				Title:    lessonTitle.String,
				Icon:     lessonIcon.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("query modules", err)
	}
	return modules, nil
}

// GetModuleForLesson returns the module containing a lesson, with all of
// its lessons
func (r *ModuleRepository) GetModuleForLesson(ctx context.Context, lessonID string) (*models.Module, error) {
	var moduleID string
	err := r.db.QueryRowContext(ctx, "SELECT module_id FROM lessons WHERE id = ?", lessonID).Scan(&moduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLessonNotFound
	}
	if err != nil {
		return nil, wrapErr("get lesson", err)
	}

	modules, err := r.listModules(ctx, "WHERE m.id = ?", moduleID)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return nil, ErrModuleNotFound
	}
	return &modules[0], nil
}

// ListCompletions returns a child's completion markers keyed by lesson ID
func (r *ModuleRepository) ListCompletions(ctx context.Context, childID string) (map[string]models.LessonCompletion, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT lesson_id, completed, progress_percent FROM lesson_completions WHERE child_id = ?", childID)
	if err != nil {
		return nil, wrapErr("query lesson completions", err)
	}
	defer rows.Close()

	completions := make(map[string]models.LessonCompletion)
	for rows.Next() {
		var c models.LessonCompletion
		if err := rows.Scan(&c.LessonID, &c.Completed, &c.ProgressPercent); err != nil {
			return nil, wrapErr("scan lesson completion", err)
		}
		completions[c.LessonID] = c
	}
	return completions, rows.Err()
}

// SaveCompletion creates or replaces a child's marker for one lesson
func (r *ModuleRepository) SaveCompletion(ctx context.Context, childID string, c models.LessonCompletion) error {
	query := r.db.GetDialect().UpsertQuery("lesson_completions",
		[]string{"child_id", "lesson_id", "completed", "progress_percent", "updated_at"},
		[]string{"child_id", "lesson_id"})
	if _, err := r.db.ExecContext(ctx, query,
		childID, c.LessonID, c.Completed, c.ProgressPercent, time.Now().UTC()); err != nil {
		return wrapErr("save lesson completion", err)
	}
	return nil
}
