package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"teachme/internal/database"
	"teachme/internal/models"
)

// ChildRepository handles database operations for child profiles, their
// rewards and kid sessions
type ChildRepository struct {
	db database.DBTX
}

// NewChildRepository creates a new child repository
func NewChildRepository(db database.DBTX) *ChildRepository {
	return &ChildRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ChildRepository) WithTx(tx *database.Tx) *ChildRepository {
	return &ChildRepository{db: tx}
}

// childColumns lists the children table columns in scan order; progress is
// one <subject>_level, <subject>_stars pair per subject
var childColumns = func() string {
	cols := []string{"id", "parent_id", "name", "grade", "pin", "avatar_url", "is_active"}
	for _, s := range models.Subjects {
		cols = append(cols, string(s)+"_level", string(s)+"_stars")
	}
	cols = append(cols, "created_at", "last_login", "updated_at")
	return strings.Join(cols, ", ")
}()

// CreateChild inserts a child profile with its rewards. It fails with
// ErrJoinCodeTaken when the child is active and its code is already held.
func (r *ChildRepository) CreateChild(ctx context.Context, c *models.Child) error {
	args := []any{c.ID, c.ParentID, c.Name, c.Grade, c.PIN, c.AvatarURL, c.IsActive}
	for _, s := range models.Subjects {
		p := c.Progress[s]
		args = append(args, p.Level, p.Stars)
	}
	args = append(args, c.CreatedAt, nullTime(c.LastLogin), c.UpdatedAt)

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	query := fmt.Sprintf("INSERT INTO children (%s) VALUES (%s)", childColumns, marks)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return fmt.Errorf("failed to create child: %w", ErrJoinCodeTaken)
		}
		return wrapErr("create child", err)
	}

	for i, reward := range c.Rewards {
		if _, err := r.db.ExecContext(ctx,
			"INSERT INTO child_rewards (child_id, position, reward) VALUES (?, ?, ?)", c.ID, i, reward); err != nil {
			return wrapErr("create child reward", err)
		}
	}
	return nil
}

// GetChild retrieves a child profile by ID
func (r *ChildRepository) GetChild(ctx context.Context, id string) (*models.Child, error) {
	query := "SELECT " + childColumns + " FROM children WHERE id = ?"
	child, err := scanChild(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChildNotFound
	}
	if err != nil {
		return nil, wrapErr("get child", err)
	}

	if child.Rewards, err = r.rewards(ctx, child.ID); err != nil {
		return nil, err
	}
	return child, nil
}

// ListChildrenByParent retrieves the children owned by a parent, oldest first
func (r *ChildRepository) ListChildrenByParent(ctx context.Context, parentID string) ([]models.Child, error) {
	return r.listChildren(ctx, "WHERE parent_id = ? ORDER BY created_at ASC, id ASC", parentID)
}

// ListActiveChildrenByPIN retrieves active children whose join code is pin
func (r *ChildRepository) ListActiveChildrenByPIN(ctx context.Context, pin string) ([]models.Child, error) {
	where := "WHERE pin = ? AND is_active = " + r.db.GetDialect().BoolValue(true) + " ORDER BY created_at ASC"
	return r.listChildren(ctx, where, pin)
}

// ListAllChildren retrieves every child profile
func (r *ChildRepository) ListAllChildren(ctx context.Context) ([]models.Child, error) {
	return r.listChildren(ctx, "ORDER BY created_at ASC, id ASC")
}

// PINInUse reports whether an active child already holds pin
func (r *ChildRepository) PINInUse(ctx context.Context, pin string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM children WHERE pin = ? AND is_active = " + r.db.GetDialect().BoolValue(true)
	if err := r.db.QueryRowContext(ctx, query, pin).Scan(&count); err != nil {
		return false, wrapErr("check join code", err)
	}
	return count > 0, nil
}

func (r *ChildRepository) listChildren(ctx context.Context, clause string, args ...any) ([]models.Child, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+childColumns+" FROM children "+clause, args...)
	if err != nil {
		return nil, wrapErr("query children", err)
	}
	defer rows.Close()

	children := []models.Child{}
	for rows.Next() {
		child, err := scanChild(rows)
		if err != nil {
			return nil, wrapErr("scan child", err)
		}
		children = append(children, *child)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("query children", err)
	}

	for i := range children {
		if children[i].Rewards, err = r.rewards(ctx, children[i].ID); err != nil {
			return nil, err
		}
	}
	return children, nil
}

// UpdateChild applies the non-nil fields of upd. Fields left nil keep their
// stored values. A join code or activation that would give two active
// children the same code fails with ErrJoinCodeTaken.
func (r *ChildRepository) UpdateChild(ctx context.Context, id string, upd models.ChildUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Grade != nil {
		add("grade", *upd.Grade)
	}
	if upd.AvatarURL != nil {
		add("avatar_url", *upd.AvatarURL)
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}
	if upd.PIN != nil {
		add("pin", *upd.PIN)
	}
	if upd.LastLogin != nil {
		add("last_login", *upd.LastLogin)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := "UPDATE children SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	err := r.execOne(ctx, "update child", query, args...)
	if err != nil && r.db.GetDialect().IsUniqueViolation(err) {
		return fmt.Errorf("failed to update child: %w", ErrJoinCodeTaken)
	}
	return err
}

// SetProgress stores a child's progress record
func (r *ChildRepository) SetProgress(ctx context.Context, id string, progress models.Progress) error {
	var (
		sets []string
		args []any
	)
	for _, s := range models.Subjects {
		p := progress[s]
		sets = append(sets, string(s)+"_level = ?", string(s)+"_stars = ?")
		args = append(args, p.Level, p.Stars)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	return r.execOne(ctx, "update progress", "UPDATE children SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
}

// AddReward appends a reward to a child's list
func (r *ChildRepository) AddReward(ctx context.Context, id, reward string) error {
	var next int
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), -1) + 1 FROM child_rewards WHERE child_id = ?", id).Scan(&next)
	if err != nil {
		return wrapErr("add reward", err)
	}
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO child_rewards (child_id, position, reward) VALUES (?, ?, ?)", id, next, reward); err != nil {
		return wrapErr("add reward", err)
	}
	return nil
}

// DeleteChild deletes a child profile. Rewards, kid sessions and lesson
// completions go with it.
func (r *ChildRepository) DeleteChild(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete child", "DELETE FROM children WHERE id = ?", id)
}

func (r *ChildRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapErr(op, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrChildNotFound
	}
	return nil
}

func (r *ChildRepository) rewards(ctx context.Context, childID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT reward FROM child_rewards WHERE child_id = ? ORDER BY position ASC", childID)
	if err != nil {
		return nil, wrapErr("query rewards", err)
	}
	defer rows.Close()

	rewards := []string{}
	for rows.Next() {
		var reward string
		if err := rows.Scan(&reward); err != nil {
			return nil, wrapErr("scan reward", err)
		}
		rewards = append(rewards, reward)
	}
	return rewards, rows.Err()
}

// CreateKidSession creates a new kid session
func (r *ChildRepository) CreateKidSession(ctx context.Context, s *models.KidSession) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO kid_sessions (id, child_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		s.ID, s.ChildID, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return wrapErr("create kid session", err)
	}
	return nil
}

// GetKidSession retrieves a kid session by ID
func (r *ChildRepository) GetKidSession(ctx context.Context, id string) (*models.KidSession, error) {
	s := &models.KidSession{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, child_id, expires_at, created_at FROM kid_sessions WHERE id = ?", id,
	).Scan(&s.ID, &s.ChildID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, wrapErr("get kid session", err)
	}
	return s, nil
}

// DeleteKidSession removes a kid session
func (r *ChildRepository) DeleteKidSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM kid_sessions WHERE id = ?", id); err != nil {
		return wrapErr("delete kid session", err)
	}
	return nil
}

// DeleteExpiredKidSessions removes kid sessions that expired before now
func (r *ChildRepository) DeleteExpiredKidSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM kid_sessions WHERE expires_at < ?", now)
	if err != nil {
		return 0, wrapErr("delete expired kid sessions", err)
	}
	return result.RowsAffected()
}

func scanChild(row rowScanner) (*models.Child, error) {
	c := &models.Child{Progress: make(models.Progress, len(models.Subjects))}
	levels := make([]int, len(models.Subjects))
	stars := make([]int, len(models.Subjects))
	var lastLogin sql.NullTime

	dest := []any{&c.ID, &c.ParentID, &c.Name, &c.Grade, &c.PIN, &c.AvatarURL, &c.IsActive}
	for i := range models.Subjects {
		dest = append(dest, &levels[i], &stars[i])
	}
	dest = append(dest, &c.CreatedAt, &lastLogin, &c.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	for i, s := range models.Subjects {
		c.Progress[s] = models.SubjectProgress{Level: levels[i], Stars: stars[i]}
	}
	c.LastLogin = timePtr(lastLogin)
	c.ClassIDs = []string{}
	return c, nil
}
