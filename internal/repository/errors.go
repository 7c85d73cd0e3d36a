package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"

	"teachme/internal/models"
)

var (
	ErrUserNotFound       = fmt.Errorf("user %w", models.ErrNotFound)
	ErrChildNotFound      = fmt.Errorf("child %w", models.ErrNotFound)
	ErrSessionNotFound    = fmt.Errorf("session %w", models.ErrNotFound)
	ErrResetTokenNotFound = fmt.Errorf("reset token %w", models.ErrNotFound)
	ErrModuleNotFound     = fmt.Errorf("module %w", models.ErrNotFound)
	ErrLessonNotFound     = fmt.Errorf("lesson %w", models.ErrNotFound)

	ErrEmailTaken = errors.New("email is already registered")

	// ErrJoinCodeTaken means another active child already holds the join code
	ErrJoinCodeTaken = errors.New("join code is held by another active child")

	// ErrUnavailable marks failures of the connection rather than the query
	ErrUnavailable = fmt.Errorf("database unavailable: %w", models.ErrRemoteUnavailable)
)

// wrapErr adds op context to err and tags connection-level failures with
// ErrUnavailable
func wrapErr(op string, err error) error {
	if IsUnavailable(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// IsUnavailable reports whether err means the store could not be reached
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrRemoteUnavailable) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
