package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"teachme/internal/database"
	"teachme/internal/models"
	"teachme/internal/repository"
)

// BackupVersion is written into every export
const BackupVersion = "1.0"

// BackupData represents the complete database backup structure
type BackupData struct {
	Version      string          `json:"version"`
	ExportedAt   time.Time       `json:"exported_at"`
	DatabaseType string          `json:"database_type"`
	Users        []UserBackup    `json:"users"`
	Modules      []models.Module `json:"modules"`
	Children     []ChildBackup   `json:"children"`
}

// UserBackup is a user record including its credentials
type UserBackup struct {
	models.User
	PasswordHash string `json:"password_hash,omitempty"`
	OAuthSubject string `json:"oauth_subject,omitempty"`
}

// ChildBackup is a child profile with its lesson completion markers
type ChildBackup struct {
	models.Child
	Completions []models.LessonCompletion `json:"completions"`
}

// BackupService handles database backup and restore operations
type BackupService struct {
	db *database.DB
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB) *BackupService {
	return &BackupService{db: db}
}

// Export writes a complete backup of the database to a file
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(ctx, file); err != nil {
		return err
	}
	log.Info().Str("path", outputPath).Msg("Database exported")
	return nil
}

// ExportToWriter writes a complete backup of the database to w
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) error {
	backup, err := s.collect(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	log.Info().Int("users", len(backup.Users)).Int("children", len(backup.Children)).
		Int("modules", len(backup.Modules)).Msg("Backup written")
	return nil
}

func (s *BackupService) collect(ctx context.Context) (*BackupData, error) {
	backup := &BackupData{
		Version:      BackupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: "universal",
		Users:        []UserBackup{},
		Children:     []ChildBackup{},
	}

	users, err := repository.NewUserRepository(s.db).ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}
	for _, u := range users {
		backup.Users = append(backup.Users, UserBackup{User: u, PasswordHash: u.PasswordHash, OAuthSubject: u.OAuthSubject})
	}

	moduleRepo := repository.NewModuleRepository(s.db)
	if backup.Modules, err = moduleRepo.ListAllModules(ctx); err != nil {
		return nil, fmt.Errorf("failed to export modules: %w", err)
	}

	children, err := repository.NewChildRepository(s.db).ListAllChildren(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export children: %w", err)
	}
	for _, c := range children {
		completions, err := moduleRepo.ListCompletions(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to export completions of child %s: %w", c.ID, err)
		}
		cb := ChildBackup{Child: c, Completions: make([]models.LessonCompletion, 0, len(completions))}
		for _, comp := range completions {
			cb.Completions = append(cb.Completions, comp)
		}
		backup.Children = append(backup.Children, cb)
	}
	return backup, nil
}

// clearOrder lists every data table, dependents first
var clearOrder = []string{
	"lesson_completions",
	"lessons",
	"modules",
	"kid_sessions",
	"child_rewards",
	"children",
	"password_reset_tokens",
	"sessions",
	"users",
}

// Clear deletes every row of application data in one transaction. The
// migrations table is kept.
func (s *BackupService) Clear(ctx context.Context) error {
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		for _, table := range clearOrder {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear table %s: %w", table, err)
			}
			log.Debug().Str("table", table).Msg("Cleared table")
		}
		return nil
	})
}

// Import restores a backup file into an empty database
func (s *BackupService) Import(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file)
}

// ImportFromReader restores a backup read from r. Everything is written
// in one transaction.
func (s *BackupService) ImportFromReader(ctx context.Context, r io.Reader) error {
	var backup BackupData
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != BackupVersion {
		return fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	log.Info().Str("version", backup.Version).Time("exported_at", backup.ExportedAt).Msg("Importing backup")

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		users := repository.NewUserRepository(tx)
		for _, ub := range backup.Users {
			u := ub.User
			u.PasswordHash = ub.PasswordHash
			u.OAuthSubject = ub.OAuthSubject
			if err := users.CreateUser(ctx, &u); err != nil {
				return fmt.Errorf("failed to import user %s: %w", u.ID, err)
			}
		}

		modules := repository.NewModuleRepository(tx)
		for _, m := range backup.Modules {
			if err := modules.UpsertModule(ctx, m); err != nil {
				return fmt.Errorf("failed to import module %s: %w", m.ID, err)
			}
		}

		children := repository.NewChildRepository(tx)
		for _, cb := range backup.Children {
			c := cb.Child
			if c.Progress == nil {
				c.Progress = models.NewProgress()
			}
			if err := children.CreateChild(ctx, &c); err != nil {
				return fmt.Errorf("failed to import child %s: %w", c.ID, err)
			}
			for _, comp := range cb.Completions {
				if err := modules.SaveCompletion(ctx, c.ID, comp); err != nil {
					return fmt.Errorf("failed to import completion of child %s: %w", c.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("users", len(backup.Users)).Int("children", len(backup.Children)).
		Int("modules", len(backup.Modules)).Msg("Database import completed")
	return nil
}
