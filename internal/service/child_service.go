package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"teachme/internal/credentials"
	"teachme/internal/models"
	"teachme/internal/profilesync"
	"teachme/internal/progress"
	"teachme/internal/repository"
	"teachme/internal/security"
)

// joinCodeAttempts bounds regeneration when a fresh code collides with an
// active one
const joinCodeAttempts = 10

var (
	ErrForbidden     = errors.New("forbidden")
	ErrChildInactive = fmt.Errorf("child profile is inactive: %w", ErrForbidden)
)

// NewChild holds the fields a parent supplies for a new child profile
type NewChild struct {
	Name      string `json:"name"`
	Grade     int    `json:"grade"`
	AvatarURL string `json:"avatarUrl"`
}

// ChildService handles parent-scoped child management and join-code login
type ChildService struct {
	sync          *profilesync.Synchronizer
	childRepo     *repository.ChildRepository
	mailer        Mailer
	kidSessionTTL time.Duration
}

// NewChildService creates a new child service. mailer may be nil.
func NewChildService(sync *profilesync.Synchronizer, childRepo *repository.ChildRepository, mailer Mailer, kidSessionTTL time.Duration) *ChildService {
	return &ChildService{
		sync:          sync,
		childRepo:     childRepo,
		mailer:        mailer,
		kidSessionTTL: kidSessionTTL,
	}
}

// CreateChild adds a child to the parent's account with a fresh join code
func (s *ChildService) CreateChild(ctx context.Context, parent *models.User, in NewChild) (*models.Child, error) {
	if !parent.IsParent() {
		return nil, ErrForbidden
	}

	var child *models.Child
	err := s.withJoinCode(ctx, func(code string) error {
		now := time.Now().UTC()
		child = &models.Child{
			ID:        uuid.NewString(),
			ParentID:  parent.ID,
			Name:      strings.TrimSpace(in.Name),
			Grade:     in.Grade,
			PIN:       code,
			AvatarURL: in.AvatarURL,
			IsActive:  true,
			Progress:  models.NewProgress(),
			Rewards:   []string{},
			ClassIDs:  []string{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.sync.CreateChild(ctx, child)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("child_id", child.ID).Str("parent_id", parent.ID).Msg("Child profile created")
	s.sendJoinCode(ctx, parent, child)
	return child, nil
}

func (s *ChildService) uniqueJoinCode(ctx context.Context) (string, error) {
	return credentials.GenerateUniqueJoinCode(func(code string) (bool, error) {
		return s.sync.JoinCodeInUse(ctx, code)
	}, joinCodeAttempts)
}

// withJoinCode calls write with an unused join code. A code taken by a
// concurrent writer between the check and the write is replaced.
func (s *ChildService) withJoinCode(ctx context.Context, write func(code string) error) error {
	for i := 0; i < joinCodeAttempts; i++ {
		code, err := s.uniqueJoinCode(ctx)
		if err != nil {
			return err
		}
		err = write(code)
		if !errors.Is(err, repository.ErrJoinCodeTaken) {
			return err
		}
		log.Warn().Msg("Join code taken by a concurrent write, drawing another")
	}
	return credentials.ErrJoinCodeExhausted
}

func (s *ChildService) sendJoinCode(ctx context.Context, parent *models.User, child *models.Child) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendJoinCodeEmail(ctx, parent.Email, parent.Name, child.Name, child.PIN); err != nil {
		log.Warn().Err(err).Str("child_id", child.ID).Msg("Failed to send join code email")
	}
}

// ListChildren returns the parent's children
func (s *ChildService) ListChildren(ctx context.Context, parent *models.User) ([]models.Child, error) {
	return s.sync.LoadChildrenOf(ctx, parent.ID)
}

// GetChild returns one of the parent's children
func (s *ChildService) GetChild(ctx context.Context, parent *models.User, childID string) (*models.Child, error) {
	child, err := s.sync.LoadChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child.ParentID != parent.ID {
		return nil, ErrForbidden
	}
	return child, nil
}

// UpdateChild applies a partial update to one of the parent's children.
// The join code and last login are not caller-editable.
func (s *ChildService) UpdateChild(ctx context.Context, parent *models.User, childID string, upd models.ChildUpdate) (*models.Child, error) {
	if _, err := s.GetChild(ctx, parent, childID); err != nil {
		return nil, err
	}
	upd.PIN = nil
	upd.LastLogin = nil
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		upd.Name = &name
	}
	if upd.IsActive != nil && *upd.IsActive {
		return s.activate(ctx, childID, upd)
	}
	return s.sync.UpdateChild(ctx, childID, upd)
}

// ToggleChildActive flips whether the child can sign in
func (s *ChildService) ToggleChildActive(ctx context.Context, parent *models.User, childID string) (*models.Child, error) {
	child, err := s.GetChild(ctx, parent, childID)
	if err != nil {
		return nil, err
	}
	active := !child.IsActive
	if active {
		return s.activate(ctx, childID, models.ChildUpdate{IsActive: &active})
	}
	return s.sync.UpdateChild(ctx, childID, models.ChildUpdate{IsActive: &active})
}

// activate re-enables a child. Codes are only unique among active children,
// so a code taken while the child was inactive is replaced.
func (s *ChildService) activate(ctx context.Context, childID string, upd models.ChildUpdate) (*models.Child, error) {
	child, err := s.sync.LoadChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child.IsActive {
		return s.sync.UpdateChild(ctx, childID, upd)
	}

	taken, err := s.sync.JoinCodeInUse(ctx, child.PIN)
	if err != nil {
		return nil, fmt.Errorf("failed to check join code: %w", err)
	}
	if !taken {
		updated, err := s.sync.UpdateChild(ctx, childID, upd)
		if !errors.Is(err, repository.ErrJoinCodeTaken) {
			return updated, err
		}
	}

	var updated *models.Child
	err = s.withJoinCode(ctx, func(code string) error {
		upd.PIN = &code
		var err error
		updated, err = s.sync.UpdateChild(ctx, childID, upd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RegenerateJoinCode replaces a child's join code and emails the new one
func (s *ChildService) RegenerateJoinCode(ctx context.Context, parent *models.User, childID string) (*models.Child, error) {
	if _, err := s.GetChild(ctx, parent, childID); err != nil {
		return nil, err
	}

	var child *models.Child
	err := s.withJoinCode(ctx, func(code string) error {
		var err error
		child, err = s.sync.UpdateChild(ctx, childID, models.ChildUpdate{PIN: &code})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.sendJoinCode(ctx, parent, child)
	return child, nil
}

// DeleteChild removes one of the parent's children
func (s *ChildService) DeleteChild(ctx context.Context, parent *models.User, childID string) error {
	if _, err := s.GetChild(ctx, parent, childID); err != nil {
		return err
	}
	if err := s.sync.DeleteChild(ctx, childID); err != nil {
		return err
	}
	log.Info().Str("child_id", childID).Str("parent_id", parent.ID).Msg("Child profile deleted")
	return nil
}

// Subscribe streams the parent's children until ctx ends or the
// subscription is cancelled
func (s *ChildService) Subscribe(ctx context.Context, parent *models.User, onChange profilesync.ChildrenFunc) (*profilesync.Subscription, error) {
	if !parent.IsParent() {
		return nil, ErrForbidden
	}
	return s.sync.SubscribeToChildrenOf(ctx, parent.ID, onChange), nil
}

// KidLogin signs a child in with their join code
func (s *ChildService) KidLogin(ctx context.Context, code string) (*models.KidSession, *models.Child, error) {
	var candidates []models.Child
	if normalized := credentials.NormalizeJoinCode(code); normalized != "" {
		var err error
		candidates, err = s.sync.LoadActiveChildrenByJoinCode(ctx, normalized)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to look up join code: %w", err)
		}
	}

	match, err := credentials.MatchJoinCode(code, candidates)
	if err != nil {
		if errors.Is(err, models.ErrAmbiguousMatch) {
			log.Error().Int("matches", len(candidates)).Msg("Join code shared by several active children")
		}
		return nil, nil, err
	}

	now := time.Now().UTC()
	child, err := s.sync.UpdateChild(ctx, match.ID, models.ChildUpdate{LastLogin: &now})
	if err != nil {
		return nil, nil, err
	}

	session := &models.KidSession{
		ID:        security.GenerateSessionID(),
		ChildID:   child.ID,
		ExpiresAt: now.Add(s.kidSessionTTL),
		CreatedAt: now,
	}
	if err := s.childRepo.CreateKidSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create kid session: %w", err)
	}
	return session, child, nil
}

// ValidateKidSession returns the signed-in child of a kid session
func (s *ChildService) ValidateKidSession(ctx context.Context, sessionID string) (*models.Child, error) {
	session, err := s.childRepo.GetKidSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsExpired() {
		_ = s.childRepo.DeleteKidSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	child, err := s.sync.LoadChild(ctx, session.ChildID)
	if err != nil {
		return nil, err
	}
	if !child.IsActive {
		return nil, ErrChildInactive
	}
	return child, nil
}

// KidLogout ends a kid session
func (s *ChildService) KidLogout(ctx context.Context, sessionID string) error {
	if err := s.childRepo.DeleteKidSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// CleanupExpiredKidSessions removes expired kid sessions
func (s *ChildService) CleanupExpiredKidSessions(ctx context.Context) (int64, error) {
	n, err := s.childRepo.DeleteExpiredKidSessions(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup kid sessions: %w", err)
	}
	return n, nil
}

// ChildDashboard summarises a child's progress across subjects
func (s *ChildService) ChildDashboard(child *models.Child) (*models.ChildDashboard, error) {
	level, err := progress.MaxLevelAcrossSubjects(child.Progress)
	if err != nil {
		return nil, err
	}
	stars, err := progress.TotalStars(child.Progress)
	if err != nil {
		return nil, err
	}
	return &models.ChildDashboard{Child: child, Level: level, TotalStars: stars}, nil
}
