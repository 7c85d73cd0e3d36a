// Package profilesync is the boundary between the domain and the profile
// store. Every child write goes through a Synchronizer so that live
// subscriptions to a parent's children see it.
package profilesync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"teachme/internal/database"
	"teachme/internal/models"
	"teachme/internal/progress"
	"teachme/internal/repository"
	"teachme/internal/validation"
)

// Synchronizer loads and writes child profiles and module catalogues and
// publishes a change notification after every child write
type Synchronizer struct {
	db       *database.DB
	children *repository.ChildRepository
	modules  *repository.ModuleRepository
	broker   *Broker
	notifier Notifier
}

// New creates a Synchronizer. A nil notifier publishes to broker directly.
func New(db *database.DB, broker *Broker, notifier Notifier) *Synchronizer {
	if notifier == nil {
		notifier = broker
	}
	return &Synchronizer{
		db:       db,
		children: repository.NewChildRepository(db),
		modules:  repository.NewModuleRepository(db),
		broker:   broker,
		notifier: notifier,
	}
}

// LoadChild returns a child profile or an error wrapping models.ErrNotFound
func (s *Synchronizer) LoadChild(ctx context.Context, id string) (*models.Child, error) {
	return s.children.GetChild(ctx, id)
}

// LoadChildrenOf returns every child of a parent
func (s *Synchronizer) LoadChildrenOf(ctx context.Context, parentID string) ([]models.Child, error) {
	return s.children.ListChildrenByParent(ctx, parentID)
}

// LoadActiveChildrenByJoinCode returns the active children holding code
func (s *Synchronizer) LoadActiveChildrenByJoinCode(ctx context.Context, code string) ([]models.Child, error) {
	return s.children.ListActiveChildrenByPIN(ctx, code)
}

// JoinCodeInUse reports whether an active child holds code
func (s *Synchronizer) JoinCodeInUse(ctx context.Context, code string) (bool, error) {
	return s.children.PINInUse(ctx, code)
}

// LoadModulesForSubjectGrade returns the ordered modules for a subject and
// grade, each with its lessons
func (s *Synchronizer) LoadModulesForSubjectGrade(ctx context.Context, subject models.Subject, grade int) ([]models.Module, error) {
	return s.modules.ListModules(ctx, subject, grade)
}

// SubscribeToChildrenOf calls onChange with the full set of parentID's
// children now and after every change, until the subscription is cancelled
func (s *Synchronizer) SubscribeToChildrenOf(ctx context.Context, parentID string, onChange ChildrenFunc) *Subscription {
	sub := newSubscription(ctx, parentID, s.broker, func(ctx context.Context) ([]models.Child, error) {
		return s.children.ListChildrenByParent(ctx, parentID)
	}, onChange)

	s.broker.register(sub)
	go sub.run()
	return sub
}

// CreateChild persists a new child profile and its rewards in one
// transaction
func (s *Synchronizer) CreateChild(ctx context.Context, c *models.Child) error {
	if err := validateChild(c); err != nil {
		return err
	}
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		return s.children.WithTx(tx).CreateChild(ctx, c)
	})
	if err != nil {
		return err
	}
	s.ChildrenChanged(ctx, c.ParentID)
	return nil
}

// UpdateChild applies the supplied fields only and returns the stored result
func (s *Synchronizer) UpdateChild(ctx context.Context, id string, upd models.ChildUpdate) (*models.Child, error) {
	if err := validateUpdate(upd); err != nil {
		return nil, err
	}

	var child *models.Child
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		children := s.children.WithTx(tx)
		if !upd.IsEmpty() {
			if err := children.UpdateChild(ctx, id, upd); err != nil {
				return err
			}
		}
		var err error
		child, err = children.GetChild(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !upd.IsEmpty() {
		s.ChildrenChanged(ctx, child.ParentID)
	}
	return child, nil
}

// DeleteChild removes a child profile
func (s *Synchronizer) DeleteChild(ctx context.Context, id string) error {
	var parentID string
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		children := s.children.WithTx(tx)
		child, err := children.GetChild(ctx, id)
		if err != nil {
			return err
		}
		parentID = child.ParentID
		return children.DeleteChild(ctx, id)
	})
	if err != nil {
		return err
	}
	s.ChildrenChanged(ctx, parentID)
	return nil
}

// ChildrenChanged publishes a change for parentID. Writers that modify
// children outside the Synchronizer call it after committing. A failed
// publish still reaches subscribers in this process.
func (s *Synchronizer) ChildrenChanged(ctx context.Context, parentID string) {
	if err := s.notifier.Publish(ctx, parentID); err != nil {
		changeNotifications.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("parent_id", parentID).Msg("Failed to publish children change")
		if s.notifier != Notifier(s.broker) {
			s.broker.Notify(parentID)
		}
		return
	}
	changeNotifications.WithLabelValues("published").Inc()
}

// validateChild checks a new profile at the store boundary
func validateChild(c *models.Child) error {
	if c.ID == "" || c.ParentID == "" {
		return validation.ValidationError{Field: "id", Message: "child and parent ids are required"}
	}
	if err := validation.ValidateChildName(c.Name); err != nil {
		return err
	}
	if err := validation.ValidateGrade(c.Grade); err != nil {
		return err
	}
	if err := validation.ValidateJoinCode(c.PIN); err != nil {
		return err
	}
	if err := validation.ValidateAvatarURL(c.AvatarURL); err != nil {
		return err
	}
	if err := progress.Validate(c.Progress); err != nil {
		return fmt.Errorf("invalid progress: %w", err)
	}
	for _, subject := range models.Subjects {
		if _, ok := c.Progress[subject]; !ok {
			return validation.ValidationError{Field: "progress", Message: "missing subject " + string(subject)}
		}
	}
	return nil
}

func validateUpdate(upd models.ChildUpdate) error {
	if upd.Name != nil {
		if err := validation.ValidateChildName(*upd.Name); err != nil {
			return err
		}
	}
	if upd.Grade != nil {
		if err := validation.ValidateGrade(*upd.Grade); err != nil {
			return err
		}
	}
	if upd.PIN != nil {
		if err := validation.ValidateJoinCode(*upd.PIN); err != nil {
			return err
		}
	}
	if upd.AvatarURL != nil {
		if err := validation.ValidateAvatarURL(*upd.AvatarURL); err != nil {
			return err
		}
	}
	return nil
}
