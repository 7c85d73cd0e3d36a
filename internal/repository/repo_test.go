package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"teachme/internal/models"
)

func newTestUser(t *testing.T, repo *UserRepository, email string) *models.User {
	t.Helper()
	now := time.Now().UTC()
	u := &models.User{
		ID:        uuid.NewString(),
		Role:      models.RoleParent,
		Name:      "Pat",
		Email:     email,
		Provider:  models.ProviderEmail,
		IsActive:  true,
		Settings:  models.DefaultSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

func newTestChild(t *testing.T, repo *ChildRepository, parentID, name, pin string) *models.Child {
	t.Helper()
	now := time.Now().UTC()
	c := &models.Child{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		Name:      name,
		Grade:     2,
		PIN:       pin,
		IsActive:  true,
		Progress:  models.NewProgress(),
		Rewards:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateChild(context.Background(), c))
	return c
}
