package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teachme/internal/database"
	"teachme/internal/database/dbtest"
	"teachme/internal/models"
)

func TestChildRepositoryCRUD(t *testing.T) {
	db := dbtest.New(t)
	users := NewUserRepository(db)
	children := NewChildRepository(db)
	ctx := context.Background()

	parent := newTestUser(t, users, "p@example.com")
	child := newTestChild(t, children, parent.ID, "Ada", "AB12CD")

	got, err := children.GetChild(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, models.NewProgress(), got.Progress)
	assert.Empty(t, got.Rewards)
	assert.Nil(t, got.LastLogin)

	t.Run("partial update keeps untouched fields", func(t *testing.T) {
		name := "Ada L"
		require.NoError(t, children.UpdateChild(ctx, child.ID, models.ChildUpdate{Name: &name}))

		got, err := children.GetChild(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada L", got.Name)
		assert.Equal(t, 2, got.Grade)
		assert.Equal(t, "AB12CD", got.PIN)
		assert.True(t, got.IsActive)
	})

	t.Run("progress and rewards", func(t *testing.T) {
		p := models.NewProgress()
		p[models.SubjectMath] = models.SubjectProgress{Level: 3, Stars: 4}
		require.NoError(t, children.SetProgress(ctx, child.ID, p))
		require.NoError(t, children.AddReward(ctx, child.ID, "first-star"))
		require.NoError(t, children.AddReward(ctx, child.ID, "module-master"))

		got, err := children.GetChild(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, p, got.Progress)
		assert.Equal(t, []string{"first-star", "module-master"}, got.Rewards)
	})

	t.Run("list by parent", func(t *testing.T) {
		newTestChild(t, children, parent.ID, "Ben", "ZZZZZZ")
		list, err := children.ListChildrenByParent(ctx, parent.ID)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		none, err := children.ListChildrenByParent(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("missing child", func(t *testing.T) {
		_, err := children.GetChild(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
		name := "x"
		assert.ErrorIs(t, children.UpdateChild(ctx, "missing", models.ChildUpdate{Name: &name}), ErrChildNotFound)
		assert.ErrorIs(t, children.DeleteChild(ctx, "missing"), ErrChildNotFound)
	})

	t.Run("delete cascades", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, children.CreateKidSession(ctx, &models.KidSession{
			ID: "ks", ChildID: child.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now,
		}))
		require.NoError(t, children.DeleteChild(ctx, child.ID))

		_, err := children.GetKidSession(ctx, "ks")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestActiveChildrenByPIN(t *testing.T) {
	db := dbtest.New(t)
	users := NewUserRepository(db)
	children := NewChildRepository(db)
	ctx := context.Background()

	parent := newTestUser(t, users, "p@example.com")
	inactive := newTestChild(t, children, parent.ID, "Ben", "AAAAAA")
	off := false
	require.NoError(t, children.UpdateChild(ctx, inactive.ID, models.ChildUpdate{IsActive: &off}))
	active := newTestChild(t, children, parent.ID, "Ada", "AAAAAA")

	list, err := children.ListActiveChildrenByPIN(ctx, "AAAAAA")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, active.ID, list[0].ID)

	inUse, err := children.PINInUse(ctx, "AAAAAA")
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = children.PINInUse(ctx, "QQQQQQ")
	require.NoError(t, err)
	assert.False(t, inUse)

	t.Run("active codes are unique", func(t *testing.T) {
		now := time.Now().UTC()
		twin := &models.Child{ID: uuid.NewString(), ParentID: parent.ID, Name: "Cy", Grade: 2, PIN: "AAAAAA",
			IsActive: true, Progress: models.NewProgress(), Rewards: []string{}, CreatedAt: now, UpdatedAt: now}
		assert.ErrorIs(t, children.CreateChild(ctx, twin), ErrJoinCodeTaken)

		on := true
		assert.ErrorIs(t, children.UpdateChild(ctx, inactive.ID, models.ChildUpdate{IsActive: &on}), ErrJoinCodeTaken)

		pin := "BBBBBB"
		require.NoError(t, children.UpdateChild(ctx, inactive.ID, models.ChildUpdate{PIN: &pin, IsActive: &on}))
	})
}

func TestChildRepositoryWithTx(t *testing.T) {
	db := dbtest.New(t)
	users := NewUserRepository(db)
	children := NewChildRepository(db)
	ctx := context.Background()
	parent := newTestUser(t, users, "p@example.com")
	child := newTestChild(t, children, parent.ID, "Ada", "AAAAAA")

	err := db.WithTx(ctx, func(tx *database.Tx) error {
		p := models.NewProgress()
		p[models.SubjectScience] = models.SubjectProgress{Level: 2, Stars: 1}
		if err := children.WithTx(tx).SetProgress(ctx, child.ID, p); err != nil {
			return err
		}
		return children.WithTx(tx).SetProgress(ctx, "missing", p)
	})
	assert.ErrorIs(t, err, ErrChildNotFound)

	got, err := children.GetChild(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NewProgress(), got.Progress)
}
