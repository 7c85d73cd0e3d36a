package profilesync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teachme/internal/database"
	"teachme/internal/database/dbtest"
	"teachme/internal/models"
	"teachme/internal/repository"
	"teachme/internal/validation"
)

type snapshot struct {
	children []models.Child
	err      error
}

func setup(t *testing.T) (*Synchronizer, *database.DB, string) {
	t.Helper()
	db := dbtest.New(t)
	now := time.Now().UTC()
	parent := &models.User{
		ID: uuid.NewString(), Role: models.RoleParent, Name: "Pat", Email: "pat@example.com",
		Provider: models.ProviderEmail, IsActive: true, Settings: models.DefaultSettings(),
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repository.NewUserRepository(db).CreateUser(context.Background(), parent))
	return New(db, NewBroker(), nil), db, parent.ID
}

func newChild(parentID, name, pin string) *models.Child {
	now := time.Now().UTC()
	return &models.Child{
		ID: uuid.NewString(), ParentID: parentID, Name: name, Grade: 1, PIN: pin,
		IsActive: true, Progress: models.NewProgress(), Rewards: []string{},
		CreatedAt: now, UpdatedAt: now,
	}
}

func next(t *testing.T, ch <-chan snapshot) snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return snapshot{}
	}
}

func TestCreateLoadUpdateDelete(t *testing.T) {
	s, _, parentID := setup(t)
	ctx := context.Background()

	child := newChild(parentID, "Ada", "AB12CD")
	require.NoError(t, s.CreateChild(ctx, child))

	got, err := s.LoadChild(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	grade := 3
	updated, err := s.UpdateChild(ctx, child.ID, models.ChildUpdate{Grade: &grade})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Grade)
	assert.Equal(t, "Ada", updated.Name)
	assert.Equal(t, "AB12CD", updated.PIN)

	require.NoError(t, s.DeleteChild(ctx, child.ID))
	_, err = s.LoadChild(ctx, child.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.DeleteChild(ctx, child.ID), models.ErrNotFound)
}

func TestCreateChildIsAtomic(t *testing.T) {
	s, db, parentID := setup(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `CREATE TRIGGER reject_reward BEFORE INSERT ON child_rewards
		WHEN NEW.reward = 'rejected' BEGIN SELECT RAISE(ABORT, 'reward rejected'); END`)
	require.NoError(t, err)

	child := newChild(parentID, "Ada", "AB12CD")
	child.Rewards = []string{"Addition", "rejected"}
	require.Error(t, s.CreateChild(ctx, child))

	_, err = s.LoadChild(ctx, child.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "a failed reward insert leaves no child behind")

	children, err := s.LoadChildrenOf(ctx, parentID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestCreateChildValidatesAtBoundary(t *testing.T) {
	s, _, parentID := setup(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(c *models.Child)
	}{
		{"bad join code", func(c *models.Child) { c.PIN = "abc" }},
		{"empty name", func(c *models.Child) { c.Name = " " }},
		{"grade out of range", func(c *models.Child) { c.Grade = 40 }},
		{"negative stars", func(c *models.Child) {
			c.Progress[models.SubjectMath] = models.SubjectProgress{Level: 1, Stars: -1}
		}},
		{"missing subject", func(c *models.Child) { delete(c.Progress, models.SubjectScience) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChild(parentID, "Ada", "AB12CD")
			tt.mutate(c)
			var verr validation.ValidationError
			assert.ErrorAs(t, s.CreateChild(ctx, c), &verr)
		})
	}
}

func TestLoadModulesForSubjectGrade(t *testing.T) {
	s, db, _ := setup(t)
	ctx := context.Background()
	modules := repository.NewModuleRepository(db)

	require.NoError(t, modules.UpsertModule(ctx, models.Module{
		ID: "addition", Subject: models.SubjectMath, Grade: 1, Position: 0, Title: "Addition",
		Lessons: []models.Lesson{{ID: "a1", Position: 0, Title: "Basic"}, {ID: "a2", Position: 1, Title: "Pictures"}},
	}))

	got, err := s.LoadModulesForSubjectGrade(ctx, models.SubjectMath, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Lessons, 2)

	got, err = s.LoadModulesForSubjectGrade(ctx, models.SubjectMath, 2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubscribeDeliversFullState(t *testing.T) {
	s, _, parentID := setup(t)
	ctx := context.Background()

	ch := make(chan snapshot, 16)
	sub := s.SubscribeToChildrenOf(ctx, parentID, func(children []models.Child, err error) {
		ch <- snapshot{children, err}
	})
	defer sub.Unsubscribe()

	initial := next(t, ch)
	require.NoError(t, initial.err)
	assert.Empty(t, initial.children)

	require.NoError(t, s.CreateChild(ctx, newChild(parentID, "Ada", "AAAAAA")))
	first := next(t, ch)
	require.Len(t, first.children, 1)

	require.NoError(t, s.CreateChild(ctx, newChild(parentID, "Ben", "BBBBBB")))
	second := next(t, ch)
	assert.Len(t, second.children, 2, "every delivery carries the whole set")
}

func TestNoCallbackAfterUnsubscribe(t *testing.T) {
	s, _, parentID := setup(t)
	ctx := context.Background()

	ch := make(chan snapshot, 16)
	sub := s.SubscribeToChildrenOf(ctx, parentID, func(children []models.Child, err error) {
		ch <- snapshot{children, err}
	})
	next(t, ch)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, s.broker.Count())

	require.NoError(t, s.CreateChild(ctx, newChild(parentID, "Ada", "AAAAAA")))
	select {
	case snap := <-ch:
		t.Fatalf("callback after unsubscribe: %+v", snap)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUnsubscribeFromInsideCallback(t *testing.T) {
	s, _, parentID := setup(t)

	calls := make(chan struct{}, 4)
	var sub *Subscription
	ready := make(chan struct{})
	sub = s.SubscribeToChildrenOf(context.Background(), parentID, func([]models.Child, error) {
		<-ready
		calls <- struct{}{}
		sub.Unsubscribe()
	})
	close(ready)

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("unsubscribe from callback did not complete")
	}
	assert.Len(t, calls, 1)
}

func TestStoppedWaitsForRunningCallback(t *testing.T) {
	s, _, parentID := setup(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	sub := s.SubscribeToChildrenOf(context.Background(), parentID, func([]models.Child, error) {
		once.Do(func() { close(entered) })
		<-release
	})

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("no initial delivery")
	}

	sub.Unsubscribe()
	select {
	case <-sub.Stopped():
		t.Fatal("stopped while the callback was still running")
	default:
	}

	close(release)
	select {
	case <-sub.Stopped():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription goroutine did not exit")
	}
}

func TestContextCancellationEndsSubscription(t *testing.T) {
	s, _, parentID := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan snapshot, 4)
	sub := s.SubscribeToChildrenOf(ctx, parentID, func(children []models.Child, err error) {
		ch <- snapshot{children, err}
	})
	next(t, ch)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription outlived its context")
	}
}

func TestSubscriptionsAreScopedToParent(t *testing.T) {
	s, db, parentID := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	other := &models.User{ID: uuid.NewString(), Role: models.RoleTeacher, Name: "Sam", Email: "sam@example.com",
		Provider: models.ProviderEmail, IsActive: true, Settings: models.DefaultSettings(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repository.NewUserRepository(db).CreateUser(ctx, other))

	ch := make(chan snapshot, 4)
	sub := s.SubscribeToChildrenOf(ctx, parentID, func(children []models.Child, err error) {
		ch <- snapshot{children, err}
	})
	defer sub.Unsubscribe()
	next(t, ch)

	require.NoError(t, s.CreateChild(ctx, newChild(other.ID, "Cy", "CCCCCC")))
	select {
	case snap := <-ch:
		t.Fatalf("unexpected delivery for another parent: %+v", snap)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFailedPublishStillNotifiesLocally(t *testing.T) {
	db := dbtest.New(t)
	broker := NewBroker()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	s := New(db, broker, NewRedisNotifier(client, "", broker))

	ch := make(chan snapshot, 4)
	sub := s.SubscribeToChildrenOf(context.Background(), "parent", func(children []models.Child, err error) {
		ch <- snapshot{children, err}
	})
	defer sub.Unsubscribe()
	next(t, ch)

	s.ChildrenChanged(context.Background(), "parent")
	snap := next(t, ch)
	assert.NoError(t, snap.err)
}
