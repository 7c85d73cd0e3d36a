package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"teachme/internal/database"
	"teachme/internal/database/dbtest"
	"teachme/internal/models"
	"teachme/internal/profilesync"
	"teachme/internal/repository"
)

type sentEmail struct {
	kind, to, name, detail string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (m *fakeMailer) record(e sentEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return m.err
}

func (m *fakeMailer) SendWelcomeEmail(_ context.Context, toEmail, toName string) error {
	return m.record(sentEmail{kind: "welcome", to: toEmail, name: toName})
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, toEmail, toName, token string) error {
	return m.record(sentEmail{kind: "reset", to: toEmail, name: toName, detail: token})
}

func (m *fakeMailer) SendJoinCodeEmail(_ context.Context, toEmail, toName, childName, code string) error {
	return m.record(sentEmail{kind: "join-code", to: toEmail, name: childName, detail: code})
}

func (m *fakeMailer) last(kind string) (sentEmail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i], true
		}
	}
	return sentEmail{}, false
}

type testEnv struct {
	db       *database.DB
	mailer   *fakeMailer
	auth     *AuthService
	children *ChildService
	learning *LearningService
	sync     *profilesync.Synchronizer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.New(t)
	mailer := &fakeMailer{}
	sync := profilesync.New(db, profilesync.NewBroker(), nil)
	return &testEnv{
		db:       db,
		mailer:   mailer,
		auth:     NewAuthService(repository.NewUserRepository(db), mailer, time.Hour),
		children: NewChildService(sync, repository.NewChildRepository(db), mailer, 24*time.Hour),
		learning: NewLearningService(db, sync),
		sync:     sync,
	}
}

func (e *testEnv) register(t *testing.T, email string, role models.Role) *models.User {
	t.Helper()
	u, err := e.auth.Register(context.Background(), email, "Passw0rd!", "Pat Parent", role)
	require.NoError(t, err)
	return u
}

func (e *testEnv) addChild(t *testing.T, parent *models.User, name string, grade int) *models.Child {
	t.Helper()
	c, err := e.children.CreateChild(context.Background(), parent, NewChild{Name: name, Grade: grade})
	require.NoError(t, err)
	return c
}
