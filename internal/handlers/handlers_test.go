package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"teachme/internal/database/dbtest"
	"teachme/internal/profilesync"
	"teachme/internal/repository"
	"teachme/internal/security"
	"teachme/internal/service"
)

const testCatalogue = `{
  "modules": [
    {"id": "addition", "subject": "math", "grade": 2, "title": "Addition",
     "lessons": [{"id": "add-1", "title": "Adding to 10"}, {"id": "add-2", "title": "Adding to 20"}]},
    {"id": "plants", "subject": "science", "grade": 2, "title": "Plants",
     "lessons": [{"id": "seeds", "title": "Seeds"}]}
  ]
}`

type testAPI struct {
	handler  http.Handler
	startup  *StartupStatus
	limiter  *security.RateLimiter
	learning *service.LearningService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	captureLogs(t)

	db := dbtest.New(t)
	sync := profilesync.New(db, profilesync.NewBroker(), nil)
	authService := service.NewAuthService(repository.NewUserRepository(db), nil, time.Hour)
	childService := service.NewChildService(sync, repository.NewChildRepository(db), nil, time.Hour)
	learningService := service.NewLearningService(db, sync)
	csrf := security.NewCSRFGenerator("test-secret")

	limiter := security.NewRateLimiter(3, time.Minute)
	t.Cleanup(limiter.Stop)

	startup := NewStartupStatus(StepDatabase, StepMigrations)
	handler := NewRouter(RouterDeps{
		Auth:          NewAuthHandler(authService, csrf, map[string]OAuthProvider{}, "", ""),
		Parent:        NewParentHandler(childService),
		Kid:           NewKidHandler(childService, learningService, csrf),
		Middleware:    NewMiddleware(authService, childService, csrf),
		KidLoginLimit: limiter,
		Startup:       startup,
	})

	return &testAPI{handler: handler, startup: startup, limiter: limiter, learning: learningService}
}

type requestOption func(r *http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(name, value string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func withCSRF(token string) requestOption {
	return func(r *http.Request) { r.Header.Set(security.CSRFHeader, token) }
}

func withRemoteAddr(addr string) requestOption {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func (a *testAPI) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	recorder := httptest.NewRecorder()
	a.handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out), recorder.Body.String())
	return out
}

type testSession struct {
	Token     string `json:"token"`
	CSRFToken string `json:"csrfToken"`
	User      struct {
		ID    string `json:"uid"`
		Email string `json:"email"`
		Role  string `json:"type"`
	} `json:"user"`
}

func (a *testAPI) registerParent(t *testing.T, email string) testSession {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": "Passw0rd!",
		"name":     "Pat Parent",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[testSession](t, rec)
}

type testChild struct {
	ID       string `json:"uid"`
	Name     string `json:"name"`
	Grade    int    `json:"grade"`
	PIN      string `json:"pin"`
	IsActive bool   `json:"isActive"`
	Progress map[string]struct {
		Level int `json:"level"`
		Stars int `json:"stars"`
	} `json:"progress"`
	Rewards []string `json:"rewards"`
}

func (a *testAPI) createChild(t *testing.T, parent testSession, name string, grade int) testChild {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/children", map[string]any{"name": name, "grade": grade}, withBearer(parent.Token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[testChild](t, rec)
}

func (a *testAPI) seedCatalogue(t *testing.T) {
	t.Helper()
	_, err := a.learning.SeedModules(context.Background(), strings.NewReader(testCatalogue))
	require.NoError(t, err)
}
