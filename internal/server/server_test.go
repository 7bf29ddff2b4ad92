package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ingresounam/ingreso/internal/auth"
	"github.com/ingresounam/ingreso/internal/config"
	"github.com/ingresounam/ingreso/internal/models"
	"github.com/ingresounam/ingreso/internal/session"
	"github.com/ingresounam/ingreso/internal/tasks"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: "0", Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		Auth:      config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour, SessionTTL: time.Hour},
		RateLimit: config.RateLimitConfig{Window: time.Minute, MaxLogin: 3, MaxRegister: 100},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, deps Deps) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	srv, err := newServer(cfg, db, zerolog.Nop(), deps, "test")
	require.NoError(t, err)
	return srv, db
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

func createUser(t *testing.T, db *gorm.DB, email, role string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	user := &models.User{Email: email, PasswordHash: hash, Name: "Test " + role, Role: role}
	require.NoError(t, db.Create(user).Error)
	return user
}

func loginAs(t *testing.T, h http.Handler, email string) LoginResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/auth/login", LoginRequest{Email: email, Password: "password123"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), Deps{})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"online"`)
}

func TestInitJWT_PersistsGeneratedSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""
	_, db := newTestServer(t, cfg, Deps{})

	var settings models.Settings
	require.NoError(t, db.First(&settings).Error)
	assert.Len(t, settings.JWTSecret, 64)

	// Second start reuses the stored secret
	require.NoError(t, initJWT(db, cfg, zerolog.Nop()))
	var count int64
	require.NoError(t, db.Model(&models.Settings{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSetupFirstAdmin(t *testing.T) {
	srv, db := newTestServer(t, testConfig(), Deps{})
	h := srv.Handler()

	req := SetupRequest{Email: "Admin@Ingreso.test", Password: "password123", Name: "Admin"}
	rec := doJSON(t, h, http.MethodPost, "/api/setup", req, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, session.RoleAdmin, resp.User.Role)
	assert.Equal(t, "admin@ingreso.test", resp.User.Email)
	assert.NotNil(t, sessionCookie(rec))

	var user models.User
	require.NoError(t, db.First(&user).Error)
	assert.True(t, user.IsAdmin())

	rec = doJSON(t, h, http.MethodPost, "/api/setup", req, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), Deps{})
	h := srv.Handler()

	req := RegisterRequest{Email: "ana@ingreso.test", Password: "password123", Name: "Ana"}
	rec := doJSON(t, h, http.MethodPost, "/api/auth/register", req, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, session.RoleStudent, resp.User.Role)
	assert.NotEmpty(t, resp.AccessToken)

	rec = doJSON(t, h, http.MethodPost, "/api/auth/register", req, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email already registered")

	short := RegisterRequest{Email: "b@ingreso.test", Password: "123", Name: "B"}
	rec = doJSON(t, h, http.MethodPost, "/api/auth/register", short, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	srv, db := newTestServer(t, testConfig(), Deps{})
	h := srv.Handler()
	user := createUser(t, db, "ana@ingreso.test", models.RoleStudent)

	t.Run("wrong password", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/auth/login", LoginRequest{Email: user.Email, Password: "nope"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid email or password")
	})

	t.Run("success", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/auth/login", LoginRequest{Email: user.Email, Password: "password123"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		cookie := sessionCookie(rec)
		require.NotNil(t, cookie)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

		var stored models.UserSession
		require.NoError(t, db.Where("token = ?", cookie.Value).First(&stored).Error)
		assert.Equal(t, user.ID, stored.UserID)

		var reloaded models.User
		require.NoError(t, db.First(&reloaded, "id = ?", user.ID).Error)
		assert.NotNil(t, reloaded.LastLoginAt)
	})
}

func TestLogin_RateLimited(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), Deps{})
	h := srv.Handler()

	body := LoginRequest{Email: "ghost@ingreso.test", Password: "password123"}
	for i := 0; i < 3; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/auth/login", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/auth/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many login attempts")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMe_CookieAndBearer(t *testing.T) {
	srv, db := newTestServer(t, testConfig(), Deps{})
	h := srv.Handler()
	createUser(t, db, "ana@ingreso.test", models.RoleStudent)

	rec := doJSON(t, h, http.MethodPost, "/api/auth/login", LoginRequest{Email: "ana@ingreso.test", Password: "password123"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	t.Run("cookie", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) { r.AddCookie(cookie) })
		require.Equal(t, http.StatusOK, rec.Code)
		var me session.UserRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
		assert.Equal(t, login.User.UserID, me.UserID)
	})

	t.Run("bearer", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/auth/me", nil, bearer(login.AccessToken))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("none", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/auth/me", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired cookie falls through to bearer", func(t *testing.T) {
		require.NoError(t, db.Model(&models.UserSession{}).Where("token = ?", cookie.Value).
			Update("expires_at", time.Now().Add(-time.Minute)).Error)

		rec := doJSON(t, h, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) { r.AddCookie(cookie) })
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = doJSON(t, h, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
			r.AddCookie(cookie)
			bearer(login.AccessToken)(r)
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLogout_RevokesSession(t *testing.T) {
	srv, db := newTestServer(t, testConfig(), Deps{})
	h := srv.Handler()
	createUser(t, db, "ana@ingreso.test", models.RoleStudent)

	rec := doJSON(t, h, http.MethodPost, "/api/auth/login", LoginRequest{Email: "ana@ingreso.test", Password: "password123"}, nil)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)

	rec = doJSON(t, h, http.MethodPost, "/api/auth/logout", nil, func(r *http.Request) { r.AddCookie(cookie) })
	assert.Equal(t, http.StatusOK, rec.Code)
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	var count int64
	require.NoError(t, db.Model(&models.UserSession{}).Count(&count).Error)
	assert.Zero(t, count)

	rec = doJSON(t, h, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) { r.AddCookie(cookie) })
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logout without a session still succeeds
	rec = doJSON(t, h, http.MethodPost, "/api/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFeedback(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	srv, db := newTestServer(t, testConfig(), Deps{Enqueuer: enqueuer})
	h := srv.Handler()
	createUser(t, db, "ana@ingreso.test", models.RoleStudent)
	token := loginAs(t, h, "ana@ingreso.test").AccessToken

	rec := doJSON(t, h, http.MethodPost, "/api/feedback", FeedbackRequest{Type: "bug", Message: "Timer froze on question 3", Page: "/simulator/1"}, bearer(token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, models.FeedbackPending, created.Status)
	assert.Equal(t, "ana@ingreso.test", created.UserEmail)

	require.Len(t, enqueuer.tasks, 1)
	assert.Equal(t, tasks.TypeFeedbackReceived, enqueuer.tasks[0].Type())
	payload, err := tasks.ParseTaskPayload(enqueuer.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, created.ID, payload.FeedbackID)

	rec = doJSON(t, h, http.MethodPost, "/api/feedback", FeedbackRequest{Type: "complaint", Message: "Something else"}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/feedback", FeedbackRequest{Type: "bug", Message: "bad"}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Padding does not count toward the minimum length
	rec = doJSON(t, h, http.MethodPost, "/api/feedback", FeedbackRequest{Type: "bug", Message: "    a   "}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/feedback", FeedbackRequest{Type: "idea", Message: "  Más simuladores  "}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown type")

	rec = doJSON(t, h, http.MethodPost, "/api/feedback", FeedbackRequest{Type: "feature", Message: "  Más simuladores  "}, bearer(token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var trimmed models.Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trimmed))
	assert.Equal(t, "Más simuladores", trimmed.Message)

	rec = doJSON(t, h, http.MethodGet, "/api/feedback/my", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []models.Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 2)
}

func TestListActiveSimulators(t *testing.T) {
	srv, db := newTestServer(t, testConfig(), Deps{})
	h := srv.Handler()
	createUser(t, db, "ana@ingreso.test", models.RoleStudent)
	token := loginAs(t, h, "ana@ingreso.test").AccessToken

	require.NoError(t, db.Create(&models.Simulator{Name: "Área 1", Area: 1, QuestionCount: 120, DurationMinutes: 180, IsActive: true}).Error)
	retired := &models.Simulator{Name: "Viejo", Area: 2, QuestionCount: 120, DurationMinutes: 180, IsActive: true}
	require.NoError(t, db.Create(retired).Error)
	require.NoError(t, db.Model(retired).Update("is_active", false).Error)

	rec := doJSON(t, h, http.MethodGet, "/api/simulators", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	var sims []models.Simulator
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sims))
	require.Len(t, sims, 1)
	assert.Equal(t, "Área 1", sims[0].Name)
}

func TestAdminRoutes(t *testing.T) {
	srv, db := newTestServer(t, testConfig(), Deps{})
	h := srv.Handler()
	admin := createUser(t, db, "admin@ingreso.test", models.RoleAdmin)
	student := createUser(t, db, "ana@ingreso.test", models.RoleStudent)
	adminToken := loginAs(t, h, admin.Email).AccessToken
	studentToken := loginAs(t, h, student.Email).AccessToken

	t.Run("student forbidden", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/admin/stats", nil, bearer(studentToken))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("stats", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/admin/stats", nil, bearer(adminToken))
		require.Equal(t, http.StatusOK, rec.Code)
		var stats StatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.EqualValues(t, 2, stats.TotalUsers)
		assert.EqualValues(t, 1, stats.TotalAdmins)
		assert.EqualValues(t, 2, stats.ActiveSessions)
	})

	t.Run("users", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/admin/users", nil, bearer(adminToken))
		require.Equal(t, http.StatusOK, rec.Code)
		var users []UserDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		assert.Len(t, users, 2)
	})

	t.Run("cannot demote yourself", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPut, "/api/admin/users/"+admin.ID+"/role", UpdateRoleRequest{Role: "student"}, bearer(adminToken))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Cannot demote yourself")
	})

	t.Run("invalid role", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPut, "/api/admin/users/"+student.ID+"/role", UpdateRoleRequest{Role: "owner"}, bearer(adminToken))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("promote", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPut, "/api/admin/users/"+student.ID+"/role", UpdateRoleRequest{Role: "admin"}, bearer(adminToken))
		require.Equal(t, http.StatusOK, rec.Code)
		var detail UserDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
		assert.Equal(t, models.RoleAdmin, detail.Role)
	})

	t.Run("missing user", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPut, "/api/admin/users/nope/role", UpdateRoleRequest{Role: "admin"}, bearer(adminToken))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cannot delete yourself", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodDelete, "/api/admin/users/"+admin.ID, nil, bearer(adminToken))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Cannot delete yourself")
	})

	t.Run("delete", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodDelete, "/api/admin/users/"+student.ID, nil, bearer(adminToken))
		require.Equal(t, http.StatusOK, rec.Code)

		var sessions int64
		require.NoError(t, db.Model(&models.UserSession{}).Where("user_id = ?", student.ID).Count(&sessions).Error)
		assert.Zero(t, sessions)

		rec = doJSON(t, h, http.MethodDelete, "/api/admin/users/"+student.ID, nil, bearer(adminToken))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminQuestionsAndFeedback(t *testing.T) {
	srv, db := newTestServer(t, testConfig(), Deps{})
	h := srv.Handler()
	admin := createUser(t, db, "admin@ingreso.test", models.RoleAdmin)
	token := loginAs(t, h, admin.Email).AccessToken

	require.NoError(t, db.Create(&models.Question{Subject: "Matemáticas", Text: "2+2", Options: []string{"3", "4"}, CorrectOption: 1}).Error)
	require.NoError(t, db.Create(&models.Question{Subject: "Historia", Text: "1810", Options: []string{"a", "b"}}).Error)

	rec := doJSON(t, h, http.MethodGet, "/api/admin/questions?subject=Historia", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	var questions []models.Question
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &questions))
	require.Len(t, questions, 1)
	assert.Equal(t, []string{"a", "b"}, questions[0].Options)

	feedback := &models.Feedback{UserID: admin.ID, Type: "bug", Message: "Broken link", Status: models.FeedbackPending}
	require.NoError(t, db.Create(feedback).Error)

	rec = doJSON(t, h, http.MethodPut, "/api/admin/feedback/"+feedback.ID+"/status", UpdateFeedbackStatusRequest{Status: "archived"}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/admin/feedback/missing/status", UpdateFeedbackStatusRequest{Status: "resolved"}, bearer(token))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/admin/feedback/"+feedback.ID+"/status", UpdateFeedbackStatusRequest{Status: "resolved", AdminNotes: "Fixed"}, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/admin/feedback?status=resolved", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Fixed", listed[0].AdminNotes)
}
