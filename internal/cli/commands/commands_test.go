package commands

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ingresounam/ingreso/internal/cli/userconfig"
	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/session"
)

// mockAPI simulates the identity API
type mockAPI struct {
	users       map[string]session.UserRecord // keyed by bearer token
	loginFail   bool
	setupDone   bool
	logoutCalls int
	meCalls     int
	statsCalls  int
}

func newMockAPI() *mockAPI {
	return &mockAPI{users: map[string]session.UserRecord{
		"tok-ana":   {UserID: "u-ana", Email: "ana@ingreso.test", Name: "Ana", Role: session.RoleStudent},
		"tok-admin": {UserID: "u-admin", Email: "admin@ingreso.test", Name: "Admin", Role: session.RoleAdmin},
	}}
}

func (m *mockAPI) Login(ctx context.Context, email, password string) (*client.AuthResponse, error) {
	if m.loginFail || password != "password123" {
		return nil, &client.StatusError{Op: "login", StatusCode: 401, Body: `{"error":"Invalid email or password"}`}
	}
	for token, u := range m.users {
		if u.Email == email {
			return &client.AuthResponse{AccessToken: token, TokenType: "bearer", User: u}, nil
		}
	}
	return nil, &client.StatusError{Op: "login", StatusCode: 401}
}

func (m *mockAPI) Setup(ctx context.Context, req client.RegisterRequest) (*client.AuthResponse, error) {
	if m.setupDone {
		return nil, &client.StatusError{Op: "setup", StatusCode: 409, Body: `{"error":"Setup already completed"}`}
	}
	m.setupDone = true
	u := session.UserRecord{UserID: "u-root", Email: req.Email, Name: req.Name, Role: session.RoleAdmin}
	m.users["tok-root"] = u
	return &client.AuthResponse{AccessToken: "tok-root", TokenType: "bearer", User: u}, nil
}

func (m *mockAPI) Logout(ctx context.Context, auth client.Auth) error {
	m.logoutCalls++
	return errors.New("server unreachable")
}

func (m *mockAPI) Me(ctx context.Context, auth client.Auth) (*session.UserRecord, error) {
	m.meCalls++
	if u, ok := m.users[auth.Token]; ok {
		return &u, nil
	}
	return nil, &client.StatusError{Op: "me", StatusCode: 401}
}

func (m *mockAPI) AdminStats(ctx context.Context, auth client.Auth) (*client.Stats, error) {
	m.statsCalls++
	return &client.Stats{TotalUsers: 2, TotalQuestions: 40, TotalSimulators: 4}, nil
}

func (m *mockAPI) AdminUsers(ctx context.Context, auth client.Auth) ([]client.User, error) {
	return nil, nil
}

func (m *mockAPI) AdminQuestions(ctx context.Context, auth client.Auth) ([]client.Question, error) {
	return nil, nil
}

func (m *mockAPI) AdminSimulators(ctx context.Context, auth client.Auth) ([]client.Simulator, error) {
	return nil, nil
}

func (m *mockAPI) AdminFeedback(ctx context.Context, auth client.Auth) ([]client.Feedback, error) {
	return []client.Feedback{{ID: "f1", Status: "pending"}, {ID: "f2", Status: "resolved"}}, nil
}

type harness struct {
	api    *mockAPI
	store  *session.KVStore
	output *bytes.Buffer
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("INGRESO_EMAIL", "")
	t.Setenv("INGRESO_PASSWORD", "")
	return &harness{
		api:    newMockAPI(),
		store:  session.NewKVStore(session.NewMemoryBackend()),
		output: &bytes.Buffer{},
		config: filepath.Join(t.TempDir(), "config.yaml"),
	}
}

func (h *harness) opts() []Option {
	return []Option{WithAPI(h.api), WithStore(h.store), WithOutput(h.output), WithConfigPath(h.config)}
}

func (h *harness) signIn(t *testing.T, token string) {
	t.Helper()
	u := h.api.users[token]
	if err := h.store.Set(session.Session{User: &u, Authenticated: true, Token: token}); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
}

func TestLoginCommand_Success(t *testing.T) {
	h := newHarness(t)

	err := runLogin(context.Background(), "ana@ingreso.test", "password123", h.opts()...)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	sess, err := h.store.Get()
	if err != nil {
		t.Fatalf("failed to read session: %v", err)
	}
	if !sess.Authenticated || sess.Token != "tok-ana" {
		t.Errorf("unexpected stored session: %+v", sess)
	}
	if sess.User == nil || sess.User.UserID != "u-ana" {
		t.Errorf("expected stored user u-ana, got %+v", sess.User)
	}

	if !strings.Contains(h.output.String(), "Login successful") {
		t.Errorf("expected success message, got: %s", h.output.String())
	}

	cfg, err := userconfig.Load(h.config)
	if err != nil {
		t.Fatalf("failed to load user config: %v", err)
	}
	if cfg.Email != "ana@ingreso.test" {
		t.Errorf("expected remembered email, got %q", cfg.Email)
	}
}

func TestLoginCommand_Failure(t *testing.T) {
	h := newHarness(t)

	err := runLogin(context.Background(), "ana@ingreso.test", "wrong", h.opts()...)
	if err == nil {
		t.Fatal("expected error for wrong password")
	}
	if !strings.Contains(err.Error(), "login failed") {
		t.Errorf("unexpected error: %v", err)
	}

	sess, _ := h.store.Get()
	if sess.HasCredentials() {
		t.Errorf("expected no stored credentials, got %+v", sess)
	}
}

func TestLoginCommand_EmailFromEnv(t *testing.T) {
	h := newHarness(t)
	t.Setenv("INGRESO_EMAIL", "admin@ingreso.test")
	t.Setenv("INGRESO_PASSWORD", "password123")

	if err := runLogin(context.Background(), "", "", h.opts()...); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !strings.Contains(h.output.String(), "Role: Admin") {
		t.Errorf("expected admin role line, got: %s", h.output.String())
	}
}

func TestLoginCommand_MissingEmail(t *testing.T) {
	h := newHarness(t)

	err := runLogin(context.Background(), "", "password123", h.opts()...)
	if err == nil || !strings.Contains(err.Error(), "email is required") {
		t.Errorf("expected missing email error, got %v", err)
	}
}

func TestLogoutCommand_ClearsEvenWhenServerFails(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "tok-ana")

	if err := runLogout(context.Background(), h.opts()...); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if h.api.logoutCalls != 1 {
		t.Errorf("expected one server logout, got %d", h.api.logoutCalls)
	}

	sess, _ := h.store.Get()
	if sess.HasCredentials() || sess.User != nil {
		t.Errorf("expected cleared session, got %+v", sess)
	}
}

func TestLogoutCommand_NoSessionSkipsServer(t *testing.T) {
	h := newHarness(t)

	if err := runLogout(context.Background(), h.opts()...); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if h.api.logoutCalls != 0 {
		t.Errorf("expected no server logout, got %d", h.api.logoutCalls)
	}
}

func TestWhoamiCommand(t *testing.T) {
	t.Run("signed in", func(t *testing.T) {
		h := newHarness(t)
		h.signIn(t, "tok-ana")

		if err := runWhoami(context.Background(), h.opts()...); err != nil {
			t.Fatalf("expected success, got error: %v", err)
		}
		if !strings.Contains(h.output.String(), "Ana (ana@ingreso.test)") {
			t.Errorf("unexpected output: %s", h.output.String())
		}
	})

	t.Run("no session makes no calls", func(t *testing.T) {
		h := newHarness(t)

		err := runWhoami(context.Background(), h.opts()...)
		if !errors.Is(err, ErrNotLoggedIn) {
			t.Errorf("expected ErrNotLoggedIn, got %v", err)
		}
		if h.api.meCalls != 0 {
			t.Errorf("expected no identity calls, got %d", h.api.meCalls)
		}
	})

	t.Run("revoked token", func(t *testing.T) {
		h := newHarness(t)
		if err := h.store.Set(session.Session{Authenticated: true, Token: "tok-revoked"}); err != nil {
			t.Fatal(err)
		}

		err := runWhoami(context.Background(), h.opts()...)
		if !errors.Is(err, ErrNotLoggedIn) {
			t.Errorf("expected ErrNotLoggedIn, got %v", err)
		}
	})
}

func TestWhoamiCommand_RefreshesStoredUser(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "tok-ana")

	u := h.api.users["tok-ana"]
	u.Name = "Ana María"
	h.api.users["tok-ana"] = u

	if err := runWhoami(context.Background(), h.opts()...); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !strings.Contains(h.output.String(), "Ana María (ana@ingreso.test)") {
		t.Errorf("unexpected output: %s", h.output.String())
	}

	sess, err := h.store.Get()
	if err != nil {
		t.Fatal(err)
	}
	if sess.User == nil || sess.User.Name != "Ana María" {
		t.Errorf("expected stored user to be refreshed, got %+v", sess.User)
	}
	if sess.Token != "tok-ana" {
		t.Errorf("expected token to survive the refresh, got %q", sess.Token)
	}
}

func TestSetupCommand(t *testing.T) {
	h := newHarness(t)

	if err := runSetup(context.Background(), " root@ingreso.test ", "password123", "Root", h.opts()...); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !strings.Contains(h.output.String(), "Admin: Root (root@ingreso.test)") {
		t.Errorf("unexpected output: %s", h.output.String())
	}

	sess, err := h.store.Get()
	if err != nil {
		t.Fatal(err)
	}
	if sess.Token != "tok-root" || sess.User == nil || sess.User.Role != session.RoleAdmin {
		t.Errorf("expected admin session, got %+v", sess)
	}

	cfg, err := userconfig.Load(h.config)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Email != "root@ingreso.test" {
		t.Errorf("expected email to be remembered, got %q", cfg.Email)
	}

	// A second run is refused by the server
	err = runSetup(context.Background(), "other@ingreso.test", "password123", "Other", h.opts()...)
	if err == nil || !strings.Contains(err.Error(), "setup failed") {
		t.Errorf("expected setup failure, got %v", err)
	}

	err = runSetup(context.Background(), "", "password123", "Root", h.opts()...)
	if err == nil || !strings.Contains(err.Error(), "email is required") {
		t.Errorf("expected missing email error, got %v", err)
	}
}

func TestOpenCommand(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		path     string
		want     []string
		wantErr  bool
		meCalls  int
		statsHit int
	}{
		{name: "public view", path: "/", want: []string{"render landing"}},
		{name: "alias", path: "/simulators", want: []string{"/simulators → /dashboard", "redirect /login"}},
		{name: "signed out", path: "/dashboard", want: []string{"redirect /login (not signed in)"}},
		{name: "student", token: "tok-ana", path: "/results/9", want: []string{"render results as ana@ingreso.test", "attemptId = 9"}, meCalls: 1},
		{name: "student on admin", token: "tok-ana", path: "/admin/users", want: []string{"redirect /dashboard (admin only)"}, meCalls: 1},
		{name: "admin", token: "tok-admin", path: "/admin", want: []string{"render admin_dashboard", "questions: 40", "pending feedback: 1"}, meCalls: 1, statsHit: 1},
		{name: "unknown", path: "/nowhere", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.token != "" {
				h.signIn(t, tt.token)
			}

			err := runOpen(context.Background(), tt.path, h.opts()...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for _, want := range tt.want {
				if !strings.Contains(h.output.String(), want) {
					t.Errorf("expected output to contain %q, got: %s", want, h.output.String())
				}
			}
			if h.api.meCalls != tt.meCalls {
				t.Errorf("expected %d identity calls, got %d", tt.meCalls, h.api.meCalls)
			}
			if h.api.statsCalls != tt.statsHit {
				t.Errorf("expected %d stats calls, got %d", tt.statsHit, h.api.statsCalls)
			}
		})
	}
}

func TestRoutesCommand(t *testing.T) {
	h := newHarness(t)

	if err := runRoutes(h.opts()...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := h.output.String()
	for _, want := range []string{"PATH", "/dashboard", "→ /dashboard", "admin_feedback", "authenticated"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestUseCommand(t *testing.T) {
	h := newHarness(t)

	if err := runUse("https://api.ingreso.test/", h.opts()...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := userconfig.Load(h.config)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BackendURL != "https://api.ingreso.test" {
		t.Errorf("unexpected backend url %q", cfg.BackendURL)
	}

	if err := runUse("ftp://nope", h.opts()...); err == nil {
		t.Error("expected invalid URL error")
	}
}

func TestResolveBackendURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("INGRESO_BACKEND_URL", "")
	BackendFlag = ""
	t.Cleanup(func() { BackendFlag = "" })

	got, err := resolveBackendURL(path)
	if err != nil || got != defaultBackendURL {
		t.Errorf("expected default, got %q (%v)", got, err)
	}

	if err := userconfig.Save(path, &userconfig.UserConfig{BackendURL: "http://saved:8000"}); err != nil {
		t.Fatal(err)
	}
	got, _ = resolveBackendURL(path)
	if got != "http://saved:8000" {
		t.Errorf("expected saved url, got %q", got)
	}

	t.Setenv("INGRESO_BACKEND_URL", "http://env:8000/")
	got, _ = resolveBackendURL(path)
	if got != "http://env:8000" {
		t.Errorf("expected env url, got %q", got)
	}

	BackendFlag = "http://flag:8000"
	got, _ = resolveBackendURL(path)
	if got != "http://flag:8000" {
		t.Errorf("expected flag url, got %q", got)
	}
}
