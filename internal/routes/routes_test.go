package routes

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingresounam/ingreso/internal/guard"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	tests := []struct {
		path   string
		view   string
		guard  guard.Requirement
		params map[string]string
	}{
		{path: "/", view: "landing", guard: guard.RequireNone},
		{path: "/login", view: "login", guard: guard.RequireNone},
		{path: "/register", view: "register", guard: guard.RequireNone},
		{path: "/dashboard", view: "dashboard", guard: guard.RequireAuthenticated},
		{path: "/simulator/sim-42", view: "simulator", guard: guard.RequireAuthenticated, params: map[string]string{"simulatorId": "sim-42"}},
		{path: "/practice", view: "practice", guard: guard.RequireAuthenticated},
		{path: "/results/att-7/", view: "results", guard: guard.RequireAuthenticated, params: map[string]string{"attemptId": "att-7"}},
		{path: "/progress", view: "progress", guard: guard.RequireAuthenticated},
		{path: "/profile", view: "profile", guard: guard.RequireAuthenticated},
		{path: "/subscription", view: "subscription", guard: guard.RequireAuthenticated},
		{path: "/admin", view: "admin_dashboard", guard: guard.RequireAdmin},
		{path: "/admin/questions", view: "admin_questions", guard: guard.RequireAdmin},
		{path: "/admin/simulators", view: "admin_simulators", guard: guard.RequireAdmin},
		{path: "/admin/users", view: "admin_users", guard: guard.RequireAdmin},
		{path: "/admin/feedback", view: "admin_feedback", guard: guard.RequireAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m, redirected, err := table.Resolve(tt.path)
			require.NoError(t, err)
			assert.False(t, redirected)
			assert.Equal(t, tt.view, m.Route.View)
			assert.Equal(t, tt.guard, m.Route.Guard)
			assert.Equal(t, tt.params, m.Params)
		})
	}
}

func TestSimulatorsAliasRedirectsToDashboard(t *testing.T) {
	table := Default()

	raw, err := table.Match("/simulators")
	require.NoError(t, err)
	assert.True(t, raw.Route.IsRedirect())
	assert.Equal(t, "/dashboard", raw.Route.Redirect)

	m, redirected, err := table.Resolve("/simulators")
	require.NoError(t, err)
	assert.True(t, redirected)
	assert.Equal(t, "dashboard", m.Route.View)
}

func TestMatch_NotFound(t *testing.T) {
	table := Default()

	for _, path := range []string{"/nope", "/simulator", "/simulator/a/b", "/admin/unknown"} {
		_, err := table.Match(path)
		assert.True(t, errors.Is(err, ErrNotFound), path)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "routes: []", "empty"},
		{"relative path", "routes:\n  - path: dashboard\n    view: d", "must start with /"},
		{"duplicate", "routes:\n  - path: /a\n    view: a\n  - path: /a\n    view: b", "duplicate"},
		{"bad guard", "routes:\n  - path: /a\n    view: a\n    guard: root", "unknown guard"},
		{"view and redirect", "routes:\n  - path: /a\n    view: a\n    redirect: /b", "exclusive"},
		{"neither", "routes:\n  - path: /a", "needs a view"},
		{"dangling redirect", "routes:\n  - path: /a\n    redirect: /missing", "not a view"},
		{"redirect chain", "routes:\n  - path: /a\n    redirect: /b\n  - path: /b\n    redirect: /c\n  - path: /c\n    view: c", "not a view"},
		{"not yaml", "routes: [", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - path: /\n    view: home\n  - path: /old\n    redirect: /\n"), 0644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, table.Routes(), 2)

	m, redirected, err := table.Resolve("/old")
	require.NoError(t, err)
	assert.True(t, redirected)
	assert.Equal(t, "home", m.Route.View)
	assert.Equal(t, guard.RequireNone, m.Route.Guard)
}
