package guard

import "fmt"

// Redirect targets
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// State is the guard's position in Loading -> {Authenticated, Unauthenticated}
type State int

const (
	Loading State = iota
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Requirement is what a route demands of the visitor
type Requirement string

const (
	RequireNone          Requirement = "none"
	RequireAuthenticated Requirement = "authenticated"
	RequireAdmin         Requirement = "admin"
)

// ParseRequirement validates a requirement name. Empty means none.
func ParseRequirement(s string) (Requirement, error) {
	switch Requirement(s) {
	case "", RequireNone:
		return RequireNone, nil
	case RequireAuthenticated, RequireAdmin:
		return Requirement(s), nil
	default:
		return "", fmt.Errorf("unknown guard requirement %q", s)
	}
}

// Outcome is the single rendering decision taken once loading completes
type Outcome int

const (
	Placeholder Outcome = iota
	RedirectLogin
	RedirectDashboard
	Render
)

func (o Outcome) String() string {
	switch o {
	case Placeholder:
		return "placeholder"
	case RedirectLogin:
		return "redirect_login"
	case RedirectDashboard:
		return "redirect_dashboard"
	case Render:
		return "render"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Location returns the redirect target, or "" for non-redirect outcomes
func (o Outcome) Location() string {
	switch o {
	case RedirectLogin:
		return LoginPath
	case RedirectDashboard:
		return DashboardPath
	default:
		return ""
	}
}

// Decide maps an auth state and a requirement to exactly one outcome.
// No redirect is ever decided while loading.
func Decide(state AuthState, req Requirement) Outcome {
	if state.Loading {
		return Placeholder
	}
	if req == RequireNone {
		return Render
	}
	if !state.Authenticated || state.User == nil {
		return RedirectLogin
	}
	if req == RequireAdmin && !state.User.IsAdmin() {
		return RedirectDashboard
	}
	return Render
}
