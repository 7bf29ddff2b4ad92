// Package guard decides, for each protected navigation, whether to render
// the view, show a neutral placeholder or redirect. Every resolution starts
// in Loading and re-runs verification from scratch.
package guard

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ingresounam/ingreso/internal/metrics"
	"github.com/ingresounam/ingreso/internal/session"
	"github.com/ingresounam/ingreso/internal/verifier"
)

// Verifier confirms stored credentials
type Verifier interface {
	Verify(ctx context.Context, creds verifier.Credentials) (*session.UserRecord, error)
}

// Navigation is one attempt to reach a guarded view
type Navigation struct {
	ClientID    string // navigations sharing a client cancel each other
	Path        string
	Requirement Requirement
	Store       session.Store
	Cookies     []*http.Cookie
}

// Result is the guard's answer for one navigation
type Result struct {
	State   AuthState
	Outcome Outcome
	Err     error  // verification error, if any
	Stale   bool   // superseded by a newer navigation; discard
	Scope   *Scope // set only when Outcome is Render
}

// MountFeedback reports whether the feedback affordance accompanies the view
func (r Result) MountFeedback() bool {
	return r.Outcome == Render
}

// TransitionFunc observes every state entered during a resolution
type TransitionFunc func(nav Navigation, state State)

// Guard runs resolutions
type Guard struct {
	verifier     Verifier
	tracker      *Tracker
	log          zerolog.Logger
	metrics      *metrics.Metrics
	onTransition TransitionFunc
}

// Option configures a Guard
type Option func(*Guard)

// WithTracker shares a tracker between guards
func WithTracker(t *Tracker) Option {
	return func(g *Guard) {
		g.tracker = t
	}
}

// WithMetrics records every decision
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithTransitionHook installs fn as the state observer
func WithTransitionHook(fn TransitionFunc) Option {
	return func(g *Guard) {
		g.onTransition = fn
	}
}

// New creates a Guard
func New(v Verifier, log zerolog.Logger, opts ...Option) *Guard {
	g := &Guard{verifier: v, log: log}
	for _, opt := range opts {
		opt(g)
	}
	if g.tracker == nil {
		g.tracker = NewTracker()
	}
	return g
}

// Resolve verifies the navigation's session and decides its outcome
func (g *Guard) Resolve(ctx context.Context, nav Navigation) Result {
	tok := g.tracker.Begin(ctx, nav.ClientID)
	defer tok.Done()

	g.transition(nav, Loading)

	sess, err := nav.Store.Get()
	if err != nil {
		g.log.Warn().Err(err).Str("path", nav.Path).Msg("Failed to read session, treating as signed out")
		sess = session.Session{}
	}

	user, err := g.verifier.Verify(tok.Context(), verifier.Credentials{Session: sess, Cookies: nav.Cookies})

	if tok.Stale() {
		g.log.Debug().Str("path", nav.Path).Str("client_id", nav.ClientID).Msg("Navigation superseded")
		return g.finish(nav, Result{State: AuthState{Loading: true}, Outcome: Placeholder, Err: ErrSuperseded, Stale: true})
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return g.finish(nav, Result{State: AuthState{Loading: true}, Outcome: Placeholder, Err: err})
	}

	if err != nil {
		g.transition(nav, Unauthenticated)

		kind := "unknown"
		var verr *verifier.Error
		if errors.As(err, &verr) {
			kind = verr.Kind.String()
		}
		g.log.Info().Str("path", nav.Path).Str("reason", kind).Msg("Navigation unauthenticated")

		state := AuthState{}
		return g.finish(nav, Result{State: state, Outcome: Decide(state, nav.Requirement), Err: err})
	}

	// The scope starts from the stored record; a fresher one replaces it in both places
	scope := NewScope(sess.User, nav.Store)
	if !user.Equal(sess.User) {
		if err := scope.SetUser(user); err != nil {
			g.log.Warn().Err(err).Str("user_id", user.UserID).Msg("Failed to refresh stored user")
		}
	}

	g.transition(nav, Authenticated)

	state := AuthState{Authenticated: true, User: scope.User()}
	result := Result{State: state, Outcome: Decide(state, nav.Requirement)}
	if result.Outcome == Render {
		result.Scope = scope
	}
	if result.Outcome == RedirectDashboard {
		g.log.Info().Str("path", nav.Path).Str("user_id", user.UserID).Str("role", user.Role).Msg("Admin route denied")
	}
	return g.finish(nav, result)
}

func (g *Guard) transition(nav Navigation, state State) {
	if g.onTransition != nil {
		g.onTransition(nav, state)
	}
}

func (g *Guard) finish(nav Navigation, result Result) Result {
	outcome := result.Outcome.String()
	if result.Stale {
		outcome = "stale"
	}
	g.metrics.RecordGuardDecision(string(nav.Requirement), outcome)
	return result
}
