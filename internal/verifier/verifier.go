// Package verifier confirms a stored session against the identity endpoint.
//
// Attempts run in a fixed order and never concurrently: a cookie attempt when
// the authenticated flag is set (forwarding cookies and, when present, the
// bearer token), then a bearer-only attempt when a token is stored. With no
// flag and no token no request is made.
package verifier

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/metrics"
	"github.com/ingresounam/ingreso/internal/session"
)

// Identity resolves credentials to a user via GET /api/auth/me
type Identity interface {
	Me(ctx context.Context, auth client.Auth) (*session.UserRecord, error)
}

// Credentials is what a navigation can present for verification
type Credentials struct {
	Session session.Session
	Cookies []*http.Cookie // forwarded to the identity endpoint on the cookie attempt
}

// Verifier runs the ordered verification attempts
type Verifier struct {
	identity Identity
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Verifier
type Option func(*Verifier)

// WithMetrics records every attempt
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// New creates a Verifier
func New(identity Identity, log zerolog.Logger, opts ...Option) *Verifier {
	v := &Verifier{identity: identity, log: log}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify returns the verified user or an *Error. A cancelled context is
// reported as the context's error, not as a verification failure.
func (v *Verifier) Verify(ctx context.Context, creds Credentials) (*session.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sess := creds.Session
	if !sess.HasCredentials() {
		v.metrics.RecordVerify("none", NoCredentials.String(), 0)
		return nil, &Error{Kind: NoCredentials}
	}

	if sess.Authenticated {
		user, err := v.attempt(ctx, "cookie", client.Auth{Token: sess.Token, Cookies: creds.Cookies})
		if err == nil {
			return user, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if sess.Token == "" {
			return nil, &Error{Kind: Unverified, Err: err}
		}
	}

	user, err := v.attempt(ctx, "token", client.Auth{Token: sess.Token})
	if err == nil {
		return user, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, &Error{Kind: TokenInvalid, Err: err}
}

func (v *Verifier) attempt(ctx context.Context, name string, auth client.Auth) (*session.UserRecord, error) {
	start := time.Now()
	user, err := v.identity.Me(ctx, auth)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		v.metrics.RecordVerify(name, "ok", elapsed)
		v.log.Debug().Str("attempt", name).Str("user_id", user.UserID).Dur("duration", elapsed).Msg("Session verified")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		v.metrics.RecordVerify(name, "canceled", elapsed)
	default:
		v.metrics.RecordVerify(name, "failed", elapsed)
		v.log.Debug().Err(err).Str("attempt", name).Dur("duration", elapsed).Msg("Verification attempt failed")
	}

	return user, err
}
