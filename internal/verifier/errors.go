package verifier

import "fmt"

// Kind classifies why a session could not be verified
type Kind int

const (
	// NoCredentials: neither the authenticated flag nor a token is stored
	NoCredentials Kind = iota + 1
	// Unverified: the cookie attempt failed and no token was stored
	Unverified
	// TokenInvalid: the bearer attempt failed
	TokenInvalid
)

func (k Kind) String() string {
	switch k {
	case NoCredentials:
		return "no_credentials"
	case Unverified:
		return "unverified"
	case TokenInvalid:
		return "token_invalid"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is
var (
	ErrNoCredentials = &Error{Kind: NoCredentials}
	ErrUnverified    = &Error{Kind: Unverified}
	ErrTokenInvalid  = &Error{Kind: TokenInvalid}
)

// Error is a verification failure. Err holds the last transport or status error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("verification failed: %s", e.Kind)
	}
	return fmt.Sprintf("verification failed: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
