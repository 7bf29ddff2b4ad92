package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/ingresounam/ingreso/internal/guard"
	"github.com/ingresounam/ingreso/internal/verifier"
)

// ErrNotLoggedIn is returned when no verified session exists
var ErrNotLoggedIn = errors.New("not logged in. Please run 'ingreso login' first")

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user, verified against the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd.Context())
		},
	}
}

func runWhoami(ctx context.Context, opts ...Option) error {
	e, err := newEnv(opts...)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	// The guard refreshes the stored user when the server's copy differs
	result := e.guard().Resolve(ctx, guard.Navigation{
		Path:        "whoami",
		Requirement: guard.RequireAuthenticated,
		Store:       e.store,
	})

	switch result.Outcome {
	case guard.Placeholder:
		if result.Err != nil {
			return result.Err
		}
		return ctx.Err()
	case guard.RedirectLogin:
		var verr *verifier.Error
		if result.Err != nil && !errors.As(result.Err, &verr) {
			return result.Err
		}
		return ErrNotLoggedIn
	}

	user := result.Scope.User()
	e.printf("%s (%s)\n", user.Name, user.Email)
	e.printf("  Role: %s\n", roleLabel(user.Role))
	if user.CreatedAt != "" {
		e.printf("  Member since: %s\n", user.CreatedAt)
	}
	return nil
}
