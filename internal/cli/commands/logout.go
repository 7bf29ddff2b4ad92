package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ingresounam/ingreso/internal/client"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd.Context())
		},
	}
}

func runLogout(ctx context.Context, opts ...Option) error {
	e, err := newEnv(opts...)
	if err != nil {
		return err
	}

	sess, err := e.store.Get()
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to read stored session")
	}

	if sess.HasCredentials() {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		// The local session is cleared regardless
		if err := e.api.Logout(ctx, client.Auth{Token: sess.Token}); err != nil {
			e.log.Warn().Err(err).Msg("Server logout failed")
		}
	}

	if err := e.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	e.printf("✓ Logged out\n")
	return nil
}
