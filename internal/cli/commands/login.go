package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ingresounam/ingreso/internal/cli/userconfig"
	"github.com/ingresounam/ingreso/internal/session"
)

// NewLoginCmd creates the login command
func NewLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to IngresoUNAM",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set INGRESO_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set INGRESO_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(ctx context.Context, email, password string, opts ...Option) error {
	e, err := newEnv(opts...)
	if err != nil {
		return err
	}

	cfg, err := userconfig.Load(e.configPath)
	if err != nil {
		return err
	}

	// Check for environment variables (useful for CI/CD)
	if email == "" {
		email = os.Getenv("INGRESO_EMAIL")
	}
	if email == "" {
		email = cfg.Email
	}
	if password == "" {
		password = os.Getenv("INGRESO_PASSWORD")
	}

	// Validate email
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required (use --email flag or INGRESO_EMAIL env var)")
	}

	// Prompt for password if not provided via flag or env var
	if password == "" {
		// Check if stdin is a terminal (not piped)
		if !term.IsTerminal(int(syscall.Stdin)) {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or INGRESO_PASSWORD env var)")
		}
		e.printf("Password: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(bytePassword)
		e.printf("\n") // New line after password input
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := e.api.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	user := resp.User
	if err := e.store.Set(session.Session{User: &user, Authenticated: true, Token: resp.AccessToken}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	cfg.Email = email
	if err := userconfig.Save(e.configPath, cfg); err != nil {
		e.log.Warn().Err(err).Msg("Failed to remember email")
	}

	e.printf("✓ Login successful!\n")
	e.printf("  User: %s (%s)\n", user.Name, user.Email)
	e.printf("  Role: %s\n", roleLabel(user.Role))

	return nil
}
