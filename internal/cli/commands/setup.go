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
	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/session"
)

// NewSetupCmd creates the setup command
func NewSetupCmd() *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the first admin account on a fresh server",
		Long: `Create the first admin account. The server accepts this only while it
has no users; the new admin is signed in right away.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd.Context(), email, password, name)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email address (or set INGRESO_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (or set INGRESO_PASSWORD, will prompt if not provided)")
	cmd.Flags().StringVar(&name, "name", "Admin", "Display name")

	return cmd
}

func runSetup(ctx context.Context, email, password, name string, opts ...Option) error {
	e, err := newEnv(opts...)
	if err != nil {
		return err
	}

	if email == "" {
		email = os.Getenv("INGRESO_EMAIL")
	}
	if password == "" {
		password = os.Getenv("INGRESO_PASSWORD")
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required (use --email flag or INGRESO_EMAIL env var)")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name is required")
	}

	if password == "" {
		if !term.IsTerminal(int(syscall.Stdin)) {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or INGRESO_PASSWORD env var)")
		}
		e.printf("Password: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(bytePassword)
		e.printf("\n")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := e.api.Setup(ctx, client.RegisterRequest{Email: email, Password: password, Name: name})
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	user := resp.User
	if err := e.store.Set(session.Session{User: &user, Authenticated: true, Token: resp.AccessToken}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	cfg, err := userconfig.Load(e.configPath)
	if err != nil {
		e.log.Warn().Err(err).Msg("Failed to load user config")
	} else {
		cfg.Email = email
		if err := userconfig.Save(e.configPath, cfg); err != nil {
			e.log.Warn().Err(err).Msg("Failed to remember email")
		}
	}

	e.printf("✓ Setup complete!\n")
	e.printf("  Admin: %s (%s)\n", user.Name, user.Email)
	return nil
}
