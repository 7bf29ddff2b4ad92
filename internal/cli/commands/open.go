package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ingresounam/ingreso/internal/admindata"
	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/guard"
	"github.com/ingresounam/ingreso/internal/routes"
)

// NewOpenCmd creates the open command
func NewOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Resolve a path through the router and route guard",
		Long: `Resolve a path the way the web host would: aliases redirect first,
public views render, and guarded views are verified against the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(cmd.Context(), args[0])
		},
	}
}

func runOpen(ctx context.Context, path string, opts ...Option) error {
	e, err := newEnv(opts...)
	if err != nil {
		return err
	}

	m, redirected, err := e.table.Resolve(path)
	if err != nil {
		if errors.Is(err, routes.ErrNotFound) {
			return fmt.Errorf("no route for %s", path)
		}
		return err
	}
	if redirected {
		e.printf("%s → %s\n", path, m.Route.Path)
	}

	if m.Route.Guard == guard.RequireNone {
		e.printf("render %s\n", m.Route.View)
		e.printParams(m.Params)
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	result := e.guard().Resolve(ctx, guard.Navigation{
		Path:        m.Route.Path,
		Requirement: m.Route.Guard,
		Store:       e.store,
	})

	switch result.Outcome {
	case guard.Placeholder:
		e.printf("loading\n")
		return result.Err
	case guard.RedirectLogin:
		e.printf("redirect %s (not signed in)\n", result.Outcome.Location())
		return nil
	case guard.RedirectDashboard:
		e.printf("redirect %s (admin only)\n", result.Outcome.Location())
		return nil
	}

	user := result.Scope.User()
	e.printf("render %s as %s (%s)\n", m.Route.View, user.Email, user.Role)
	e.printParams(m.Params)

	if !m.Route.IsAdmin() {
		return nil
	}

	sess, err := e.store.Get()
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	provider := admindata.NewProvider(admindata.NewSource(e.api), nil, 0, e.log, nil)
	snap, err := provider.Load(guard.Provide(ctx, result.Scope), user, client.Auth{Token: sess.Token})
	if err != nil {
		return fmt.Errorf("failed to load admin data: %w", err)
	}

	if snap.Stats != nil {
		e.printf("  users: %d  questions: %d  simulators: %d\n", snap.Stats.TotalUsers, snap.Stats.TotalQuestions, snap.Stats.TotalSimulators)
	}
	e.printf("  pending feedback: %d\n", snap.PendingFeedback())
	return nil
}

func (e *env) printParams(params map[string]string) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e.printf("  %s = %s\n", name, params[name])
	}
}
