package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ingresounam/ingreso/internal/routes"
)

// NewRoutesCmd creates the routes command
func NewRoutesCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the route table",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []Option
			if file != "" {
				table, err := routes.Load(file)
				if err != nil {
					return err
				}
				opts = append(opts, WithRoutes(table))
			}
			return runRoutes(opts...)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Route table to validate and list instead of the built-in one")

	return cmd
}

func runRoutes(opts ...Option) error {
	e, err := newEnv(opts...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tTARGET\tGUARD")
	for _, r := range e.table.Routes() {
		if r.IsRedirect() {
			fmt.Fprintf(w, "%s\t→ %s\t-\n", r.Path, r.Redirect)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Path, r.View, r.Guard)
	}
	return w.Flush()
}
