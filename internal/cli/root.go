package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ingresounam/ingreso/internal/cli/commands"
)

var version = "dev" // Will be set during build

var rootCmd = &cobra.Command{
	Use:   "ingreso",
	Short: "IngresoUNAM - exam preparation from the terminal",
	Long: `IngresoUNAM CLI - sign in and inspect how the app gates each page.

Sessions are kept in ~/.config/ingreso with the bearer token in the OS keyring,
and every guarded path is verified against the identity API before it is shown.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.BackendFlag, "backend", "", "Identity API base URL (or set INGRESO_BACKEND_URL)")

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ingreso version %s\n", version)
		},
	})

	// Add all subcommands
	rootCmd.AddCommand(commands.NewSetupCmd())
	rootCmd.AddCommand(commands.NewLoginCmd())
	rootCmd.AddCommand(commands.NewLogoutCmd())
	rootCmd.AddCommand(commands.NewWhoamiCmd())
	rootCmd.AddCommand(commands.NewOpenCmd())
	rootCmd.AddCommand(commands.NewRoutesCmd())
	rootCmd.AddCommand(commands.NewUseCmd())
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
