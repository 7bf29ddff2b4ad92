package commands

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ingresounam/ingreso/internal/cli/userconfig"
)

// NewUseCmd creates the use command
func NewUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <backend-url>",
		Short: "Set the default identity API for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUse(args[0])
		},
	}
}

func runUse(backendURL string, opts ...Option) error {
	u, err := url.Parse(backendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend URL %q (expected http(s)://host[:port])", backendURL)
	}

	e := &env{}
	for _, opt := range opts {
		opt(e)
	}
	if e.configPath == "" {
		path, err := userconfig.GetConfigPath()
		if err != nil {
			return err
		}
		e.configPath = path
	}
	if e.out == nil {
		e.out = os.Stdout
	}

	cfg, err := userconfig.Load(e.configPath)
	if err != nil {
		return err
	}
	cfg.BackendURL = strings.TrimRight(backendURL, "/")
	if err := userconfig.Save(e.configPath, cfg); err != nil {
		return err
	}

	e.printf("✓ Using %s\n", cfg.BackendURL)
	return nil
}
