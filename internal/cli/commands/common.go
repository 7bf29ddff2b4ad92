package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ingresounam/ingreso/internal/admindata"
	"github.com/ingresounam/ingreso/internal/cli/userconfig"
	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/guard"
	"github.com/ingresounam/ingreso/internal/routes"
	"github.com/ingresounam/ingreso/internal/session"
	"github.com/ingresounam/ingreso/internal/verifier"
)

const (
	defaultBackendURL = "http://localhost:8000"
	requestTimeout    = 30 * time.Second
)

// BackendFlag is bound to the root command's --backend flag
var BackendFlag string

// API is the identity API surface the commands use
type API interface {
	verifier.Identity
	admindata.AdminAPI
	Login(ctx context.Context, email, password string) (*client.AuthResponse, error)
	Setup(ctx context.Context, req client.RegisterRequest) (*client.AuthResponse, error)
	Logout(ctx context.Context, auth client.Auth) error
}

// env is what a command runs against
type env struct {
	api        API
	store      session.Store
	table      *routes.Table
	out        io.Writer
	log        zerolog.Logger
	configPath string
	backendURL string
}

// Option overrides part of a command's environment, mainly for tests
type Option func(*env)

// WithAPI replaces the identity API client
func WithAPI(api API) Option {
	return func(e *env) { e.api = api }
}

// WithStore replaces the session store
func WithStore(store session.Store) Option {
	return func(e *env) { e.store = store }
}

// WithRoutes replaces the route table
func WithRoutes(table *routes.Table) Option {
	return func(e *env) { e.table = table }
}

// WithOutput redirects command output
func WithOutput(w io.Writer) Option {
	return func(e *env) { e.out = w }
}

// WithConfigPath points at a user config file
func WithConfigPath(path string) Option {
	return func(e *env) { e.configPath = path }
}

// newEnv builds the default environment, then applies opts
func newEnv(opts ...Option) (*env, error) {
	e := &env{
		out: os.Stdout,
		log: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.configPath == "" {
		path, err := userconfig.GetConfigPath()
		if err != nil {
			return nil, err
		}
		e.configPath = path
	}

	if e.table == nil {
		e.table = routes.Default()
	}

	if e.api == nil {
		backendURL, err := resolveBackendURL(e.configPath)
		if err != nil {
			return nil, err
		}
		e.backendURL = backendURL
		e.api = client.New(backendURL)
	}

	if e.store == nil {
		path, err := session.DefaultFilePath()
		if err != nil {
			return nil, err
		}
		account := e.backendURL
		if account == "" {
			account = defaultBackendURL
		}
		e.store = session.NewKVStore(session.NewKeyringBackend(account, session.NewFileBackend(path)))
	}

	return e, nil
}

// resolveBackendURL prefers the flag, then INGRESO_BACKEND_URL, then the user config
func resolveBackendURL(configPath string) (string, error) {
	if BackendFlag != "" {
		return strings.TrimRight(BackendFlag, "/"), nil
	}
	if v := os.Getenv("INGRESO_BACKEND_URL"); v != "" {
		return strings.TrimRight(v, "/"), nil
	}

	cfg, err := userconfig.Load(configPath)
	if err != nil {
		return "", err
	}
	if cfg.BackendURL != "" {
		return cfg.BackendURL, nil
	}
	return defaultBackendURL, nil
}

func (e *env) guard() *guard.Guard {
	v := verifier.New(e.api, e.log)
	return guard.New(v, e.log)
}

func (e *env) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

func roleLabel(role string) string {
	if role == session.RoleAdmin {
		return "Admin"
	}
	return "Student"
}
