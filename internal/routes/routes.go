// Package routes is the declarative table mapping view paths to views and
// guard requirements. Redirect entries are resolved before any guard runs.
package routes

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ingresounam/ingreso/internal/guard"
)

//go:embed routes.yaml
var defaultTable []byte

// ErrNotFound is returned when no route matches a path
var ErrNotFound = errors.New("route not found")

// Route is one table entry
type Route struct {
	Path     string            `yaml:"path"`
	View     string            `yaml:"view"`
	Guard    guard.Requirement `yaml:"guard"`
	Redirect string            `yaml:"redirect"`

	segments []string
}

// IsRedirect reports whether the route is a permanent alias
func (r *Route) IsRedirect() bool {
	return r.Redirect != ""
}

// IsAdmin reports whether the route requires the admin role
func (r *Route) IsAdmin() bool {
	return r.Guard == guard.RequireAdmin
}

// Match is a resolved navigation target
type Match struct {
	Route  *Route
	Params map[string]string
}

// Table is an ordered, validated list of routes
type Table struct {
	routes []*Route
}

type tableFile struct {
	Routes []*Route `yaml:"routes"`
}

// Default returns the embedded route table
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded route table is invalid: %v", err))
	}
	return t
}

// Load reads a route table from path
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML route table
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse route table: %w", err)
	}
	if len(file.Routes) == 0 {
		return nil, errors.New("route table is empty")
	}

	seen := make(map[string]bool)
	for i, r := range file.Routes {
		if r == nil || !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("route %d: path must start with /", i)
		}
		if seen[r.Path] {
			return nil, fmt.Errorf("route %s: duplicate path", r.Path)
		}
		seen[r.Path] = true

		req, err := guard.ParseRequirement(string(r.Guard))
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", r.Path, err)
		}
		r.Guard = req

		switch {
		case r.Redirect != "" && r.View != "":
			return nil, fmt.Errorf("route %s: redirect and view are exclusive", r.Path)
		case r.Redirect == "" && r.View == "":
			return nil, fmt.Errorf("route %s: needs a view or a redirect", r.Path)
		case r.Redirect != "" && !strings.HasPrefix(r.Redirect, "/"):
			return nil, fmt.Errorf("route %s: redirect must be an absolute path", r.Path)
		}

		r.segments = split(r.Path)
	}

	t := &Table{routes: file.Routes}

	// Redirect targets must land on a real view so aliases cannot loop
	for _, r := range t.routes {
		if !r.IsRedirect() {
			continue
		}
		target, err := t.Match(r.Redirect)
		if err != nil || target.Route.IsRedirect() {
			return nil, fmt.Errorf("route %s: redirect target %s is not a view", r.Path, r.Redirect)
		}
	}

	return t, nil
}

// Routes returns the table entries in declaration order
func (t *Table) Routes() []*Route {
	return t.routes
}

// Match finds the first route whose pattern matches path
func (t *Table) Match(path string) (Match, error) {
	segments := split(path)
	for _, r := range t.routes {
		if params, ok := matchSegments(r.segments, segments); ok {
			return Match{Route: r, Params: params}, nil
		}
	}
	return Match{}, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// Resolve matches path and follows a redirect entry. redirected reports
// whether the returned match was reached through an alias.
func (t *Table) Resolve(path string) (m Match, redirected bool, err error) {
	m, err = t.Match(path)
	if err != nil {
		return Match{}, false, err
	}
	if !m.Route.IsRedirect() {
		return m, false, nil
	}
	m, err = t.Match(m.Route.Redirect)
	return m, true, err
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchSegments(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}

	var params map[string]string
	for i, p := range pattern {
		if name, ok := strings.CutPrefix(p, ":"); ok {
			if segments[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[name] = segments[i]
			continue
		}
		if p != segments[i] {
			return nil, false
		}
	}
	return params, true
}
