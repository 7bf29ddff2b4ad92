package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"

	"github.com/gin-gonic/gin/render"

	"github.com/ingresounam/ingreso/internal/admindata"
	"github.com/ingresounam/ingreso/internal/client"
	"github.com/ingresounam/ingreso/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	layoutTemplate  = "layout"
	genericView     = "generic"
	notFoundView    = "not_found"
	baseTemplateDir = "templates"
)

// viewData is what every page template receives
type viewData struct {
	View      string
	Path      string
	Params    map[string]string
	User      *session.UserRecord
	Admin     *admindata.Snapshot
	Feedback  bool // mount the feedback widget
	Notice    string
	Error     string
	RequestID string

	// Filled by page loaders
	Simulators []client.Simulator
	Simulator  *client.Simulator
	MyFeedback []client.Feedback
}

// FeedbackTypes lists the widget's choices
func (viewData) FeedbackTypes() []string {
	return []string{"bug", "feature", "improvement", "other"}
}

// FeedbackStatuses lists the triage states an admin can set
func (viewData) FeedbackStatuses() []string {
	return []string{"pending", "in_progress", "resolved", "rejected"}
}

// viewRenderer implements gin's render.HTMLRender with one template set per
// view, each sharing the layout
type viewRenderer struct {
	views map[string]*template.Template
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"isAdmin": func(u *session.UserRecord) bool {
		return u.IsAdmin()
	},
}

func loadViews() (*viewRenderer, error) {
	base, err := template.New(layoutTemplate).Funcs(funcs).ParseFS(templateFS, path.Join(baseTemplateDir, "layout.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	entries, err := fs.Glob(templateFS, path.Join(baseTemplateDir, "*.html"))
	if err != nil {
		return nil, err
	}

	r := &viewRenderer{views: make(map[string]*template.Template)}
	for _, entry := range entries {
		name := strings.TrimSuffix(path.Base(entry), ".html")
		if name == layoutTemplate {
			continue
		}

		view, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := view.ParseFS(templateFS, entry); err != nil {
			return nil, fmt.Errorf("failed to parse view %s: %w", name, err)
		}
		r.views[name] = view
	}

	if _, ok := r.views[genericView]; !ok {
		return nil, fmt.Errorf("missing %s view", genericView)
	}
	return r, nil
}

// Instance picks the view's template set, falling back to the generic view
func (r *viewRenderer) Instance(name string, data any) render.Render {
	tmpl, ok := r.views[name]
	if !ok {
		tmpl = r.views[genericView]
	}
	return render.HTML{Template: tmpl, Name: layoutTemplate, Data: data}
}

