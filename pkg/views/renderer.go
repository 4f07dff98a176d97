// Package views renders login flow pages with html/template.
package views

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"github.com/platinummonkey/threshold/pkg/flow"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ErrNotAPage is returned for results that have no page body
var ErrNotAPage = errors.New("result is not a page")

// Renderer turns a page result into HTML
type Renderer interface {
	Render(w io.Writer, page flow.Result) error
}

// TemplateRenderer renders pages from a set of named templates:
// login.html, logout.html, loggedout.html and error.html.
type TemplateRenderer struct {
	templates *template.Template
}

// NewTemplateRenderer uses the built-in templates
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{templates: template.Must(template.ParseFS(templatesFS, "templates/*.html"))}
}

// NewTemplateRendererFS parses templates from fsys, letting a deployment
// replace the built-in pages. Templates missing from fsys fall back to the
// built-in ones.
func NewTemplateRendererFS(fsys fs.FS, pattern string) (*TemplateRenderer, error) {
	base, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	tmpl, err := base.ParseFS(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &TemplateRenderer{templates: tmpl}, nil
}

// Render implements Renderer
func (r *TemplateRenderer) Render(w io.Writer, page flow.Result) error {
	var name string
	var data any
	switch p := page.(type) {
	case flow.LoginPage:
		name, data = "login.html", p.Model
	case flow.LogoutPromptPage:
		name, data = "logout.html", p.Model
	case flow.LoggedOutPage:
		name, data = "loggedout.html", p.Model
	case flow.ErrorPage:
		name, data = "error.html", p.Model
	default:
		return fmt.Errorf("%w: %T", ErrNotAPage, page)
	}

	// Render fully before writing so a template error never leaves half a page
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
