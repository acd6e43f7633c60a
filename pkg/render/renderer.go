package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/illmade-knight/go-apicache/pkg/coordinator"
	"github.com/oklog/ulid/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

// AdminView is everything the admin page shows.
type AdminView struct {
	Title          string
	Info           coordinator.CacheInfo
	Table          Table
	Error          string
	Endpoint       string
	CacheDuration  string
	CLICommand     string
	Nonce          string
	NonceExpiresIn string
	RefreshURL     string
}

// LastUpdated is how long ago the cached payload was fetched.
func (v AdminView) LastUpdated() string {
	return HumanDuration(v.Info.Age)
}

// LoginView is the form that exchanges a bearer token for a session cookie.
type LoginView struct {
	Title  string
	Action string
	Error  string
}

// WidgetView is the embeddable table fragment.
type WidgetView struct {
	BlockID string
	Table   Table
	Error   string
}

// Renderer draws HTML pages. Every value is escaped by html/template.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Admin writes the full admin page.
func (r *Renderer) Admin(w io.Writer, v AdminView) error {
	if v.Title == "" {
		v.Title = "API Data"
	}
	return r.templates.ExecuteTemplate(w, "admin", v)
}

// Login writes the admin login form.
func (r *Renderer) Login(w io.Writer, v LoginView) error {
	if v.Title == "" {
		v.Title = "API Data"
	}
	return r.templates.ExecuteTemplate(w, "login", v)
}

// Widget writes the embeddable fragment. A missing BlockID gets a fresh one.
func (r *Renderer) Widget(w io.Writer, v WidgetView) error {
	if v.BlockID = SanitizeBlockID(v.BlockID); v.BlockID == "" {
		v.BlockID = NewBlockID()
	}
	return r.templates.ExecuteTemplate(w, "widget", v)
}

// NewBlockID returns a unique, sortable element id for a widget instance.
func NewBlockID() string {
	return "apicache-block-" + strings.ToLower(ulid.Make().String())
}

// ParseColumns splits a comma-separated column list, dropping blanks.
func ParseColumns(s string) []string {
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// SanitizeBlockID lowercases id and keeps only letters, digits, dashes and underscores.
func SanitizeBlockID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, strings.ToLower(id))
}
