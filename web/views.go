package web

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	ww "github.com/whisperwall/whisperwall"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData is the view-model every template receives: the restored session
// user (nil for anonymous visitors) plus page-specific entries.
type PageData struct {
	User        *ww.SessionUser
	Secrets     []*ww.User
	CallbackURL string
}

// Views renders the embedded page templates.
type Views struct {
	templates *template.Template
}

func NewViews() *Views {
	return &Views{
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}
}

func (v *Views) Render(w http.ResponseWriter, page string, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := v.templates.ExecuteTemplate(w, page, data); err != nil {
		slog.Error("error rendering template", "page", page, "err", err)
	}
}
