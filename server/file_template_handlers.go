package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/cosflow/cosflow-web/i18n"
	"github.com/rs/zerolog/hlog"
)

//go:embed templates/*
var templateFiles embed.FS

// Page template names
const (
	pageHome      = "home.html"
	pagePricing   = "pricing.html"
	pageLogin     = "login.html"
	pageDashboard = "dashboard.html"
	pageProject   = "project.html"
	pageProfile   = "profile.html"
	pageError     = "error.html"
)

var pageNames = []string{pageHome, pagePricing, pageLogin, pageDashboard, pageProject, pageProfile, pageError}

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

var templateFuncs = template.FuncMap{
	"t": i18n.T,
	"money": func(amount float64) string {
		return fmt.Sprintf("%.2f", amount)
	},
}

// ParseTemplate parses a page together with the shared layout from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	return template.New("layout.html").Funcs(templateFuncs).ParseFS(TemplateFilesFS(), "layout.html", name)
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// render executes a page into a buffer first so a template failure never sends a half page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data *PageData) {
	tmpl, ok := s.pages[name]
	if !ok {
		hlog.FromRequest(r).Error().Str("page", name).Msg("unknown page template")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("page", name).Msg("failed to render page")
		http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
