package web

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/domain"
	"github.com/rs/zerolog/log"
)

// TemplateData holds common data passed to all templates
type TemplateData struct {
	Title     string
	IsAdmin   bool
	CSRFToken string
	Next      string
	Error     string
	Success   string
	Data      any
}

// templates is the global template cache
var templates map[string]*template.Template

var funcs = template.FuncMap{
	"positionLabel": func(p domain.Position) string { return p.Label() },
	"positions": func() []domain.Position {
		return append([]domain.Position{domain.PositionAuto}, domain.Positions()...)
	},
	"formatTime": func(t any) string {
		switch v := t.(type) {
		case time.Time:
			return v.Local().Format("Jan 2, 2006 15:04")
		case *time.Time:
			if v == nil {
				return ""
			}
			return v.Local().Format("Jan 2, 2006 15:04")
		default:
			return ""
		}
	},
	"plural": func(n int, word string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, word)
		}
		return fmt.Sprintf("%d %ss", n, word)
	},
	"add":       func(a, b int) int { return a + b },
	"expiresIn": expiresIn,
}

// InitTemplates parses and caches all templates from fsys
func InitTemplates(fsys fs.FS) error {
	templates = make(map[string]*template.Template)

	pages := []string{
		"tree.html",
		"submit.html",
		"submit_result.html",
		"admin_login.html",
		"admin.html",
	}

	for _, page := range pages {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(fsys, "layout.html", page)
		if err != nil {
			return fmt.Errorf("parse %s: %w", page, err)
		}
		templates[page] = tmpl
	}

	log.Info().Int("count", len(templates)).Msg("Templates initialized")
	return nil
}

// RenderTemplate renders a template with the given data
func RenderTemplate(w http.ResponseWriter, r *http.Request, name string, data *TemplateData) {
	RenderTemplateStatus(w, r, http.StatusOK, name, data)
}

// RenderTemplateStatus renders a template with an explicit status code
func RenderTemplateStatus(w http.ResponseWriter, r *http.Request, status int, name string, data *TemplateData) {
	tmpl, ok := templates[name]
	if !ok {
		log.Error().Str("template", name).Msg("Template not found")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if err := tmpl.Execute(w, data); err != nil {
		log.Error().Err(err).Str("template", name).Str("path", r.URL.Path).Msg("Failed to render template")
	}
}
