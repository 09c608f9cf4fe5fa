package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/catalog-admin/internal/catalogapi"
	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Admin       string
	Nav         []dashboard.NavItem
	Data        any
}

// Option customises an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	assetBase string
}

// WithAssetBase resolves relative image URLs returned by the catalog API against base.
func WithAssetBase(base string) Option {
	return func(o *engineOptions) {
		o.assetBase = strings.TrimRight(base, "/")
	}
}

// NewEngine parses templates at build-time.
func NewEngine(opts ...Option) (*Engine, error) {
	var options engineOptions
	for _, opt := range opts {
		opt(&options)
	}
	funcMap := template.FuncMap{
		"asset": func(ref string) string {
			return assetURL(options.assetBase, ref)
		},
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},
		"day": func(d catalogapi.Date) string {
			return d.String()
		},
		"money": func(d decimal.Decimal) string {
			return dashboard.FormatMoney(d)
		},
		"fixed": func(d decimal.Decimal) string {
			return d.StringFixed(2)
		},
		"fields": func() FieldNames { return Fields },
		"ids":    func() ElementIDs { return IDs },
		"fieldError": func(errs map[string]string, field string) string {
			if errs == nil {
				return ""
			}
			return errs[field]
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus renders into a buffer first so a template error never leaves a half-written page.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func assetURL(base, ref string) string {
	if ref == "" || base == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:") {
		return ref
	}
	return base + "/" + strings.TrimLeft(ref, "/")
}

// Has reports whether a template is defined.
func (e *Engine) Has(name string) bool {
	return e != nil && e.templates.Lookup(name) != nil
}
