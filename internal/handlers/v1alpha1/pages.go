package v1alpha1

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageApply   = "apply.html"
	pageSuccess = "success.html"
	pageError   = "error.html"
	pageFreeIPs = "free_ips.html"
)

// Each page is parsed together with the layout into its own set, since all
// pages define the same blocks.
var pages = func() map[string]*template.Template {
	m := make(map[string]*template.Template)
	for _, name := range []string{pageApply, pageSuccess, pageError, pageFreeIPs} {
		m[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return m
}()

type errorPage struct {
	Title     string
	Message   string
	Reference string
}

func render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		zap.S().Named("handler:render").Errorw("Failed to render page", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
