package api

import (
	"embed"
	"html/template"
	"io"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mriscan/braintumor-go/internal/datastore"
)

//go:embed views/*.html
var viewsFS embed.FS

// Page template names.
const (
	pageIndex     = "index.html"
	pageUpload    = "upload.html"
	pageResult    = "result.html"
	pageDashboard = "dashboard.html"
)

// TemplateRenderer renders the embedded HTML views for echo.
type TemplateRenderer struct {
	templates *template.Template
}

// NewTemplateRenderer parses the embedded views.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	t, err := template.New("").ParseFS(viewsFS, "views/*.html")
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{templates: t}, nil
}

// Render implements echo.Renderer.
func (r *TemplateRenderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// page carries what the shared layout needs.
type page struct {
	Title       string
	ModelLoaded bool
	Classes     []string
}

type uploadPage struct {
	page
	Extensions       string
	Accept           string
	LastPredictionID uint
}

type resultPage struct {
	page
	Prediction   *datastore.Prediction
	Label        string
	Confidence   string
	PatientEmail string
	ImageURL     string
}

type dashboardPage struct {
	page
	Stats       *datastore.DashboardStats
	ClassCounts []ClassCount
	Recent      []PredictionSummary
}

func (c *Controller) newPage(title string) page {
	return page{
		Title:       title,
		ModelLoaded: c.Model.Loaded(),
		Classes:     c.Model.Classes(),
	}
}

// acceptList turns extensions into the file input accept attribute.
func acceptList(extensions []string) string {
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		out = append(out, "."+strings.TrimPrefix(strings.ToLower(ext), "."))
	}
	return strings.Join(out, ",")
}
