package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
)

// Index renders the home page.
func (c *Controller) Index(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, pageIndex, c.newPage("Home"))
}

// UploadPage renders the upload form.
func (c *Controller) UploadPage(ctx echo.Context) error {
	exts := c.Uploads.Extensions()
	return ctx.Render(http.StatusOK, pageUpload, uploadPage{
		page:             c.newPage("Upload"),
		Extensions:       strings.Join(exts, ", "),
		Accept:           acceptList(exts),
		LastPredictionID: c.lastPrediction(ctx),
	})
}

// ResultPage renders one stored prediction. Unknown or malformed ids are 404.
func (c *Controller) ResultPage(ctx echo.Context) error {
	id, ok := parseID(ctx.Param("id"))
	if !ok {
		return echo.ErrNotFound
	}

	pred, err := c.loadPrediction(ctx, id)
	if err != nil {
		return c.lookupFailed(ctx, err, true)
	}

	data := resultPage{
		page:       c.newPage("Result"),
		Prediction: pred,
		Label:      className(c.Model.Classes(), pred.PredictedClass),
		Confidence: formatConfidence(pred.Confidence),
		ImageURL:   c.imageURL(pred.ImagePath),
	}
	if pred.Patient.Email != nil {
		data.PatientEmail = *pred.Patient.Email
	}
	return ctx.Render(http.StatusOK, pageResult, data)
}

// DashboardPage renders totals, class distribution and recent predictions.
func (c *Controller) DashboardPage(ctx echo.Context) error {
	stats, err := c.dashboardStats(ctx)
	if err != nil {
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternal, "Failed to load dashboard")
	}

	classes := c.Model.Classes()
	return ctx.Render(http.StatusOK, pageDashboard, dashboardPage{
		page:        c.newPage("Dashboard"),
		Stats:       stats,
		ClassCounts: newClassCounts(stats.ClassCounts, classes),
		Recent:      newPredictionSummaries(stats.Recent, classes),
	})
}

// imageURL maps a stored upload path to its /uploads URL, or "" if the file
// lies outside the upload directory.
func (c *Controller) imageURL(path string) string {
	rel, err := filepath.Rel(c.Uploads.Dir(), path)
	if err != nil || !filepath.IsLocal(rel) {
		return ""
	}
	return "/uploads/" + filepath.ToSlash(rel)
}
