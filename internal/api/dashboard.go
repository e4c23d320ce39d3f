package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mriscan/braintumor-go/internal/datastore"
)

// Dashboard returns the dashboard aggregates as JSON.
func (c *Controller) Dashboard(ctx echo.Context) error {
	stats, err := c.dashboardStats(ctx)
	if err != nil {
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternal, "Failed to load dashboard")
	}

	classes := c.Model.Classes()
	return ctx.JSON(http.StatusOK, DashboardResponse{
		TotalPredictions: stats.TotalPredictions,
		TotalPatients:    stats.TotalPatients,
		ClassCounts:      newClassCounts(stats.ClassCounts, classes),
		Recent:           newPredictionSummaries(stats.Recent, classes),
	})
}

func (c *Controller) dashboardStats(ctx echo.Context) (*datastore.DashboardStats, error) {
	return c.DS.Dashboard(ctx.Request().Context(), len(c.Model.Classes()), c.config.RecentPredictions)
}
