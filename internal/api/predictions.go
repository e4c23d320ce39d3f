package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/mriscan/braintumor-go/internal/datastore"
	"github.com/mriscan/braintumor-go/internal/errors"
)

// ListPredictions returns every prediction, newest first.
func (c *Controller) ListPredictions(ctx echo.Context) error {
	preds, err := c.DS.ListPredictions(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternal, "Failed to list predictions")
	}
	return ctx.JSON(http.StatusOK, newPredictionSummaries(preds, c.Model.Classes()))
}

// GetPrediction returns one prediction with its patient.
func (c *Controller) GetPrediction(ctx echo.Context) error {
	id, ok := parseID(ctx.Param("id"))
	if !ok {
		return c.notFound(ctx, "Prediction not found")
	}

	pred, err := c.loadPrediction(ctx, id)
	if err != nil {
		return c.lookupFailed(ctx, err, false)
	}
	return ctx.JSON(http.StatusOK, newPredictionDetail(pred, c.Model.Classes()))
}

// loadPrediction reads a prediction through the detail cache.
func (c *Controller) loadPrediction(ctx echo.Context, id uint) (*datastore.Prediction, error) {
	key := predictionCacheKey(id)
	if cached, found := c.predictionCache.Get(key); found {
		if pred, ok := cached.(*datastore.Prediction); ok {
			return pred, nil
		}
	}

	pred, err := c.DS.GetPrediction(ctx.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	c.predictionCache.Set(key, pred, cache.DefaultExpiration)
	return pred, nil
}

// lookupFailed maps a prediction lookup error to a reply.
func (c *Controller) lookupFailed(ctx echo.Context, err error, html bool) error {
	if errors.IsNotFound(err) {
		if html {
			return echo.ErrNotFound
		}
		return c.notFound(ctx, "Prediction not found")
	}
	return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternal, "Failed to load prediction")
}

func predictionCacheKey(id uint) string {
	return "prediction:" + strconv.FormatUint(uint64(id), 10)
}

// parseID accepts positive decimal ids only.
func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
