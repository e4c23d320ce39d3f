package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mriscan/braintumor-go/internal/datastore"
	"github.com/mriscan/braintumor-go/internal/errors"
)

// ListDoctors returns all doctors ordered by name.
func (c *Controller) ListDoctors(ctx echo.Context) error {
	doctors, err := c.DS.ListDoctors(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternal, "Failed to list doctors")
	}

	out := make([]DoctorResponse, 0, len(doctors))
	for i := range doctors {
		out = append(out, newDoctorResponse(&doctors[i]))
	}
	return ctx.JSON(http.StatusOK, out)
}

// CreateDoctor stores a doctor from a JSON or form body.
func (c *Controller) CreateDoctor(ctx echo.Context) error {
	var req DoctorRequest
	if err := ctx.Bind(&req); err != nil {
		return c.clientError(ctx, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
	}

	doctor := &datastore.Doctor{
		Name:           strings.TrimSpace(req.Name),
		Email:          strings.TrimSpace(req.Email),
		Specialization: strings.TrimSpace(req.Specialization),
	}

	err := c.DS.SaveDoctor(ctx.Request().Context(), doctor)
	switch {
	case err == nil:
		return ctx.JSON(http.StatusCreated, newDoctorResponse(doctor))
	case errors.IsCategory(err, errors.CategoryValidation):
		return c.clientError(ctx, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.IsCategory(err, errors.CategoryConflict):
		return c.clientError(ctx, http.StatusConflict, CodeConflict, "A doctor with this e-mail already exists")
	default:
		return c.HandleError(ctx, err, http.StatusInternalServerError, CodeInternal, "Failed to save doctor")
	}
}
