package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/logger"
)

// Machine readable error codes returned alongside the message.
const (
	CodeNoFile          = "no_file"
	CodeEmptyFilename   = "empty_filename"
	CodeInvalidFileType = "invalid_file_type"
	CodeModelNotLoaded  = "model_not_loaded"
	CodeProcessingError = "processing_error"
	CodeNotFound        = "not_found"
	CodeInvalidRequest  = "invalid_request"
	CodeConflict        = "conflict"
	CodeInternal        = "internal_error"
)

// Client facing messages for /predict.
const (
	MsgNoFile          = "No file uploaded"
	MsgEmptyFilename   = "No file selected"
	MsgInvalidFileType = "Invalid file type"
	MsgModelNotLoaded  = "Model not loaded"
	MsgProcessingError = "Error processing image: "
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	CorrelationID string `json:"correlation_id,omitempty"` // set for server side failures
}

// clientError replies to a rejected request. Upload rejections keep HTTP 200
// so existing form clients only need to look at the body.
func (c *Controller) clientError(ctx echo.Context, status int, code, message string) error {
	c.httpMetrics.RecordErrorResponse(code)
	return ctx.JSON(status, ErrorResponse{Error: message, Code: code})
}

// HandleError logs err with a fresh correlation id and replies with message.
func (c *Controller) HandleError(ctx echo.Context, err error, status int, code, message string) error {
	correlationID := uuid.NewString()

	fields := []logger.Field{
		logger.String("correlation_id", correlationID),
		logger.String("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
		logger.Error(err),
	}
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		fields = append(fields, logger.String("category", enhanced.GetCategory()))
	}
	c.log.Error("request failed", fields...)

	c.httpMetrics.RecordErrorResponse(code)
	return ctx.JSON(status, ErrorResponse{
		Error:         message,
		Code:          code,
		CorrelationID: correlationID,
	})
}

// notFound replies 404 for the JSON API.
func (c *Controller) notFound(ctx echo.Context, message string) error {
	return c.clientError(ctx, http.StatusNotFound, CodeNotFound, message)
}
