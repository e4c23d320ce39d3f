package api

import (
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mriscan/braintumor-go/internal/classifier"
	"github.com/mriscan/braintumor-go/internal/datastore"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/imaging"
	"github.com/mriscan/braintumor-go/internal/logger"
	"github.com/mriscan/braintumor-go/internal/mqtt"
	"github.com/mriscan/braintumor-go/internal/observability/metrics"
)

const (
	formFile         = "file"
	formPatientName  = "patient_name"
	formPatientEmail = "patient_email"
	formPatientPhone = "patient_phone"
	formNotes        = "notes"
)

// Predict handles POST /predict: validate the upload, store it, classify it
// and persist the patient and prediction in one transaction.
//
// Rejections reply with HTTP 200 and an error body. The model is checked
// before anything is written, so a refused request leaves no file and no rows.
func (c *Controller) Predict(ctx echo.Context) error {
	fh, err := ctx.FormFile(formFile)
	if err != nil {
		if emptyFilePart(ctx.Request().MultipartForm) {
			return c.clientError(ctx, http.StatusOK, CodeEmptyFilename, MsgEmptyFilename)
		}
		return c.clientError(ctx, http.StatusOK, CodeNoFile, MsgNoFile)
	}
	if strings.TrimSpace(fh.Filename) == "" {
		return c.clientError(ctx, http.StatusOK, CodeEmptyFilename, MsgEmptyFilename)
	}
	if !c.Uploads.Allowed(fh.Filename) {
		return c.clientError(ctx, http.StatusOK, CodeInvalidFileType, MsgInvalidFileType)
	}
	if !c.Model.Loaded() {
		return c.clientError(ctx, http.StatusOK, CodeModelNotLoaded, MsgModelNotLoaded)
	}

	path, err := c.saveUpload(fh)
	if err != nil {
		return c.processingError(ctx, err)
	}

	resp, err := c.classifyAndStore(ctx, path)
	if err != nil {
		c.discardUpload(path)
		if errors.Is(err, classifier.ErrModelNotLoaded) {
			// model was closed while the request was in flight
			return c.clientError(ctx, http.StatusOK, CodeModelNotLoaded, MsgModelNotLoaded)
		}
		return c.processingError(ctx, err)
	}

	c.rememberPrediction(ctx, resp.PredictionID)
	return ctx.JSON(http.StatusOK, resp)
}

// emptyFilePart reports whether the form had a "file" part without a filename.
// mime/multipart files such parts as plain values.
func emptyFilePart(form *multipart.Form) bool {
	if form == nil {
		return false
	}
	_, ok := form.Value[formFile]
	return ok
}

func (c *Controller) saveUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			Context("operation", "open_upload").
			Build()
	}
	defer src.Close()

	return c.Uploads.Save(fh.Filename, src)
}

func (c *Controller) classifyAndStore(ctx echo.Context, path string) (*PredictResponse, error) {
	reqCtx := ctx.Request().Context()

	start := time.Now()
	tensor, err := imaging.Preprocess(path, c.Model.ImageSize())
	if err != nil {
		c.classifierMetrics.RecordError(metrics.StagePreprocess)
		return nil, err
	}
	c.classifierMetrics.ObserveStage(metrics.StagePreprocess, time.Since(start))

	result, err := c.Model.Classify(reqCtx, tensor)
	if err != nil {
		return nil, err
	}

	patient := &datastore.Patient{
		Name:  strings.TrimSpace(ctx.FormValue(formPatientName)),
		Phone: strings.TrimSpace(ctx.FormValue(formPatientPhone)),
	}
	if patient.Name == "" {
		patient.Name = datastore.UnknownPatientName
	}
	if email := strings.TrimSpace(ctx.FormValue(formPatientEmail)); email != "" {
		patient.Email = &email
	}

	prediction := &datastore.Prediction{
		ImagePath:      path,
		PredictedClass: result.Index,
		Confidence:     result.Confidence,
		PredictionDate: time.Now().UTC(),
		Notes:          strings.TrimSpace(ctx.FormValue(formNotes)),
	}

	if err := c.DS.SavePrediction(reqCtx, patient, prediction); err != nil {
		return nil, err
	}

	c.log.Info("prediction stored",
		logger.Uint64("prediction_id", uint64(prediction.ID)),
		logger.Uint64("patient_id", uint64(patient.ID)),
		logger.String("prediction", result.Label),
		logger.Float64("confidence", result.Confidence),
		logger.Duration("duration", time.Since(start)))

	c.publish(prediction, result)

	return &PredictResponse{
		Success:      true,
		Prediction:   result.Label,
		Confidence:   formatConfidence(result.Confidence),
		ImagePath:    path,
		PredictionID: prediction.ID,
	}, nil
}

func (c *Controller) publish(p *datastore.Prediction, result classifier.Result) {
	if c.Events == nil {
		return
	}
	event := mqtt.NewPredictionEvent(p.ID, result.Label, result.Index, result.Confidence, p.ImagePath, p.PredictionDate)
	event.Backend = c.Model.Backend()
	c.Events.PublishPrediction(event)
}

func (c *Controller) discardUpload(path string) {
	if err := c.Uploads.Remove(path); err != nil {
		c.log.Warn("failed to remove upload after error",
			logger.String("path", path),
			logger.Error(err))
	}
}

func (c *Controller) processingError(ctx echo.Context, err error) error {
	return c.HandleError(ctx, err, http.StatusOK, CodeProcessingError, MsgProcessingError+err.Error())
}
