package api

import (
	"fmt"
	"time"

	"github.com/mriscan/braintumor-go/internal/datastore"
)

// PredictResponse is the success body of POST /predict.
type PredictResponse struct {
	Success      bool   `json:"success"`
	Prediction   string `json:"prediction"`
	Confidence   string `json:"confidence"` // "97.00%"
	ImagePath    string `json:"image_path"`
	PredictionID uint   `json:"prediction_id"`
}

// PredictionSummary is one row of GET /api/predictions.
type PredictionSummary struct {
	ID             uint      `json:"id"`
	PatientName    string    `json:"patient_name"`
	Prediction     string    `json:"prediction"`
	Confidence     float64   `json:"confidence"`
	Date           time.Time `json:"date"`
	ConfidenceText string    `json:"-"`
}

// PatientInfo is the patient part of a prediction detail.
type PatientInfo struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// PredictionDetail is the body of GET /api/predictions/:id.
type PredictionDetail struct {
	ID             uint        `json:"id"`
	Patient        PatientInfo `json:"patient"`
	Prediction     string      `json:"prediction"`
	ClassIndex     int         `json:"class_index"`
	Confidence     float64     `json:"confidence"`
	ConfidenceText string      `json:"confidence_text"`
	ImagePath      string      `json:"image_path"`
	Notes          string      `json:"notes,omitempty"`
	Date           time.Time   `json:"date"`
}

// ClassCount is the number of predictions of one class.
type ClassCount struct {
	Class string `json:"class"`
	Count int64  `json:"count"`
}

// DashboardResponse is the body of GET /api/dashboard.
type DashboardResponse struct {
	TotalPredictions int64               `json:"total_predictions"`
	TotalPatients    int64               `json:"total_patients"`
	ClassCounts      []ClassCount        `json:"class_counts"`
	Recent           []PredictionSummary `json:"recent_predictions"`
}

// DoctorRequest is the body of POST /api/doctors.
type DoctorRequest struct {
	Name           string `json:"name" form:"name"`
	Email          string `json:"email" form:"email"`
	Specialization string `json:"specialization" form:"specialization"`
}

// DoctorResponse describes a stored doctor.
type DoctorResponse struct {
	ID             uint      `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Specialization string    `json:"specialization,omitempty"`
	CreatedDate    time.Time `json:"created_date"`
}

// formatConfidence renders a probability as a percentage with two decimals.
func formatConfidence(p float64) string {
	return fmt.Sprintf("%.2f%%", p*100)
}

// className maps a stored class index to its label.
func className(classes []string, index int) string {
	if index < 0 || index >= len(classes) {
		return "Unknown"
	}
	return classes[index]
}

func newPredictionSummary(p *datastore.Prediction, classes []string) PredictionSummary {
	return PredictionSummary{
		ID:             p.ID,
		PatientName:    p.PatientName(),
		Prediction:     className(classes, p.PredictedClass),
		Confidence:     p.Confidence,
		Date:           p.PredictionDate.UTC(),
		ConfidenceText: formatConfidence(p.Confidence),
	}
}

func newPredictionSummaries(preds []datastore.Prediction, classes []string) []PredictionSummary {
	out := make([]PredictionSummary, 0, len(preds))
	for i := range preds {
		out = append(out, newPredictionSummary(&preds[i], classes))
	}
	return out
}

func newPredictionDetail(p *datastore.Prediction, classes []string) PredictionDetail {
	d := PredictionDetail{
		ID: p.ID,
		Patient: PatientInfo{
			ID:    p.Patient.ID,
			Name:  p.Patient.Name,
			Phone: p.Patient.Phone,
		},
		Prediction:     className(classes, p.PredictedClass),
		ClassIndex:     p.PredictedClass,
		Confidence:     p.Confidence,
		ConfidenceText: formatConfidence(p.Confidence),
		ImagePath:      p.ImagePath,
		Notes:          p.Notes,
		Date:           p.PredictionDate.UTC(),
	}
	if p.Patient.Email != nil {
		d.Patient.Email = *p.Patient.Email
	}
	return d
}

func newClassCounts(counts []int64, classes []string) []ClassCount {
	out := make([]ClassCount, len(counts))
	for i, n := range counts {
		out[i] = ClassCount{Class: className(classes, i), Count: n}
	}
	return out
}

func newDoctorResponse(d *datastore.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:             d.ID,
		Name:           d.Name,
		Email:          d.Email,
		Specialization: d.Specialization,
		CreatedDate:    d.CreatedDate.UTC(),
	}
}
