package mqtt

import (
	"path/filepath"
	"time"
)

// PredictionEvent is the JSON payload published after a prediction is stored.
// It carries no patient identity.
type PredictionEvent struct {
	PredictionID uint      `json:"predictionId"`
	Class        string    `json:"class"`
	ClassIndex   int       `json:"classIndex"`
	Confidence   float64   `json:"confidence"`
	Image        string    `json:"image"` // base name of the stored upload
	Timestamp    time.Time `json:"timestamp"`
	Backend      string    `json:"backend,omitempty"`
}

// NewPredictionEvent builds an event; only the base name of imagePath is kept.
func NewPredictionEvent(id uint, class string, index int, confidence float64, imagePath string, at time.Time) PredictionEvent {
	return PredictionEvent{
		PredictionID: id,
		Class:        class,
		ClassIndex:   index,
		Confidence:   confidence,
		Image:        filepath.Base(imagePath),
		Timestamp:    at.UTC(),
	}
}
