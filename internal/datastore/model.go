package datastore

import (
	"time"
)

// UnknownPatientName is stored when no patient name is submitted. It never
// overwrites the name of a patient reused by email.
const UnknownPatientName = "Unknown"

// Patient is a person whose scan was classified.
type Patient struct {
	ID          uint         `gorm:"primaryKey"`
	Name        string       `gorm:"size:100;not null"`
	Email       *string      `gorm:"size:120;uniqueIndex"` // nil when not supplied
	Phone       string       `gorm:"size:20"`
	CreatedDate time.Time    `gorm:"not null;autoCreateTime"`
	Predictions []Prediction `gorm:"foreignKey:PatientID"`
}

// TableName pins the table name
func (Patient) TableName() string { return "patients" }

// Doctor is a clinician record. Doctors are not linked to predictions.
type Doctor struct {
	ID             uint      `gorm:"primaryKey"`
	Name           string    `gorm:"size:100;not null"`
	Email          string    `gorm:"size:120;not null;uniqueIndex"`
	Specialization string    `gorm:"size:100"`
	CreatedDate    time.Time `gorm:"not null;autoCreateTime"`
}

// TableName pins the table name
func (Doctor) TableName() string { return "doctors" }

// Prediction is one classification of one uploaded image.
type Prediction struct {
	ID             uint      `gorm:"primaryKey"`
	PatientID      uint      `gorm:"not null;index"`
	Patient        Patient   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
	ImagePath      string    `gorm:"size:255;not null"`
	PredictedClass int       `gorm:"not null"`
	Confidence     float64   `gorm:"not null"`
	PredictionDate time.Time `gorm:"not null;index;autoCreateTime"`
	Notes          string    `gorm:"type:text"`
}

// TableName pins the table name
func (Prediction) TableName() string { return "predictions" }

// PatientName returns the linked patient's name, or "" when not loaded.
func (p *Prediction) PatientName() string {
	return p.Patient.Name
}

// DashboardStats aggregates what the dashboard shows.
type DashboardStats struct {
	TotalPredictions int64
	TotalPatients    int64
	ClassCounts      []int64 // indexed by class
	Recent           []Prediction
}
