// Package metrics provides Prometheus collectors for each component of braintumor-go.
package metrics

// Histogram bucket parameters shared by the collectors.
const (
	// BucketStart1ms starts exponential buckets at one millisecond
	BucketStart1ms = 0.001
	// BucketFactor2 doubles each bucket
	BucketFactor2 = 2
	// BucketCount15 covers 1ms to ~16s
	BucketCount15 = 15
	// BucketCount12 covers 1ms to ~2s
	BucketCount12 = 12
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Datastore operation label values.
const (
	OpSavePrediction   = "save_prediction"
	OpGetPrediction    = "get_prediction"
	OpListPredictions  = "list_predictions"
	OpCountPredictions = "count_predictions"
	OpCountPatients    = "count_patients"
	OpCountByClass     = "count_by_class"
	OpRecent           = "recent_predictions"
	OpSaveDoctor       = "save_doctor"
	OpListDoctors      = "list_doctors"
	OpTransaction      = "transaction"
)

// Classifier stage label values.
const (
	StagePreprocess = "preprocess"
	StageInference  = "inference"
)
