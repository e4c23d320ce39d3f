// Package datastore persists patients, doctors and predictions through gorm.
package datastore

import (
	"context"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/logger"
	"github.com/mriscan/braintumor-go/internal/observability/metrics"
)

// Column limits shared by validation and the gorm tags in model.go.
const (
	maxNameLength      = 100
	maxEmailLength     = 120
	maxPhoneLength     = 20
	maxImagePathLength = 255
)

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error
	Ping(ctx context.Context) error

	// SavePrediction writes the patient and the prediction in one transaction.
	// A patient whose e-mail already exists is reused.
	SavePrediction(ctx context.Context, patient *Patient, prediction *Prediction) error
	GetPrediction(ctx context.Context, id uint) (*Prediction, error)
	ListPredictions(ctx context.Context) ([]Prediction, error)
	RecentPredictions(ctx context.Context, limit int) ([]Prediction, error)
	CountPredictions(ctx context.Context) (int64, error)
	CountPatients(ctx context.Context) (int64, error)
	CountByClass(ctx context.Context, numClasses int) ([]int64, error)
	Dashboard(ctx context.Context, numClasses, recent int) (*DashboardStats, error)

	SaveDoctor(ctx context.Context, doctor *Doctor) error
	ListDoctors(ctx context.Context) ([]Doctor, error)

	SetMetrics(m *metrics.DatastoreMetrics)
}

// DataStore implements the queries shared by all backends.
type DataStore struct {
	DB       *gorm.DB
	target   Target
	settings *conf.DatabaseSettings
	metrics  *metrics.DatastoreMetrics
}

// New creates a datastore for the configured DATABASE_URL. Open must be called before use.
func New(settings *conf.Settings) (Interface, error) {
	target, err := ParseURL(settings.Database.URL)
	if err != nil {
		return nil, err
	}

	base := DataStore{target: target, settings: &settings.Database}
	switch target.Driver {
	case DriverMySQL:
		return &MySQLStore{DataStore: base}, nil
	default:
		return &SQLiteStore{DataStore: base}, nil
	}
}

// SetMetrics attaches datastore metrics. A nil value disables recording.
func (ds *DataStore) SetMetrics(m *metrics.DatastoreMetrics) {
	ds.metrics = m
}

// gormConfig returns the shared gorm configuration.
func (ds *DataStore) gormConfig() *gorm.Config {
	slow := 200 * time.Millisecond
	if ds.settings != nil && ds.settings.SlowQueryThreshold > 0 {
		slow = ds.settings.SlowQueryThreshold
	}
	return &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(GetLogger(), slow),
		TranslateError: true,
	}
}

// applyPool sets connection pool limits from settings.
func (ds *DataStore) applyPool() error {
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "get_sql_db", errors.PriorityHigh)
	}
	if ds.settings == nil {
		return nil
	}
	if ds.settings.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(ds.settings.MaxOpenConns)
	}
	if ds.settings.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(ds.settings.MaxIdleConns)
	}
	if ds.settings.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(ds.settings.ConnMaxLifetime)
	}
	return nil
}

// performAutoMigration creates or updates the three tables.
func performAutoMigration(db *gorm.DB, dbType, connInfo string) error {
	start := time.Now()
	if err := db.AutoMigrate(&Patient{}, &Doctor{}, &Prediction{}); err != nil {
		return dbError(err, "auto_migrate", errors.PriorityCritical,
			"db_type", dbType)
	}
	GetLogger().Info("database schema ready",
		logger.String("db_type", dbType),
		logger.String("target", connInfo),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// closeDB closes the underlying connection pool.
func (ds *DataStore) closeDB() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", errors.PriorityMedium)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", errors.PriorityMedium)
	}
	ds.DB = nil
	return nil
}

// Ping verifies the connection is alive.
func (ds *DataStore) Ping(ctx context.Context) error {
	if ds.DB == nil {
		return dbError(errors.NewStd("database not open"), "ping", errors.PriorityHigh)
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "ping", errors.PriorityHigh)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dbError(err, "ping", errors.PriorityHigh)
	}
	return nil
}

// observe records the duration and outcome of a datastore operation.
func (ds *DataStore) observe(op, table string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		ds.metrics.RecordDbOperationError(op, table, errorType(err))
	}
	ds.metrics.RecordDbOperation(op, table, status, time.Since(start))
}

func errorType(err error) string {
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		return enhanced.GetCategory()
	}
	return string(errors.CategoryDatabase)
}

func validatePatient(p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return validationError("patient name is required", "name", p.Name)
	}
	if len(p.Name) > maxNameLength {
		return validationError("patient name too long", "name", len(p.Name))
	}
	if p.Email != nil {
		email := strings.TrimSpace(*p.Email)
		if email == "" {
			p.Email = nil
		} else {
			if len(email) > maxEmailLength {
				return validationError("patient email too long", "email", len(email))
			}
			p.Email = &email
		}
	}
	if len(p.Phone) > maxPhoneLength {
		return validationError("patient phone too long", "phone", len(p.Phone))
	}
	return nil
}

func validatePrediction(p *Prediction) error {
	if p.ImagePath == "" {
		return validationError("image path is required", "image_path", p.ImagePath)
	}
	if len(p.ImagePath) > maxImagePathLength {
		return validationError("image path too long", "image_path", len(p.ImagePath))
	}
	if p.PredictedClass < 0 {
		return validationError("predicted class must not be negative", "predicted_class", p.PredictedClass)
	}
	if math.IsNaN(p.Confidence) || math.IsInf(p.Confidence, 0) {
		return validationError("confidence must be a finite number", "confidence", p.Confidence)
	}
	return nil
}

// SavePrediction stores the patient and the prediction atomically.
// On success both records carry their assigned IDs and prediction.Patient is populated.
func (ds *DataStore) SavePrediction(ctx context.Context, patient *Patient, prediction *Prediction) (err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpSavePrediction, "predictions", start, err) }()

	if patient == nil || prediction == nil {
		return validationError("patient and prediction are required", "record", "nil")
	}
	if err := validatePatient(patient); err != nil {
		return err
	}
	if err := validatePrediction(prediction); err != nil {
		return err
	}

	// a concurrent request may insert the same new email first; the retry reuses its row
	submitted := *patient
	for attempt := 0; ; attempt++ {
		err = ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return savePredictionTx(tx, patient, prediction)
		})
		if err == nil || attempt > 0 || !errors.IsCategory(err, errors.CategoryConflict) {
			break
		}
		ds.metrics.RecordTransaction("rolled_back")
		GetLogger().Debug("patient email inserted concurrently, retrying")
		*patient = submitted
		prediction.ID = 0
	}

	if err != nil {
		ds.metrics.RecordTransaction("rolled_back")
		return err
	}
	ds.metrics.RecordTransaction("committed")
	prediction.Patient = *patient

	GetLogger().Debug("prediction saved",
		logger.Uint64("prediction_id", uint64(prediction.ID)),
		logger.Uint64("patient_id", uint64(patient.ID)),
		logger.Int("predicted_class", prediction.PredictedClass))
	return nil
}

func savePredictionTx(tx *gorm.DB, patient *Patient, prediction *Prediction) error {
	if patient.Email != nil {
		var existing Patient
		res := tx.Where("email = ?", *patient.Email).Limit(1).Find(&existing)
		if res.Error != nil {
			return dbError(res.Error, "find_patient_by_email", errors.PriorityHigh)
		}
		if res.RowsAffected > 0 {
			if err := mergePatient(tx, &existing, patient); err != nil {
				return err
			}
			*patient = existing
		}
	}

	if patient.ID == 0 {
		if err := tx.Omit(clause.Associations).Create(patient).Error; err != nil {
			if isUniqueViolation(err) {
				return conflictError(err, "create_patient", "email")
			}
			return dbError(err, "create_patient", errors.PriorityHigh,
				"table", "patients")
		}
	}

	prediction.PatientID = patient.ID
	if err := tx.Omit(clause.Associations).Create(prediction).Error; err != nil {
		return dbError(err, "create_prediction", errors.PriorityHigh,
			"table", "predictions", "patient_id", patient.ID)
	}
	return nil
}

// mergePatient applies the submitted name and phone to an existing patient
// row. Empty values and UnknownPatientName leave the stored value in place.
func mergePatient(tx *gorm.DB, existing, submitted *Patient) error {
	updates := map[string]any{}
	if submitted.Name != "" && submitted.Name != UnknownPatientName && submitted.Name != existing.Name {
		updates["name"] = submitted.Name
	}
	if submitted.Phone != "" && submitted.Phone != existing.Phone {
		updates["phone"] = submitted.Phone
	}
	if len(updates) == 0 {
		return nil
	}

	if err := tx.Model(&Patient{ID: existing.ID}).Updates(updates).Error; err != nil {
		return dbError(err, "update_patient", errors.PriorityHigh,
			"table", "patients", "patient_id", existing.ID)
	}
	if name, ok := updates["name"].(string); ok {
		existing.Name = name
	}
	if phone, ok := updates["phone"].(string); ok {
		existing.Phone = phone
	}
	return nil
}

// GetPrediction returns a prediction with its patient.
func (ds *DataStore) GetPrediction(ctx context.Context, id uint) (_ *Prediction, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpGetPrediction, "predictions", start, err) }()

	var p Prediction
	if err := ds.DB.WithContext(ctx).Preload("Patient").First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("prediction", id)
		}
		return nil, dbError(err, "get_prediction", errors.PriorityMedium, "prediction_id", id)
	}
	return &p, nil
}

// newestFirst orders predictions by date, id breaking ties.
func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("prediction_date DESC").Order("id DESC")
}

// ListPredictions returns every prediction, newest first, with patients loaded.
func (ds *DataStore) ListPredictions(ctx context.Context) (_ []Prediction, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpListPredictions, "predictions", start, err) }()

	var out []Prediction
	if err := ds.DB.WithContext(ctx).Scopes(newestFirst).Preload("Patient").Find(&out).Error; err != nil {
		return nil, dbError(err, "list_predictions", errors.PriorityMedium)
	}
	return out, nil
}

// RecentPredictions returns at most limit predictions, newest first.
func (ds *DataStore) RecentPredictions(ctx context.Context, limit int) (_ []Prediction, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpRecent, "predictions", start, err) }()

	if limit <= 0 {
		return []Prediction{}, nil
	}
	var out []Prediction
	if err := ds.DB.WithContext(ctx).Scopes(newestFirst).Preload("Patient").Limit(limit).Find(&out).Error; err != nil {
		return nil, dbError(err, "recent_predictions", errors.PriorityMedium, "limit", limit)
	}
	return out, nil
}

// CountPredictions returns the number of predictions.
func (ds *DataStore) CountPredictions(ctx context.Context) (_ int64, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpCountPredictions, "predictions", start, err) }()

	var n int64
	if err := ds.DB.WithContext(ctx).Model(&Prediction{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count_predictions", errors.PriorityLow)
	}
	return n, nil
}

// CountPatients returns the number of patients.
func (ds *DataStore) CountPatients(ctx context.Context) (_ int64, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpCountPatients, "patients", start, err) }()

	var n int64
	if err := ds.DB.WithContext(ctx).Model(&Patient{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count_patients", errors.PriorityLow)
	}
	return n, nil
}

// CountByClass returns one count per class index in [0, numClasses).
func (ds *DataStore) CountByClass(ctx context.Context, numClasses int) (_ []int64, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpCountByClass, "predictions", start, err) }()

	counts := make([]int64, max(numClasses, 0))
	for i := range counts {
		if err := ds.DB.WithContext(ctx).Model(&Prediction{}).
			Where("predicted_class = ?", i).
			Count(&counts[i]).Error; err != nil {
			return nil, dbError(err, "count_by_class", errors.PriorityLow, "class", i)
		}
	}
	return counts, nil
}

// Dashboard gathers totals, per-class counts and the most recent predictions.
func (ds *DataStore) Dashboard(ctx context.Context, numClasses, recent int) (*DashboardStats, error) {
	var (
		stats DashboardStats
		err   error
	)
	if stats.TotalPredictions, err = ds.CountPredictions(ctx); err != nil {
		return nil, err
	}
	if stats.TotalPatients, err = ds.CountPatients(ctx); err != nil {
		return nil, err
	}
	if stats.ClassCounts, err = ds.CountByClass(ctx, numClasses); err != nil {
		return nil, err
	}
	if stats.Recent, err = ds.RecentPredictions(ctx, recent); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SaveDoctor inserts a doctor. Name and e-mail are required; e-mail is unique.
func (ds *DataStore) SaveDoctor(ctx context.Context, doctor *Doctor) (err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpSaveDoctor, "doctors", start, err) }()

	if doctor == nil {
		return validationError("doctor is required", "record", "nil")
	}
	doctor.Name = strings.TrimSpace(doctor.Name)
	doctor.Email = strings.TrimSpace(doctor.Email)
	switch {
	case doctor.Name == "":
		return validationError("doctor name is required", "name", "")
	case len(doctor.Name) > maxNameLength:
		return validationError("doctor name too long", "name", len(doctor.Name))
	case doctor.Email == "":
		return validationError("doctor email is required", "email", "")
	case len(doctor.Email) > maxEmailLength:
		return validationError("doctor email too long", "email", len(doctor.Email))
	case len(doctor.Specialization) > maxNameLength:
		return validationError("specialization too long", "specialization", len(doctor.Specialization))
	}

	if err := ds.DB.WithContext(ctx).Create(doctor).Error; err != nil {
		if isUniqueViolation(err) {
			return conflictError(err, "save_doctor", "email")
		}
		return dbError(err, "save_doctor", errors.PriorityMedium, "table", "doctors")
	}
	return nil
}

// ListDoctors returns all doctors ordered by name.
func (ds *DataStore) ListDoctors(ctx context.Context) (_ []Doctor, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpListDoctors, "doctors", start, err) }()

	var out []Doctor
	if err := ds.DB.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, dbError(err, "list_doctors", errors.PriorityLow)
	}
	return out, nil
}
