package datastore

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mriscan/braintumor-go/internal/conf"
	"github.com/mriscan/braintumor-go/internal/errors"
	"github.com/mriscan/braintumor-go/internal/observability/metrics"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	ds, err := New(&conf.Settings{Database: conf.DatabaseSettings{URL: "sqlite://:memory:"}})
	require.NoError(t, err)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	store, ok := ds.(*SQLiteStore)
	require.True(t, ok)
	return store
}

func strPtr(s string) *string { return &s }

func savePrediction(t *testing.T, ds Interface, name string, class int, confidence float64) *Prediction {
	t.Helper()
	pred := &Prediction{
		ImagePath:      fmt.Sprintf("static/uploads/%s.png", strings.ToLower(name)),
		PredictedClass: class,
		Confidence:     confidence,
	}
	require.NoError(t, ds.SavePrediction(context.Background(), &Patient{Name: name}, pred))
	return pred
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	ds, err := New(&conf.Settings{Database: conf.DatabaseSettings{URL: "mysql://u:p@db/mri"}})
	require.NoError(t, err)
	assert.IsType(t, &MySQLStore{}, ds)

	ds, err = New(&conf.Settings{Database: conf.DatabaseSettings{URL: "sqlite:///x.db"}})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, ds)

	_, err = New(&conf.Settings{Database: conf.DatabaseSettings{URL: "oracle://x"}})
	require.Error(t, err)
}

func TestSQLiteFileDatabaseCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/nested/brain.db"
	ds, err := New(&conf.Settings{Database: conf.DatabaseSettings{URL: "sqlite:///" + path}})
	require.NoError(t, err)
	require.NoError(t, ds.Open())
	defer func() { require.NoError(t, ds.Close()) }()

	require.NoError(t, ds.Ping(context.Background()))
	assert.FileExists(t, path)
}

func TestSavePredictionAssignsIDs(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	patient := &Patient{Name: "Jane Doe", Email: strPtr("jane@example.com"), Phone: "555-0100"}
	pred := &Prediction{ImagePath: "static/uploads/20240101_120000_scan.png", PredictedClass: 2, Confidence: 0.97}

	require.NoError(t, ds.SavePrediction(ctx, patient, pred))
	assert.NotZero(t, patient.ID)
	assert.NotZero(t, pred.ID)
	assert.Equal(t, patient.ID, pred.PatientID)
	assert.Equal(t, "Jane Doe", pred.PatientName())
	assert.False(t, pred.PredictionDate.IsZero())

	got, err := ds.GetPrediction(ctx, pred.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.Patient.Name)
	require.NotNil(t, got.Patient.Email)
	assert.Equal(t, "jane@example.com", *got.Patient.Email)
	assert.Equal(t, 2, got.PredictedClass)
	assert.InDelta(t, 0.97, got.Confidence, 1e-9)
}

func TestSavePredictionEmailLessPatientsCoexist(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	for i := range 3 {
		p := &Patient{Name: "Unknown", Email: strPtr("  ")}
		require.NoError(t, ds.SavePrediction(ctx, p, &Prediction{ImagePath: fmt.Sprintf("a%d.png", i)}))
		assert.Nil(t, p.Email)
	}

	n, err := ds.CountPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSavePredictionReusesPatientByEmail(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	first := &Patient{Name: "Jane Doe", Email: strPtr("jane@example.com")}
	require.NoError(t, ds.SavePrediction(ctx, first, &Prediction{ImagePath: "one.png"}))

	second := &Patient{Name: "J. Doe", Email: strPtr("jane@example.com"), Phone: "555"}
	pred := &Prediction{ImagePath: "two.png", PredictedClass: 1, Confidence: 0.5}
	require.NoError(t, ds.SavePrediction(ctx, second, pred))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ID, pred.PatientID)
	assert.Equal(t, "J. Doe", second.Name)
	assert.Equal(t, "555", second.Phone)

	stored, err := ds.GetPrediction(ctx, pred.ID)
	require.NoError(t, err)
	assert.Equal(t, "J. Doe", stored.Patient.Name, "latest submitted name is stored")
	assert.Equal(t, "555", stored.Patient.Phone)

	n, err := ds.CountPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	total, err := ds.CountPredictions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestSavePredictionKeepsStoredDetailsWhenOmitted(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	first := &Patient{Name: "Jane Doe", Email: strPtr("jane@example.com"), Phone: "555"}
	require.NoError(t, ds.SavePrediction(ctx, first, &Prediction{ImagePath: "one.png"}))

	second := &Patient{Name: UnknownPatientName, Email: strPtr("jane@example.com")}
	pred := &Prediction{ImagePath: "two.png"}
	require.NoError(t, ds.SavePrediction(ctx, second, pred))

	stored, err := ds.GetPrediction(ctx, pred.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.PatientID)
	assert.Equal(t, "Jane Doe", stored.Patient.Name)
	assert.Equal(t, "555", stored.Patient.Phone)
}

// failPatientInserts makes the next n patient inserts fail with a duplicate key.
func failPatientInserts(t *testing.T, ds *SQLiteStore, n int) *int {
	t.Helper()
	attempts := 0
	err := ds.DB.Callback().Create().Before("gorm:create").Register("test:duplicate_patient", func(db *gorm.DB) {
		if db.Statement.Schema == nil || db.Statement.Schema.Table != "patients" {
			return
		}
		attempts++
		if attempts <= n {
			_ = db.AddError(gorm.ErrDuplicatedKey)
		}
	})
	require.NoError(t, err)
	return &attempts
}

func TestSavePredictionRetriesConcurrentEmailInsert(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()
	attempts := failPatientInserts(t, ds, 1)

	patient := &Patient{Name: "Jane Doe", Email: strPtr("jane@example.com")}
	pred := &Prediction{ImagePath: "one.png"}
	require.NoError(t, ds.SavePrediction(ctx, patient, pred))

	assert.Equal(t, 2, *attempts)
	assert.NotZero(t, patient.ID)
	assert.Equal(t, patient.ID, pred.PatientID)

	n, err := ds.CountPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSavePredictionRetriesOnlyOnce(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()
	attempts := failPatientInserts(t, ds, 10)

	err := ds.SavePrediction(ctx, &Patient{Name: "Jane Doe", Email: strPtr("jane@example.com")}, &Prediction{ImagePath: "one.png"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
	assert.Equal(t, 2, *attempts)

	n, err := ds.CountPredictions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSavePredictionValidation(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		patient *Patient
		pred    *Prediction
	}{
		{"nil patient", nil, &Prediction{ImagePath: "a.png"}},
		{"blank name", &Patient{Name: "  "}, &Prediction{ImagePath: "a.png"}},
		{"long name", &Patient{Name: strings.Repeat("n", 101)}, &Prediction{ImagePath: "a.png"}},
		{"long email", &Patient{Name: "x", Email: strPtr(strings.Repeat("e", 121))}, &Prediction{ImagePath: "a.png"}},
		{"long phone", &Patient{Name: "x", Phone: strings.Repeat("1", 21)}, &Prediction{ImagePath: "a.png"}},
		{"missing image path", &Patient{Name: "x"}, &Prediction{}},
		{"long image path", &Patient{Name: "x"}, &Prediction{ImagePath: strings.Repeat("p", 256)}},
		{"negative class", &Patient{Name: "x"}, &Prediction{ImagePath: "a.png", PredictedClass: -1}},
	}

	for _, tt := range tests {
		err := ds.SavePrediction(ctx, tt.patient, tt.pred)
		require.Error(t, err, tt.name)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation), tt.name)
	}

	n, err := ds.CountPatients(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSavePredictionIsAtomic(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	// fail every prediction insert after the patient row is written
	err := ds.DB.Callback().Create().After("gorm:create").Register("test:fail_predictions", func(db *gorm.DB) {
		if db.Statement.Table == "predictions" {
			_ = db.AddError(errors.NewStd("disk full"))
		}
	})
	require.NoError(t, err)

	patient := &Patient{Name: "Rollback", Email: strPtr("rb@example.com")}
	err = ds.SavePrediction(ctx, patient, &Prediction{ImagePath: "x.png"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))

	n, err := ds.CountPatients(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "patient insert must be rolled back")
}

func TestGetPredictionNotFound(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	_, err := ds.GetPrediction(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPredictionsNewestFirst(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	dates := []time.Time{base, base.Add(time.Hour), base.Add(time.Hour)}
	ids := make([]uint, len(dates))
	for i, d := range dates {
		pred := &Prediction{ImagePath: fmt.Sprintf("%d.png", i), PredictionDate: d}
		require.NoError(t, ds.SavePrediction(ctx, &Patient{Name: fmt.Sprintf("P%d", i)}, pred))
		ids[i] = pred.ID
	}

	list, err := ds.ListPredictions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	// equal dates fall back to id descending
	assert.Equal(t, []uint{ids[2], ids[1], ids[0]}, []uint{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "P2", list[0].PatientName())

	recent, err := ds.RecentPredictions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[2], recent[0].ID)

	none, err := ds.RecentPredictions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEmptyStoreQueries(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	list, err := ds.ListPredictions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	stats, err := ds.Dashboard(ctx, 4, 10)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPredictions)
	assert.Zero(t, stats.TotalPatients)
	assert.Equal(t, []int64{0, 0, 0, 0}, stats.ClassCounts)
	assert.Empty(t, stats.Recent)
}

func TestDashboardCountsSumToTotal(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	classes := []int{0, 0, 1, 2, 2, 2, 3, 1, 0, 3, 2, 2}
	for i, c := range classes {
		savePrediction(t, ds, fmt.Sprintf("patient%d", i), c, 0.9)
	}

	stats, err := ds.Dashboard(ctx, 4, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(len(classes)), stats.TotalPredictions)
	assert.Equal(t, int64(len(classes)), stats.TotalPatients)
	assert.Equal(t, []int64{3, 2, 5, 2}, stats.ClassCounts)
	assert.Len(t, stats.Recent, 10)

	var sum int64
	for _, c := range stats.ClassCounts {
		sum += c
	}
	assert.Equal(t, stats.TotalPredictions, sum)
}

func TestDoctors(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.SaveDoctor(ctx, &Doctor{Name: "Dr. Young", Email: "young@clinic.org", Specialization: "Neurology"}))
	require.NoError(t, ds.SaveDoctor(ctx, &Doctor{Name: "Dr. Adams", Email: "adams@clinic.org"}))

	err := ds.SaveDoctor(ctx, &Doctor{Name: "Dr. Copy", Email: "young@clinic.org"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	err = ds.SaveDoctor(ctx, &Doctor{Name: "No Mail"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	doctors, err := ds.ListDoctors(ctx)
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, "Dr. Adams", doctors[0].Name)
	assert.Equal(t, "Neurology", doctors[1].Specialization)
}

func TestOperationsRecordMetrics(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)
	ctx := context.Background()

	m, err := metrics.NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	ds.SetMetrics(m)

	savePrediction(t, ds, "Metric", 1, 0.5)
	_, _ = ds.GetPrediction(ctx, 12345)

	assert.Equal(t, 1, testutil.CollectAndCount(m, "datastore_db_transactions_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m, "datastore_db_operation_errors_total"))
}

func TestPingClosedStore(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	require.NoError(t, ds.Ping(context.Background()))
	require.NoError(t, ds.Close())
	require.Error(t, ds.Ping(context.Background()))
	require.NoError(t, ds.Close(), "closing twice is a no-op")
}
