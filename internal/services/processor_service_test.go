package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-upload-service/internal/models"
	"weather-upload-service/internal/repository"
	"weather-upload-service/pkg/logging"
	"weather-upload-service/pkg/metrics"
)

// --- in-memory fakes ---

type fakeUploadRepo struct {
	rows      map[string]*models.Upload
	nextID    int64
	createErr error
	findErr   error
	saveErr   error
	saveCalls int
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{rows: make(map[string]*models.Upload)}
}

func uploadKey(filename string, userID int64) string {
	return fmt.Sprintf("%s:%d", filename, userID)
}

func (f *fakeUploadRepo) FindByFilenameAndUser(_ context.Context, filename string, userID int64) (*models.Upload, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if u, ok := f.rows[uploadKey(filename, userID)]; ok {
		return u, nil
	}
	return nil, &repository.NotFoundError{Resource: "upload", ID: uploadKey(filename, userID)}
}

func (f *fakeUploadRepo) Create(_ context.Context, upload *models.Upload) error {
	if f.createErr != nil {
		return f.createErr
	}
	key := uploadKey(upload.Filename, upload.UserID)
	if _, ok := f.rows[key]; ok {
		return &repository.DuplicateError{Resource: "upload", Constraint: "uploads_filename_user_key"}
	}
	f.nextID++
	upload.ID = f.nextID
	f.rows[key] = upload
	return nil
}

func (f *fakeUploadRepo) Save(_ context.Context, upload *models.Upload) error {
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	return nil
}

func (f *fakeUploadRepo) List(_ context.Context, _ repository.UploadFilter) ([]*models.Upload, int, error) {
	var out []*models.Upload
	for _, u := range f.rows {
		out = append(out, u)
	}
	return out, len(out), nil
}

type fakeWeatherRepo struct {
	rows      map[string]*models.WeatherData
	nextID    int64
	findErr   error
	createErr error
}

func newFakeWeatherRepo() *fakeWeatherRepo {
	return &fakeWeatherRepo{rows: make(map[string]*models.WeatherData)}
}

func naturalKey(lat, lon float64, date time.Time) string {
	return fmt.Sprintf("%v:%v:%s", lat, lon, date.Format("2006-01-02"))
}

func (f *fakeWeatherRepo) FindByNaturalKey(_ context.Context, lat, lon float64, date time.Time) (*models.WeatherData, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if d, ok := f.rows[naturalKey(lat, lon, date)]; ok {
		return d, nil
	}
	return nil, &repository.NotFoundError{Resource: "weather_data", ID: naturalKey(lat, lon, date)}
}

func (f *fakeWeatherRepo) Create(_ context.Context, data *models.WeatherData) error {
	if f.createErr != nil {
		return f.createErr
	}
	key := naturalKey(data.Lat, data.Lon, data.WeatherDate)
	if _, ok := f.rows[key]; ok {
		return &repository.DuplicateError{Resource: "weather_data", Constraint: "weather_data_natural_key"}
	}
	f.nextID++
	data.ID = f.nextID
	f.rows[key] = data
	return nil
}

func (f *fakeWeatherRepo) Save(_ context.Context, data *models.WeatherData) error {
	for key, existing := range f.rows {
		if existing.ID == data.ID {
			f.rows[key] = data
			return nil
		}
	}
	return &repository.NotFoundError{Resource: "weather_data", ID: fmt.Sprintf("%d", data.ID)}
}

func (f *fakeWeatherRepo) List(_ context.Context, _ repository.WeatherFilter) ([]*models.WeatherData, int, error) {
	var out []*models.WeatherData
	for _, d := range f.rows {
		out = append(out, d)
	}
	return out, len(out), nil
}

// --- helpers ---

func testLogger() *logging.Logger {
	l := logging.New("test", "test", logging.ErrorLevel)
	l.SetOutput(io.Discard)
	return l
}

func testUser() *models.User {
	return &models.User{ID: 7, Name: "Test User", Email: "test@example.com"}
}

func rawRecord(t *testing.T, fields map[string]interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return data
}

func validFields() map[string]interface{} {
	return map[string]interface{}{
		"city":         "Helsinki",
		"lat":          60.17,
		"lon":          24.94,
		"temp":         5.5,
		"humidity":     70.0,
		"weather_date": "2023-06-15T12:30:00Z",
	}
}

func newProcessor(uploads *fakeUploadRepo, weather *fakeWeatherRepo) (*ProcessorService, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2023, 6, 20, 10, 0, 0, 0, time.UTC))
	svc := NewProcessorService(uploads, weather, testLogger(), metrics.NewCollectorForTesting(), clock)
	return svc, clock
}

// --- tests ---

func TestProcess_SingleValidRecord(t *testing.T) {
	uploads := newFakeUploadRepo()
	weather := newFakeWeatherRepo()
	svc, clock := newProcessor(uploads, weather)

	batch := models.RawBatch{rawRecord(t, validFields())}
	ok, err := svc.Process(context.Background(), batch, "file.json", testUser())
	require.NoError(t, err)
	assert.True(t, ok)

	upload, err := uploads.FindByFilenameAndUser(context.Background(), "file.json", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, upload.TotalRecords)
	require.NotNil(t, upload.ValidRecords)
	require.NotNil(t, upload.InvalidRecords)
	assert.Equal(t, 1, *upload.ValidRecords)
	assert.Equal(t, 0, *upload.InvalidRecords)
	assert.Equal(t, clock.Now().UTC(), upload.UploadedAt)

	require.Len(t, weather.rows, 1)
	for _, row := range weather.rows {
		assert.Equal(t, "Helsinki", row.City)
		assert.Equal(t, 60.17, row.Lat)
		assert.Equal(t, 24.94, row.Lon)
		assert.Equal(t, 5.5, row.Temp)
		assert.Equal(t, 70.0, row.Humidity)
		assert.Equal(t, upload.ID, row.UploadID)
		// Time-of-day is normalized away when stored.
		assert.Equal(t, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), row.WeatherDate)
	}
}

func TestProcess_DuplicateUpload(t *testing.T) {
	uploads := newFakeUploadRepo()
	weather := newFakeWeatherRepo()
	svc, _ := newProcessor(uploads, weather)

	batch := models.RawBatch{rawRecord(t, validFields())}
	ok, err := svc.Process(context.Background(), batch, "dup.json", testUser())
	require.NoError(t, err)
	require.True(t, ok)
	savesAfterFirst := uploads.saveCalls

	ok, err = svc.Process(context.Background(), batch, "dup.json", testUser())
	require.NoError(t, err)
	assert.False(t, ok)

	// No rows touched on the duplicate path.
	assert.Len(t, weather.rows, 1)
	assert.Len(t, uploads.rows, 1)
	assert.Equal(t, savesAfterFirst, uploads.saveCalls)
}

func TestProcess_ConcurrentDuplicateRace(t *testing.T) {
	uploads := newFakeUploadRepo()
	weather := newFakeWeatherRepo()
	svc, _ := newProcessor(uploads, weather)

	// The dedupe lookup misses but the insert trips the unique index, as
	// when two consumers race on the same notification.
	uploads.createErr = &repository.DuplicateError{Resource: "upload", Constraint: "uploads_filename_user_key"}

	ok, err := svc.Process(context.Background(), models.RawBatch{rawRecord(t, validFields())}, "race.json", testUser())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, weather.rows)
}

func TestProcess_UpdatesExistingNaturalKey(t *testing.T) {
	uploads := newFakeUploadRepo()
	weather := newFakeWeatherRepo()
	svc, _ := newProcessor(uploads, weather)

	date := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	existing := &models.WeatherData{
		UploadID:    1,
		City:        "Helsinki",
		Lat:         60.17,
		Lon:         24.94,
		Temp:        2.0,
		Humidity:    55.0,
		WeatherDate: date,
	}
	require.NoError(t, weather.Create(context.Background(), existing))

	fields := validFields()
	fields["city"] = "Espoo"
	fields["humidity"] = 99.0

	ok, err := svc.Process(context.Background(), models.RawBatch{rawRecord(t, fields)}, "update.json", testUser())
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, weather.rows, 1)
	row := weather.rows[naturalKey(60.17, 24.94, date)]
	require.NotNil(t, row)
	assert.Equal(t, 5.5, row.Temp)
	// Only temp is reconciled; city and humidity keep their stored values.
	assert.Equal(t, "Helsinki", row.City)
	assert.Equal(t, 55.0, row.Humidity)

	upload, err := uploads.FindByFilenameAndUser(context.Background(), "update.json", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, *upload.ValidRecords)
}

func TestProcess_InvalidRecordCounted(t *testing.T) {
	uploads := newFakeUploadRepo()
	weather := newFakeWeatherRepo()
	svc, _ := newProcessor(uploads, weather)

	fields := validFields()
	fields["temp"] = "not-a-number"

	ok, err := svc.Process(context.Background(), models.RawBatch{rawRecord(t, fields)}, "invalid.json", testUser())
	require.NoError(t, err)
	assert.True(t, ok)

	upload, err := uploads.FindByFilenameAndUser(context.Background(), "invalid.json", 7)
	require.NoError(t, err)
	assert.Equal(t, 0, *upload.ValidRecords)
	assert.Equal(t, 1, *upload.InvalidRecords)
	assert.Empty(t, weather.rows)
}

func TestProcess_MixedBatchCounts(t *testing.T) {
	uploads := newFakeUploadRepo()
	weather := newFakeWeatherRepo()
	svc, _ := newProcessor(uploads, weather)

	bad := validFields()
	bad["temp"] = "invalid"

	batch := models.RawBatch{
		rawRecord(t, validFields()),
		rawRecord(t, bad),
	}

	ok, err := svc.Process(context.Background(), batch, "mixed.json", testUser())
	require.NoError(t, err)
	assert.True(t, ok)

	upload, err := uploads.FindByFilenameAndUser(context.Background(), "mixed.json", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, upload.TotalRecords)
	assert.Equal(t, 1, *upload.ValidRecords)
	assert.Equal(t, 1, *upload.InvalidRecords)
	assert.Len(t, weather.rows, 1)
}

func TestProcess_EmptyBatchStillRecorded(t *testing.T) {
	uploads := newFakeUploadRepo()
	weather := newFakeWeatherRepo()
	svc, _ := newProcessor(uploads, weather)

	ok, err := svc.Process(context.Background(), models.RawBatch{}, "empty.json", testUser())
	require.NoError(t, err)
	assert.True(t, ok)

	upload, err := uploads.FindByFilenameAndUser(context.Background(), "empty.json", 7)
	require.NoError(t, err)
	assert.Equal(t, 0, upload.TotalRecords)
	assert.Equal(t, 0, *upload.ValidRecords)
	assert.Equal(t, 0, *upload.InvalidRecords)
	assert.Empty(t, weather.rows)
}

func TestProcess_LastRecordWinsWithinBatch(t *testing.T) {
	uploads := newFakeUploadRepo()
	weather := newFakeWeatherRepo()
	svc, _ := newProcessor(uploads, weather)

	first := validFields()
	second := validFields()
	second["temp"] = 9.9

	ok, err := svc.Process(context.Background(), models.RawBatch{
		rawRecord(t, first),
		rawRecord(t, second),
	}, "repeat.json", testUser())
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, weather.rows, 1)
	for _, row := range weather.rows {
		assert.Equal(t, 9.9, row.Temp)
	}

	upload, err := uploads.FindByFilenameAndUser(context.Background(), "repeat.json", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, *upload.ValidRecords)
}

func TestProcess_InfrastructureErrorPropagates(t *testing.T) {
	uploads := newFakeUploadRepo()
	weather := newFakeWeatherRepo()
	svc, _ := newProcessor(uploads, weather)

	weather.findErr = errors.New("connection refused")

	_, err := svc.Process(context.Background(), models.RawBatch{rawRecord(t, validFields())}, "broken.json", testUser())
	require.Error(t, err)

	// The ledger row was created before the failure and its counts were
	// never finalized. A re-run is rejected as a duplicate.
	upload, err := uploads.FindByFilenameAndUser(context.Background(), "broken.json", 7)
	require.NoError(t, err)
	assert.Nil(t, upload.ValidRecords)
	assert.Nil(t, upload.InvalidRecords)

	weather.findErr = nil
	ok, err := svc.Process(context.Background(), models.RawBatch{rawRecord(t, validFields())}, "broken.json", testUser())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcess_AllInvalidBatchStillAccepted(t *testing.T) {
	uploads := newFakeUploadRepo()
	weather := newFakeWeatherRepo()
	svc, _ := newProcessor(uploads, weather)

	bad := validFields()
	delete(bad, "city")
	worse := validFields()
	worse["weather_date"] = "yesterday"

	ok, err := svc.Process(context.Background(), models.RawBatch{
		rawRecord(t, bad),
		rawRecord(t, worse),
	}, "all-bad.json", testUser())
	require.NoError(t, err)
	assert.True(t, ok)

	upload, err := uploads.FindByFilenameAndUser(context.Background(), "all-bad.json", 7)
	require.NoError(t, err)
	assert.Equal(t, 0, *upload.ValidRecords)
	assert.Equal(t, 2, *upload.InvalidRecords)
	assert.Empty(t, weather.rows)
}
