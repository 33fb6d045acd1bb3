package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"weather-upload-service/internal/models"
	"weather-upload-service/pkg/database"
	"weather-upload-service/pkg/logging"
	"weather-upload-service/pkg/metrics"
)

// WeatherRepository provides data access for weather observations.
// FindByNaturalKey and the Create/Save pair are the pipeline's contract;
// List backs the read API.
type WeatherRepository interface {
	FindByNaturalKey(ctx context.Context, lat, lon float64, date time.Time) (*models.WeatherData, error)
	Create(ctx context.Context, data *models.WeatherData) error
	Save(ctx context.Context, data *models.WeatherData) error
	List(ctx context.Context, filter WeatherFilter) ([]*models.WeatherData, int, error)
}

// WeatherFilter defines filters for querying observations
type WeatherFilter struct {
	UploadID  *int64
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// weatherRepository implements WeatherRepository on Postgres
type weatherRepository struct {
	db      *database.PostgresDB
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository
func NewWeatherRepository(db *database.PostgresDB, logger *logging.Logger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// FindByNaturalKey retrieves the observation identified by
// (lat, lon, weather_date). Callers must pass a date-only value; see
// models.DateOnly.
func (r *weatherRepository) FindByNaturalKey(ctx context.Context, lat, lon float64, date time.Time) (*models.WeatherData, error) {
	query := `
		SELECT id, upload_id, city, lat, lon, temp, humidity, weather_date
		FROM weather_data
		WHERE lat = $1 AND lon = $2 AND weather_date = $3
	`

	var data models.WeatherData
	err := r.db.GetContext(ctx, "find_weather_by_key", &data, query, lat, lon, date)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "weather_data",
			ID:       fmt.Sprintf("%v:%v:%s", lat, lon, date.Format("2006-01-02")),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find observation: %w", err)
	}

	return &data, nil
}

// Create inserts a new observation and assigns its identifier. A unique
// violation here means two writers raced on the same natural key; it is
// surfaced as a DuplicateError for the caller to treat as fatal.
func (r *weatherRepository) Create(ctx context.Context, data *models.WeatherData) error {
	query := `
		INSERT INTO weather_data (upload_id, city, lat, lon, temp, humidity, weather_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		data.UploadID,
		data.City,
		data.Lat,
		data.Lon,
		data.Temp,
		data.Humidity,
		data.WeatherDate,
	).Scan(&data.ID)

	if err != nil {
		r.metrics.RecordDBError("weather_insert_error")
		return fmt.Errorf("failed to create observation: %w", classifyUniqueViolation(err, "weather_data"))
	}

	r.logger.Debug(ctx, "[REPO_CREATE_WEATHER] Observation created", logging.Fields{
		"id":   data.ID,
		"city": data.City,
	})

	return nil
}

// Save persists the mutable fields of an existing observation. Temp is the
// only field reconciled on re-upload; city and humidity keep their original
// values deliberately (flagged for product review, see DESIGN.md).
func (r *weatherRepository) Save(ctx context.Context, data *models.WeatherData) error {
	query := `
		UPDATE weather_data
		SET temp = $1
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, "update_weather", query, data.Temp, data.ID)
	if err != nil {
		return fmt.Errorf("failed to update observation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return &NotFoundError{Resource: "weather_data", ID: fmt.Sprintf("%d", data.ID)}
	}

	return nil
}

// List retrieves observations with filtering and pagination
func (r *weatherRepository) List(ctx context.Context, filter WeatherFilter) ([]*models.WeatherData, int, error) {
	query := `
		SELECT id, upload_id, city, lat, lon, temp, humidity, weather_date
		FROM weather_data
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.UploadID != nil {
		query += fmt.Sprintf(" AND upload_id = $%d", argNum)
		args = append(args, *filter.UploadID)
		argNum++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND weather_date >= $%d", argNum)
		args = append(args, *filter.StartDate)
		argNum++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND weather_date <= $%d", argNum)
		args = append(args, *filter.EndDate)
		argNum++
	}

	// Get total count
	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_weather", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count observations: %w", err)
	}

	// Add ordering and pagination
	query += " ORDER BY weather_date DESC, id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var observations []*models.WeatherData
	err = r.db.SelectContext(ctx, "list_weather", &observations, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list observations: %w", err)
	}

	return observations, totalCount, nil
}
