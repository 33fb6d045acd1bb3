package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// User owns uploads. This service only reads users; account management
// lives elsewhere.
type User struct {
	ID           int64      `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	ModifiedAt   *time.Time `json:"modified_at,omitempty" db:"modified_at"`
}

// Upload is the ledger row for one ingested file: one row per
// (filename, user) pair, carrying the batch statistics.
// Valid/invalid counts stay NULL until the batch finishes, so a row with
// NULL counts marks a batch that was interrupted mid-processing.
type Upload struct {
	ID             int64     `json:"id" db:"id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	Filename       string    `json:"filename" db:"filename"`
	UploadedAt     time.Time `json:"uploaded_at" db:"uploaded_at"`
	TotalRecords   int       `json:"total_records" db:"total_records"`
	ValidRecords   *int      `json:"valid_records,omitempty" db:"valid_records"`
	InvalidRecords *int      `json:"invalid_records,omitempty" db:"invalid_records"`
}

// WeatherData is a single persisted observation. The natural key
// (lat, lon, weather_date) is unique across the table; UploadID references
// the batch that first inserted the row.
type WeatherData struct {
	ID          int64     `json:"id" db:"id"`
	UploadID    int64     `json:"upload_id" db:"upload_id"`
	City        string    `json:"city" db:"city"`
	Lat         float64   `json:"lat" db:"lat"`
	Lon         float64   `json:"lon" db:"lon"`
	Temp        float64   `json:"temp" db:"temp"`
	Humidity    float64   `json:"humidity" db:"humidity"`
	WeatherDate time.Time `json:"weather_date" db:"weather_date"`
}

// WeatherRecord is one entry of an uploaded batch as it looks after schema
// validation. Pointer fields distinguish "absent" from zero during decoding;
// validation guarantees they are all non-nil on success.
type WeatherRecord struct {
	City        string   `json:"city" validate:"required"`
	Lat         *float64 `json:"lat" validate:"required"`
	Lon         *float64 `json:"lon" validate:"required"`
	Temp        *float64 `json:"temp" validate:"required"`
	Humidity    *float64 `json:"humidity" validate:"required"`
	WeatherDate string   `json:"weather_date" validate:"required"`

	// Date is WeatherDate parsed as ISO-8601, populated by validation.
	Date time.Time `json:"-" validate:"-"`
}

// RawBatch is the untrusted input to the pipeline: the elements of the JSON
// array contained in one uploaded file, in file order.
type RawBatch []json.RawMessage

// DateOnly strips the time-of-day component, keeping the calendar date in
// UTC. Natural-key comparison and the weather_date column operate on dates,
// not instants.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidationError marks a record that failed schema validation. It is
// recovered per record and never crosses the pipeline boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
