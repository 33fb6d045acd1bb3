package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"weather-upload-service/internal/models"
)

var validate = validator.New()

// isoLayouts are the accepted ISO-8601 shapes for weather_date, tried in
// order. Date-only values are common in hand-built upload files.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ValidateRecord checks one untyped batch entry against the record schema
// and returns the typed record. All five data fields are required and must
// carry the right JSON type; weather_date must parse as ISO-8601.
//
// The returned error is always a *models.ValidationError. Infrastructure
// can never fail here: a bad record is counted, not raised.
func ValidateRecord(raw json.RawMessage) (*models.WeatherRecord, error) {
	var rec models.WeatherRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, decodeError(err)
	}

	if err := validate.Struct(&rec); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok || len(verrs) == 0 {
			return nil, &models.ValidationError{Message: err.Error()}
		}
		fe := verrs[0]
		return nil, &models.ValidationError{
			Field:   jsonField(fe.StructField()),
			Message: "is required",
		}
	}

	date, err := parseISODate(rec.WeatherDate)
	if err != nil {
		return nil, &models.ValidationError{
			Field:   "weather_date",
			Message: fmt.Sprintf("must be a valid ISO-8601 date, got %q", rec.WeatherDate),
		}
	}
	rec.Date = date

	return &rec, nil
}

// decodeError converts json decoding failures into validation errors,
// naming the offending field when the decoder reports one.
func decodeError(err error) *models.ValidationError {
	if typeErr, ok := err.(*json.UnmarshalTypeError); ok {
		return &models.ValidationError{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("must be %s, got %s", typeErr.Type, typeErr.Value),
		}
	}
	return &models.ValidationError{Message: fmt.Sprintf("malformed record: %v", err)}
}

func parseISODate(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

// jsonField maps a struct field name to its wire name.
func jsonField(structField string) string {
	field, ok := fieldNames[structField]
	if !ok {
		return strings.ToLower(structField)
	}
	return field
}

var fieldNames = map[string]string{
	"City":        "city",
	"Lat":         "lat",
	"Lon":         "lon",
	"Temp":        "temp",
	"Humidity":    "humidity",
	"WeatherDate": "weather_date",
}
