package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateOnly(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"strips time of day",
			time.Date(2023, 6, 15, 23, 59, 59, 999, time.UTC),
			time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			"midnight unchanged",
			time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			"converts to utc before truncating",
			time.Date(2023, 6, 15, 23, 0, 0, 0, time.FixedZone("UTC+3", 3*60*60)),
			time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateOnly(tt.in))
		})
	}
}

func TestValidationError(t *testing.T) {
	withField := &ValidationError{Field: "temp", Message: "is required"}
	assert.Equal(t, "temp: is required", withField.Error())
	assert.False(t, withField.IsTransient())

	withoutField := &ValidationError{Message: "malformed record"}
	assert.Equal(t, "malformed record", withoutField.Error())
}
