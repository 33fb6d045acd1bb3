package services

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"weather-upload-service/internal/models"
	"weather-upload-service/internal/repository"
	"weather-upload-service/internal/validation"
	"weather-upload-service/pkg/logging"
	"weather-upload-service/pkg/metrics"
)

// ProcessorService runs the ingestion pipeline for one uploaded file:
// duplicate-file detection, per-record validation, natural-key
// reconciliation, and ledger statistics.
type ProcessorService struct {
	uploads repository.UploadRepository
	weather repository.WeatherRepository
	logger  *logging.Logger
	metrics *metrics.Collector
	clock   clockwork.Clock
}

// NewProcessorService creates a new processor service
func NewProcessorService(
	uploads repository.UploadRepository,
	weather repository.WeatherRepository,
	logger *logging.Logger,
	metricsCollector *metrics.Collector,
	clock clockwork.Clock,
) *ProcessorService {
	return &ProcessorService{
		uploads: uploads,
		weather: weather,
		logger:  logger,
		metrics: metricsCollector,
		clock:   clock,
	}
}

// Process ingests one batch of raw records for (fileName, user).
//
// Returns (false, nil) when the file was already processed for this user;
// no rows are touched on that path. Returns (true, nil) when the batch was
// accepted, even if every record failed validation. Only infrastructure
// failures return a non-nil error, and partial progress is not rolled back:
// a mid-batch failure leaves saved observations and a ledger row with NULL
// counts behind, and a re-run of the same file is rejected as a duplicate.
// Records are processed strictly in input order; repeated natural keys
// within one batch resolve last-one-wins.
func (s *ProcessorService) Process(ctx context.Context, batch models.RawBatch, fileName string, user *models.User) (bool, error) {
	start := s.clock.Now()
	total := len(batch)
	valid := 0
	invalid := 0

	s.logger.Info(ctx, "[PROCESS_START] Processing weather data", logging.Fields{
		"filename": fileName,
		"user_id":  user.ID,
		"total":    total,
	})
	s.metrics.BatchSize.Observe(float64(total))

	existing, err := s.uploads.FindByFilenameAndUser(ctx, fileName, user.ID)
	if err != nil && !repository.IsNotFound(err) {
		return false, fmt.Errorf("upload lookup failed: %w", err)
	}
	if existing != nil {
		s.logger.Warn(ctx, "[PROCESS_DUPLICATE] Duplicate upload detected, skip processing", logging.Fields{
			"filename": fileName,
			"user_id":  user.ID,
		})
		s.metrics.DuplicateUploadsTotal.Inc()
		return false, nil
	}

	upload := &models.Upload{
		UserID:       user.ID,
		Filename:     fileName,
		UploadedAt:   s.clock.Now().UTC(),
		TotalRecords: total,
	}
	if err := s.uploads.Create(ctx, upload); err != nil {
		// Two invocations for the same file can both pass the lookup above;
		// the unique index on (filename, user_id) makes the second insert
		// fail, which is the duplicate outcome, not an infrastructure error.
		if repository.IsDuplicate(err) {
			s.logger.Warn(ctx, "[PROCESS_DUPLICATE] Concurrent duplicate upload, skip processing", logging.Fields{
				"filename": fileName,
				"user_id":  user.ID,
			})
			s.metrics.DuplicateUploadsTotal.Inc()
			return false, nil
		}
		return false, fmt.Errorf("upload create failed: %w", err)
	}

	for i, raw := range batch {
		record, err := validation.ValidateRecord(raw)
		if err != nil {
			invalid++
			s.logger.Warn(ctx, "[PROCESS_INVALID] Validation failed for record", logging.Fields{
				"index":  i,
				"reason": err.Error(),
			})
			s.metrics.RecordInvalidRecord(invalidReason(err))
			continue
		}

		if err := s.reconcile(ctx, upload, record, i); err != nil {
			return false, err
		}
		valid++
		s.metrics.RecordsValidTotal.Inc()

		if i%10 == 0 {
			s.logger.Info(ctx, "[PROCESS_PROGRESS] Weather data progress", logging.Fields{
				"processed": i + 1,
				"total":     total,
			})
		}
	}

	upload.ValidRecords = &valid
	upload.InvalidRecords = &invalid
	if err := s.uploads.Save(ctx, upload); err != nil {
		return false, fmt.Errorf("upload finalize failed: %w", err)
	}

	s.metrics.UploadsProcessedTotal.Inc()
	s.metrics.BatchDuration.Observe(s.clock.Since(start).Seconds())

	s.logger.Info(ctx, "[PROCESS_COMPLETE] Weather data processing completed", logging.Fields{
		"filename": fileName,
		"valid":    valid,
		"invalid":  invalid,
	})
	return true, nil
}

// reconcile writes one validated record: update-in-place when the natural
// key already exists, insert otherwise.
func (s *ProcessorService) reconcile(ctx context.Context, upload *models.Upload, record *models.WeatherRecord, index int) error {
	date := models.DateOnly(record.Date)

	existing, err := s.weather.FindByNaturalKey(ctx, *record.Lat, *record.Lon, date)
	if err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("observation lookup failed: %w", err)
	}

	if existing != nil {
		// Only temp is reconciled against an existing row; city and humidity
		// from the newer record are dropped. Deliberate, matches the upload
		// contract as shipped. Flagged for product review before changing.
		existing.Temp = *record.Temp
		if err := s.weather.Save(ctx, existing); err != nil {
			return fmt.Errorf("observation update failed: %w", err)
		}
		s.logger.Debug(ctx, "[PROCESS_UPDATE] Updated existing weather entry", logging.Fields{
			"index": index,
			"city":  record.City,
		})
		return nil
	}

	data := &models.WeatherData{
		UploadID:    upload.ID,
		City:        record.City,
		Lat:         *record.Lat,
		Lon:         *record.Lon,
		Temp:        *record.Temp,
		Humidity:    *record.Humidity,
		WeatherDate: date,
	}
	if err := s.weather.Create(ctx, data); err != nil {
		return fmt.Errorf("observation insert failed: %w", err)
	}
	s.logger.Debug(ctx, "[PROCESS_INSERT] Inserted new weather entry", logging.Fields{
		"index": index,
		"city":  record.City,
	})
	return nil
}

// invalidReason picks a bounded metric label from a validation error.
func invalidReason(err error) string {
	if verr, ok := err.(*models.ValidationError); ok && verr.Field != "" {
		return verr.Field
	}
	return "malformed"
}
