package services

import (
	"context"

	"weather-upload-service/internal/models"
	"weather-upload-service/internal/repository"
	"weather-upload-service/pkg/logging"
)

// UploadService exposes the upload ledger to the read API.
type UploadService struct {
	uploads repository.UploadRepository
	logger  *logging.Logger
}

// NewUploadService creates a new upload service
func NewUploadService(uploads repository.UploadRepository, logger *logging.Logger) *UploadService {
	return &UploadService{uploads: uploads, logger: logger}
}

// ListUploads retrieves ledger rows with filtering
func (s *UploadService) ListUploads(ctx context.Context, filter repository.UploadFilter) ([]*models.Upload, int, error) {
	return s.uploads.List(ctx, filter)
}
