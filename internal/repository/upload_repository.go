package repository

import (
	"context"
	"database/sql"
	"fmt"

	"weather-upload-service/internal/models"
	"weather-upload-service/pkg/database"
	"weather-upload-service/pkg/logging"
	"weather-upload-service/pkg/metrics"
)

// UploadRepository is the upload ledger: one row per (filename, user)
// ingestion attempt with its outcome statistics.
type UploadRepository interface {
	FindByFilenameAndUser(ctx context.Context, filename string, userID int64) (*models.Upload, error)
	Create(ctx context.Context, upload *models.Upload) error
	Save(ctx context.Context, upload *models.Upload) error
	List(ctx context.Context, filter UploadFilter) ([]*models.Upload, int, error)
}

// UploadFilter defines filters for querying the ledger
type UploadFilter struct {
	UserID *int64
	Limit  int
	Offset int
}

// uploadRepository implements UploadRepository on Postgres
type uploadRepository struct {
	db      *database.PostgresDB
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewUploadRepository creates a new upload ledger repository
func NewUploadRepository(db *database.PostgresDB, logger *logging.Logger, metricsCollector *metrics.Collector) UploadRepository {
	return &uploadRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// FindByFilenameAndUser retrieves the ledger row for a (filename, user)
// pair. A hit means the file was already processed.
func (r *uploadRepository) FindByFilenameAndUser(ctx context.Context, filename string, userID int64) (*models.Upload, error) {
	query := `
		SELECT id, user_id, filename, uploaded_at, total_records, valid_records, invalid_records
		FROM uploads
		WHERE filename = $1 AND user_id = $2
	`

	var upload models.Upload
	err := r.db.GetContext(ctx, "find_upload", &upload, query, filename, userID)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "upload",
			ID:       fmt.Sprintf("%s:%d", filename, userID),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find upload: %w", err)
	}

	return &upload, nil
}

// Create inserts a new ledger row with counts unset. The composite unique
// index on (filename, user_id) turns a concurrent duplicate into a
// DuplicateError instead of a silent second row.
func (r *uploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO uploads (user_id, filename, uploaded_at, total_records)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		upload.UserID,
		upload.Filename,
		upload.UploadedAt,
		upload.TotalRecords,
	).Scan(&upload.ID)

	if err != nil {
		r.metrics.RecordDBError("upload_insert_error")
		return fmt.Errorf("failed to create upload: %w", classifyUniqueViolation(err, "upload"))
	}

	r.logger.Debug(ctx, "[REPO_CREATE_UPLOAD] Upload created", logging.Fields{
		"upload_id": upload.ID,
		"filename":  upload.Filename,
		"user_id":   upload.UserID,
	})

	return nil
}

// Save persists the final batch statistics. Filename, user and uploaded_at
// are immutable after Create.
func (r *uploadRepository) Save(ctx context.Context, upload *models.Upload) error {
	query := `
		UPDATE uploads
		SET valid_records = $1, invalid_records = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, "update_upload", query,
		upload.ValidRecords,
		upload.InvalidRecords,
		upload.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return &NotFoundError{Resource: "upload", ID: fmt.Sprintf("%d", upload.ID)}
	}

	return nil
}

// List retrieves ledger rows with filtering and pagination
func (r *uploadRepository) List(ctx context.Context, filter UploadFilter) ([]*models.Upload, int, error) {
	query := `
		SELECT id, user_id, filename, uploaded_at, total_records, valid_records, invalid_records
		FROM uploads
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argNum)
		args = append(args, *filter.UserID)
		argNum++
	}

	// Get total count
	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_uploads", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count uploads: %w", err)
	}

	// Add ordering and pagination
	query += " ORDER BY uploaded_at DESC, id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var uploads []*models.Upload
	err = r.db.SelectContext(ctx, "list_uploads", &uploads, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list uploads: %w", err)
	}

	return uploads, totalCount, nil
}
