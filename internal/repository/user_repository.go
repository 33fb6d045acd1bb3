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

// UserRepository resolves upload owners. Create exists only for the demo
// user bootstrap; everything else is read-only.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db      *database.PostgresDB
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.PostgresDB, logger *logging.Logger, metricsCollector *metrics.Collector) UserRepository {
	return &userRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetByID retrieves a user by identifier
func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at, modified_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := r.db.GetContext(ctx, "get_user", &user, query, id)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "user", ID: fmt.Sprintf("%d", id)}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// FindByEmail retrieves a user by email address
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at, modified_at
		FROM users
		WHERE email = $1
	`

	var user models.User
	err := r.db.GetContext(ctx, "find_user_by_email", &user, query, email)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "user", ID: email}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

// Create inserts a new user and assigns its identifier
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		r.metrics.RecordDBError("user_insert_error")
		return fmt.Errorf("failed to create user: %w", classifyUniqueViolation(err, "user"))
	}

	r.logger.Info(ctx, "[REPO_CREATE_USER] User created", logging.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	})

	return nil
}
