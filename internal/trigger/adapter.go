package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"weather-upload-service/internal/models"
	"weather-upload-service/internal/repository"
	"weather-upload-service/internal/services"
	"weather-upload-service/internal/storage"
	"weather-upload-service/pkg/logging"
)

// fileNamePattern is the upload naming convention: <uuid>_<userId>.json.
// The first group is checked again with uuid.Parse; the regexp alone accepts
// some non-uuid hex strings.
var fileNamePattern = regexp.MustCompile(`^([a-f0-9\-]+)_(\d+)\.json$`)

// Processor is the pipeline as the adapter needs it.
type Processor interface {
	Process(ctx context.Context, batch models.RawBatch, fileName string, user *models.User) (bool, error)
}

// Outcome says what the adapter did with one notification. Rejections are
// normal operation, not errors; failed marks infrastructure errors whose
// event should be retried.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Adapter turns a storage-change notification into a pipeline invocation:
// it resolves the owning user from the key, fetches and parses the object,
// runs the pipeline, and archives the object on success.
type Adapter struct {
	processor Processor
	users     repository.UserRepository
	userSvc   *services.UserService
	store     storage.ObjectStore
	logger    *logging.Logger

	demoMode bool
	demoUser services.DemoUser
}

// NewAdapter creates a trigger adapter. When demoMode is set, every incoming
// file is attributed to the configured demo user regardless of its name.
func NewAdapter(
	processor Processor,
	users repository.UserRepository,
	userSvc *services.UserService,
	store storage.ObjectStore,
	logger *logging.Logger,
	demoMode bool,
	demoUser services.DemoUser,
) *Adapter {
	return &Adapter{
		processor: processor,
		users:     users,
		userSvc:   userSvc,
		store:     store,
		logger:    logger,
		demoMode:  demoMode,
		demoUser:  demoUser,
	}
}

// HandleObjectCreated processes one object-created notification for key.
// Precondition failures (bad filename, unknown user, non-array payload)
// reject the notification without invoking the pipeline; only
// infrastructure failures return an error.
func (a *Adapter) HandleObjectCreated(ctx context.Context, key string) (Outcome, error) {
	fileName := path.Base(key)

	user, ok, err := a.resolveUser(ctx, fileName)
	if err != nil {
		return OutcomeFailed, err
	}
	if !ok {
		return OutcomeRejected, nil
	}

	a.logger.Info(ctx, "[TRIGGER_EVENT] Storage event received", logging.Fields{
		"key":      key,
		"user_id":  user.ID,
		"filename": fileName,
	})

	body, err := a.store.Fetch(ctx, key)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("fetch failed for %s: %w", key, err)
	}

	var batch models.RawBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		a.logger.Error(ctx, "[TRIGGER_REJECT] Invalid JSON: expected an array", logging.Fields{
			"key": key,
		}, err)
		return OutcomeRejected, nil
	}
	if batch == nil {
		// A JSON null unmarshals into a slice without error, leaving it nil.
		// It is not an array and must not reach the pipeline: an empty batch
		// would create a ledger row that blocks the filename forever.
		a.logger.Warn(ctx, "[TRIGGER_REJECT] Payload is not a JSON array", logging.Fields{
			"key": key,
		})
		return OutcomeRejected, nil
	}

	processed, err := a.processor.Process(ctx, batch, fileName, user)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("processing failed for %s: %w", key, err)
	}

	if !processed {
		a.logger.Info(ctx, "[TRIGGER_SKIP] Skipping archive: file already processed", logging.Fields{
			"filename": fileName,
		})
		return OutcomeDuplicate, nil
	}

	if err := a.store.Archive(ctx, key); err != nil {
		return OutcomeProcessed, fmt.Errorf("archive failed for %s: %w", key, err)
	}
	return OutcomeProcessed, nil
}

// resolveUser maps a filename to its owning user. In demo mode the
// configured demo user is used (and created on first sight); otherwise the
// user id is taken from the filename. The bool result is false when the
// notification should be rejected without error.
func (a *Adapter) resolveUser(ctx context.Context, fileName string) (*models.User, bool, error) {
	if a.demoMode {
		a.logger.Info(ctx, "[TRIGGER_DEMO] Demo mode enabled, using or creating demo user", logging.Fields{
			"filename": fileName,
		})
		user, err := a.userSvc.EnsureDemoUser(ctx, a.demoUser)
		if err != nil {
			return nil, false, fmt.Errorf("demo user bootstrap failed: %w", err)
		}
		return user, true, nil
	}

	match := fileNamePattern.FindStringSubmatch(fileName)
	if match == nil {
		a.logger.Warn(ctx, "[TRIGGER_REJECT] Invalid filename format (expected <uuid>_<userId>.json)", logging.Fields{
			"filename": fileName,
		})
		return nil, false, nil
	}
	if _, err := uuid.Parse(match[1]); err != nil {
		a.logger.Warn(ctx, "[TRIGGER_REJECT] Filename prefix is not a uuid", logging.Fields{
			"filename": fileName,
		})
		return nil, false, nil
	}

	userID, err := strconv.ParseInt(match[2], 10, 64)
	if err != nil {
		a.logger.Warn(ctx, "[TRIGGER_REJECT] Filename user id out of range", logging.Fields{
			"filename": fileName,
		})
		return nil, false, nil
	}

	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			a.logger.Error(ctx, "[TRIGGER_REJECT] User not found", logging.Fields{
				"user_id": userID,
			}, err)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("user lookup failed: %w", err)
	}

	return user, true, nil
}
