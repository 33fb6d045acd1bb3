package trigger

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"weather-upload-service/internal/storage"
	"weather-upload-service/pkg/logging"
	"weather-upload-service/pkg/metrics"
)

// notificationEvent is the S3/MinIO bucket-notification envelope, reduced
// to the fields the consumer reads.
type notificationEvent struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ConsumerConfig holds Kafka consumer settings.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads bucket notifications from Kafka and drives the trigger
// adapter. Offsets are committed only after an event is fully handled, so a
// crash redelivers it; redelivery is safe because the pipeline dedupes at
// the file level.
type Consumer struct {
	reader  *kafka.Reader
	adapter *Adapter
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewConsumer creates a Kafka consumer for bucket notifications.
func NewConsumer(cfg ConsumerConfig, adapter *Adapter, logger *logging.Logger, metricsCollector *metrics.Collector) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})

	return &Consumer{
		reader:  reader,
		adapter: adapter,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Run consumes notifications until the context is cancelled. Offsets for
// events that failed on infrastructure are left uncommitted so a restart
// redelivers them; redelivery of a partially processed file resolves as a
// duplicate and is committed then.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "[CONSUMER_START] Listening for bucket notifications", logging.Fields{
		"topic": c.reader.Config().Topic,
	})

	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info(ctx, "[CONSUMER_STOP] Consumer stopping", logging.Fields{
					"reason": ctx.Err().Error(),
				})
				return nil
			}
			c.logger.Error(ctx, "[CONSUMER_FETCH_ERROR] Failed to fetch message", logging.Fields{}, err)
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = 500 * time.Millisecond

		if err := c.handleMessage(ctx, msg.Value); err != nil {
			c.logger.Error(ctx, "[CONSUMER_EVENT_ERROR] Processing failed, offset left uncommitted", logging.Fields{
				"offset": msg.Offset,
			}, err)
			c.metrics.RecordNotification("error")
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn(ctx, "[CONSUMER_COMMIT_ERROR] Failed to commit offset", logging.Fields{
				"offset": msg.Offset,
				"error":  err.Error(),
			})
		}
	}
}

// handleMessage dispatches every object-created record of one notification
// to the adapter. Malformed events and precondition rejections are logged
// and dropped; they must not stall the partition. Only infrastructure
// failures are returned.
func (c *Consumer) handleMessage(ctx context.Context, value []byte) error {
	var event notificationEvent
	if err := json.Unmarshal(value, &event); err != nil {
		c.logger.Warn(ctx, "[CONSUMER_BAD_EVENT] Undecodable notification", logging.Fields{
			"error": err.Error(),
		})
		c.metrics.RecordNotification("malformed")
		return nil
	}

	for _, record := range event.Records {
		if !strings.HasPrefix(record.EventName, "s3:ObjectCreated") {
			continue
		}

		key := decodeKey(record.S3.Object.Key)
		if storage.IsProcessedKey(key) {
			continue
		}

		outcome, err := c.adapter.HandleObjectCreated(ctx, key)
		if err != nil {
			return err
		}
		c.metrics.RecordNotification(string(outcome))
	}
	return nil
}

// Close shuts the underlying reader down.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// decodeKey reverses the URL-encoding bucket notifications apply to object
// keys, including '+' for space.
func decodeKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
