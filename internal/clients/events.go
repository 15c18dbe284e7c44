/**
 * Outcome Event Publisher
 *
 * Publishes one JSON event per routed image on a Redis channel and keeps a
 * per-disposition counter hash next to it, so dashboards can follow a
 * capture run live.
 */

package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
	"github.com/adverant/nexus/screenscan-worker/internal/processor"
)

// EventPublisherConfig holds publisher configuration
type EventPublisherConfig struct {
	RedisURL string
	Channel  string
}

// Event is the payload published for every outcome
type Event struct {
	Event        string `json:"event"`
	ImagePath    string `json:"imagePath"`
	Disposition  string `json:"disposition"`
	ArtifactPath string `json:"artifactPath,omitempty"`
	Matches      []int  `json:"matches,omitempty"`
	TextLength   int    `json:"textLength"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	DurationMs   int64  `json:"durationMs"`
	Timestamp    string `json:"timestamp"`

	ErrorDetails map[string]interface{} `json:"errorDetails,omitempty"`
}

// NewEvent builds the event for outcome
func NewEvent(outcome processor.Outcome) Event {
	ts := outcome.ProcessedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	ev := Event{
		Event:        fmt.Sprintf("image:%s", outcome.Disposition),
		ImagePath:    outcome.ImagePath,
		Disposition:  string(outcome.Disposition),
		ArtifactPath: outcome.ArtifactPath,
		Matches:      outcome.Matches,
		TextLength:   outcome.TextLength,
		ErrorCode:    outcome.ErrorCode(),
		ErrorMessage: outcome.ErrorMessage(),
		DurationMs:   outcome.Duration.Milliseconds(),
		Timestamp:    ts.UTC().Format(time.RFC3339),
	}

	var perr *apperrors.ProcessingError
	if errors.As(outcome.Err, &perr) {
		ev.ErrorDetails = perr.ToMap()
	}
	return ev
}

// EventPublisher publishes outcome events; it implements processor.Observer
type EventPublisher struct {
	client  *redis.Client
	channel string
}

// NewEventPublisher creates a new publisher and checks Redis is reachable
func NewEventPublisher(ctx context.Context, cfg *EventPublisherConfig) (*EventPublisher, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "screenscan:events"
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &EventPublisher{client: client, channel: cfg.Channel}, nil
}

// Channel returns the pub/sub channel events are published on
func (p *EventPublisher) Channel() string {
	return p.channel
}

func (p *EventPublisher) statsKey() string {
	return p.channel + ":stats"
}

// Observe publishes the event and bumps the disposition counter atomically
func (p *EventPublisher) Observe(ctx context.Context, outcome processor.Outcome) error {
	data, err := json.Marshal(NewEvent(outcome))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, data)
		pipe.HIncrBy(ctx, p.statsKey(), string(outcome.Disposition), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// GetStats returns the per-disposition counters
func (p *EventPublisher) GetStats(ctx context.Context) (map[string]int64, error) {
	raw, err := p.client.HGetAll(ctx, p.statsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	stats := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid counter %s=%q: %w", k, v, err)
		}
		stats[k] = n
	}

	return stats, nil
}

// Close closes the Redis connection
func (p *EventPublisher) Close() error {
	return p.client.Close()
}
