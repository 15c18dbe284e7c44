/**
 * Face Verification Hand-off
 *
 * Enqueues a face:verify task for every cropped artifact. Verification
 * itself runs in a separate service that consumes the queue.
 */

package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/screenscan-worker/internal/processor"
)

// TypeFaceVerify is the asynq task type consumed by the verification service
const TypeFaceVerify = "face:verify"

// FaceVerifyPayload is the task payload
type FaceVerifyPayload struct {
	ArtifactPath string `json:"artifactPath"`
	SourcePath   string `json:"sourcePath"`
	Matches      []int  `json:"matches"`
	CroppedAt    string `json:"croppedAt"`
}

// enqueuer is the subset of *asynq.Client used here
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// HandoffConfig holds hand-off configuration
type HandoffConfig struct {
	RedisURL  string
	QueueName string
	MaxRetry  int
	Retention time.Duration
}

// Handoff enqueues verification tasks; it implements processor.Observer
type Handoff struct {
	client enqueuer
	config *HandoffConfig
}

// NewHandoff creates a new hand-off producer
func NewHandoff(cfg *HandoffConfig) (*Handoff, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return newHandoff(asynq.NewClient(redisOpt), cfg), nil
}

func newHandoff(client enqueuer, cfg *HandoffConfig) *Handoff {
	if cfg.QueueName == "" {
		cfg.QueueName = "face-verify"
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Handoff{client: client, config: cfg}
}

// NewFaceVerifyTask builds the task for a cropped outcome
func NewFaceVerifyTask(outcome processor.Outcome, opts ...asynq.Option) (*asynq.Task, error) {
	if outcome.ArtifactPath == "" {
		return nil, fmt.Errorf("outcome for %s has no artifact", outcome.ImagePath)
	}

	payload, err := json.Marshal(FaceVerifyPayload{
		ArtifactPath: outcome.ArtifactPath,
		SourcePath:   outcome.ImagePath,
		Matches:      outcome.Matches,
		CroppedAt:    outcome.ProcessedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return asynq.NewTask(TypeFaceVerify, payload, opts...), nil
}

// Observe enqueues cropped outcomes and ignores everything else
func (h *Handoff) Observe(ctx context.Context, outcome processor.Outcome) error {
	if outcome.Disposition != processor.DispositionCropped {
		return nil
	}

	task, err := NewFaceVerifyTask(outcome,
		asynq.Queue(h.config.QueueName),
		asynq.MaxRetry(h.config.MaxRetry),
		asynq.Retention(h.config.Retention))
	if err != nil {
		return err
	}

	if _, err := h.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s for %s: %w", TypeFaceVerify, outcome.ArtifactPath, err)
	}

	return nil
}

// Close closes the asynq client
func (h *Handoff) Close() error {
	return h.client.Close()
}
