package spotify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"setlist/internal/core"
)

// ItemAdder issues a single add-items request.
type ItemAdder interface {
	AddItems(ctx context.Context, playlistID string, uris []string) error
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// BatchError reports the batch that failed and how many URIs landed before it.
type BatchError struct {
	// Batch is the 1-based number of the failing batch.
	Batch     int
	Submitted int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed after %d tracks were added: %v", e.Batch, e.Submitted, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

type SubmitterOption func(*Submitter)

func WithSleeper(sleep Sleeper) SubmitterOption {
	return func(s *Submitter) {
		s.sleep = sleep
	}
}

// WithRateLimitHook is called each time a batch is answered with 429.
func WithRateLimitHook(fn func(op string)) SubmitterOption {
	return func(s *Submitter) {
		s.onRateLimited = fn
	}
}

// Submitter uploads URIs to a playlist in order, in batches, waiting out rate limits.
type Submitter struct {
	config        *core.SubmitConfig
	adder         ItemAdder
	logger        *zap.Logger
	sleep         Sleeper
	onRateLimited func(op string)
}

func NewSubmitter(config *core.SubmitConfig, adder ItemAdder, logger *zap.Logger, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		config: config,
		adder:  adder,
		logger: logger.Named("submitter"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Submitter) batchSize() int {
	size := s.config.BatchSize
	if size <= 0 || size > core.MaxBatchSize {
		return core.MaxBatchSize
	}
	return size
}

// Submit adds uris to the playlist and returns how many were added. A rate-limited batch
// is retried with identical content; any other failure stops the upload with a *BatchError.
func (s *Submitter) Submit(ctx context.Context, playlistID string, uris []string) (int, error) {
	if playlistID == "" {
		return 0, &core.ValidationError{Field: "playlist", Reason: "missing playlist id"}
	}

	size := s.batchSize()
	total := (len(uris) + size - 1) / size
	submitted := 0
	var waited time.Duration

	for start, batch := 0, 1; start < len(uris); batch++ {
		end := min(start+size, len(uris))
		chunk := uris[start:end]

		for retries := 0; ; retries++ {
			err := s.adder.AddItems(ctx, playlistID, chunk)
			if err == nil {
				break
			}

			var limited *core.RateLimitedError
			if !errors.As(err, &limited) {
				return submitted, &BatchError{Batch: batch, Submitted: submitted, Err: err}
			}
			if s.onRateLimited != nil {
				s.onRateLimited("add items")
			}

			delay := limited.RetryAfter
			if delay <= 0 {
				delay = s.config.DefaultRetryAfter
			}

			if retries >= s.config.MaxRetries {
				return submitted, &BatchError{Batch: batch, Submitted: submitted,
					Err: fmt.Errorf("gave up after %d retries: %w", retries, err)}
			}
			if s.config.MaxBackoff > 0 && waited+delay > s.config.MaxBackoff {
				return submitted, &BatchError{Batch: batch, Submitted: submitted,
					Err: fmt.Errorf("backoff ceiling %s reached: %w", s.config.MaxBackoff, err)}
			}

			s.logger.Warn("Rate limited, retrying batch",
				zap.Int("batch", batch),
				zap.Int("batches", total),
				zap.Duration("retry_after", delay),
				zap.Int("attempt", retries+1))

			if err := s.sleep(ctx, delay); err != nil {
				return submitted, &BatchError{Batch: batch, Submitted: submitted, Err: err}
			}
			waited += delay
		}

		submitted += len(chunk)
		start = end

		s.logger.Info("Batch submitted",
			zap.String("playlist_id", playlistID),
			zap.Int("batch", batch),
			zap.Int("batches", total),
			zap.Int("submitted", submitted))

		if start < len(uris) && s.config.BatchDelay > 0 {
			if err := s.sleep(ctx, s.config.BatchDelay); err != nil {
				return submitted, &BatchError{Batch: batch + 1, Submitted: submitted, Err: err}
			}
		}
	}

	return submitted, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
