/**
 * @description
 * Scheduled job implementations for the commission-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// ThresholdRunner is the subset of the attendance monitor the jobs need.
type ThresholdRunner interface {
	RunThresholdCheck(ctx context.Context) (*ThresholdCheckResult, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	monitor ThresholdRunner
	logger  *slog.Logger
	timeout time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(monitor ThresholdRunner, logger *slog.Logger, timeout time.Duration) *Jobs {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Jobs{monitor: monitor, logger: logger, timeout: timeout}
}

// RunAttendanceThresholdCheck runs one threshold reconciliation pass. A
// timeout mid-run is safe: every session transition is independently
// idempotent, so the next scheduled pass resumes the remainder.
func (j *Jobs) RunAttendanceThresholdCheck() {
	j.logger.Info("starting attendance threshold job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.monitor.RunThresholdCheck(ctx)
	if err != nil {
		j.logger.Error("attendance threshold job failed to start", "error", err)
		return
	}

	j.logger.Info("attendance threshold job finished",
		"cancelled", len(result.Cancelled),
		"warnings", len(result.Warnings),
		"errors", len(result.Errors),
	)
}
