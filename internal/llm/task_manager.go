package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// TaskStatus represents the status of an async generation task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// AsyncTask is one poll snapshot of a remote generation task. ResultURL is
// set once the task succeeded.
type AsyncTask struct {
	ID        string
	Status    TaskStatus
	ResultURL string
	Error     error
}

// PollConfig contains configuration for polling async tasks.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
	Backoff     bool
	BackoffMax  time.Duration
}

// DefaultPollConfig provides default polling configuration.
var DefaultPollConfig = PollConfig{
	Interval:    5 * time.Second,
	MaxAttempts: 120, // 10 minutes with 5s interval
	Backoff:     false,
	BackoffMax:  30 * time.Second,
}

// TaskPoller defines the interface for polling task status.
type TaskPoller interface {
	// Poll checks the current status of a task.
	Poll(ctx context.Context, taskID string) (*AsyncTask, error)
}

// WaitForTask polls a task until it succeeds, fails or ctx ends, and returns
// the result URL.
func WaitForTask(ctx context.Context, poller TaskPoller, taskID string, config PollConfig) (string, error) {
	if taskID == "" {
		return "", errors.New("task ID is required")
	}

	interval := config.Interval
	if interval <= 0 {
		interval = DefaultPollConfig.Interval
	}

	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollConfig.MaxAttempts
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-ticker.C:
			attempts++

			task, err := poller.Poll(ctx, taskID)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"task_id": taskID,
					"attempt": attempts,
					"error":   err,
				}).Warn("task_manager: poll error")
				return "", err
			}

			logrus.WithFields(logrus.Fields{
				"task_id": taskID,
				"status":  task.Status,
				"attempt": attempts,
			}).Debug("task_manager: poll status")

			switch task.Status {
			case TaskStatusSucceeded:
				if task.ResultURL == "" {
					return "", errors.New("task succeeded without a result")
				}
				return task.ResultURL, nil

			case TaskStatusFailed:
				if task.Error != nil {
					return "", task.Error
				}
				return "", errors.New("task failed without error message")

			case TaskStatusCancelled:
				return "", errors.New("task was cancelled")

			case TaskStatusPending, TaskStatusRunning:
				if attempts >= maxAttempts {
					return "", errors.New("polling exceeded maximum attempts")
				}

				// Apply backoff if enabled
				if config.Backoff {
					newInterval := interval * 2
					if config.BackoffMax > 0 && newInterval > config.BackoffMax {
						newInterval = config.BackoffMax
					}
					if newInterval != interval {
						ticker.Reset(newInterval)
						interval = newInterval
					}
				}

			default:
				// Unknown status, continue polling
				if attempts >= maxAttempts {
					return "", errors.New("polling exceeded maximum attempts with unknown status")
				}
			}
		}
	}
}

// MapTaskStatus maps provider-specific status strings to TaskStatus.
// This provides a unified way to handle status from different providers.
func MapTaskStatus(status string) TaskStatus {
	normalized := strings.ToLower(strings.TrimSpace(status))

	switch normalized {
	case "pending", "queued", "in_queue", "created":
		return TaskStatusPending
	case "running", "processing", "in_progress", "started":
		return TaskStatusRunning
	case "succeeded", "success", "completed", "done", "ok":
		return TaskStatusSucceeded
	case "failed", "failure", "error":
		return TaskStatusFailed
	case "cancelled", "canceled", "aborted", "stopped":
		return TaskStatusCancelled
	default:
		return TaskStatusRunning // Default to running for unknown statuses
	}
}
