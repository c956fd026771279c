package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Antonioedwardsd/devlab/internal/models"
)

// ErrTaskNotFound reports that no task exists under the requested id. It is
// never wrapped in a StoreError.
var ErrTaskNotFound = errors.New("task not found")

// StoreError wraps any failure of the underlying store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// TaskRepository persists tasks. Each mutation is a single atomic store
// operation and there are no cross-task transactions.
type TaskRepository interface {
	Create(ctx context.Context, draft models.TaskDraft) (*models.Task, error)
	FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	FindByID(ctx context.Context, id string) (*models.Task, error)
	UpdateByID(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
	DeleteByID(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
