package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/models"
	"github.com/Antonioedwardsd/devlab/internal/repositories"
	"github.com/Antonioedwardsd/devlab/internal/validation"
)

// TaskService is the operation surface the HTTP handlers depend on.
type TaskService interface {
	CreateTask(ctx context.Context, req validation.CreateTaskRequest) (*models.Task, error)
	GetTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	GetTaskByID(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, req validation.UpdateTaskRequest) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

type taskService struct {
	repo    repositories.TaskRepository
	timeout time.Duration
	logger  *slog.Logger
}

// NewTaskService validates payloads and forwards each operation to exactly
// one repository call. timeout bounds every store call; zero means no bound.
func NewTaskService(repo repositories.TaskRepository, timeout time.Duration, logger *slog.Logger) TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &taskService{repo: repo, timeout: timeout, logger: logger}
}

// storeContext detaches ctx from the caller's cancellation so a client that
// disconnects does not abort a store call already in flight.
func (s *taskService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *taskService) CreateTask(ctx context.Context, req validation.CreateTaskRequest) (*models.Task, error) {
	draft, err := validation.ValidateCreate(req)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	task, err := s.repo.Create(storeCtx, draft)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "task created", "task_id", task.ID)
	return task, nil
}

func (s *taskService) GetTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	return s.repo.FindAll(storeCtx, filter)
}

func (s *taskService) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	return s.repo.FindByID(storeCtx, id)
}

func (s *taskService) UpdateTask(ctx context.Context, id string, req validation.UpdateTaskRequest) (*models.Task, error) {
	patch, err := validation.ValidateUpdate(req)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	task, err := s.repo.UpdateByID(storeCtx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "task updated", "task_id", task.ID)
	return task, nil
}

func (s *taskService) DeleteTask(ctx context.Context, id string) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.repo.DeleteByID(storeCtx, id); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "task deleted", "task_id", id)
	return nil
}
