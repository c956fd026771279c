package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Antonioedwardsd/devlab/internal/models"
	"github.com/Antonioedwardsd/devlab/internal/repositories"
	"github.com/Antonioedwardsd/devlab/internal/services"
	"github.com/Antonioedwardsd/devlab/internal/validation"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService services.TaskService
	logger      *slog.Logger
}

func NewTaskHandler(taskService services.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{taskService: taskService, logger: logger}
}

// RegisterRoutes binds the task endpoints on group.
func (h *TaskHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("", h.CreateTask)
	group.GET("", h.GetTasks)
	group.GET("/:id", h.GetTaskByID)
	group.PUT("/:id", h.UpdateTask)
	group.DELETE("/:id", h.DeleteTask)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req validation.CreateTaskRequest
	if !bindJSON(c, &req, false) {
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), req)
	if err != nil {
		h.handleTaskError(c, err, "Failed to create task")
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	completed, err := validation.ParseBoolParam("completed", c.Query("completed"))
	if err != nil {
		h.handleTaskError(c, err, "Failed to fetch tasks")
		return
	}

	tasks, err := h.taskService.GetTasks(c.Request.Context(), models.TaskFilter{Completed: completed})
	if err != nil {
		h.handleTaskError(c, err, "Failed to fetch tasks")
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	task, err := h.taskService.GetTaskByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleTaskError(c, err, "Failed to fetch task")
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	// A missing body is an empty patch.
	var req validation.UpdateTaskRequest
	if !bindJSON(c, &req, true) {
		return
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.handleTaskError(c, err, "Failed to update task")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task updated successfully",
		"task":    task,
	})
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	if err := h.taskService.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		h.handleTaskError(c, err, "Failed to delete task")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Task deleted successfully"})
}

// bindJSON decodes the request body into dest, answering 400 on failure.
// With allowEmpty an absent body leaves dest untouched.
func bindJSON(c *gin.Context, dest interface{}, allowEmpty bool) bool {
	err := c.ShouldBindJSON(dest)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	body := gin.H{"error": "Invalid request body"}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		body["details"] = []validation.Violation{{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("Expected %s, received %s", typeErr.Type.Kind(), typeErr.Value),
		}}
	}
	c.JSON(http.StatusBadRequest, body)
	return false
}

func (h *TaskHandler) handleTaskError(c *gin.Context, err error, failure string) {
	if verr, ok := validation.AsError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": verr.Violations,
		})
		return
	}

	if errors.Is(err, repositories.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	_ = c.Error(err)
	h.logger.ErrorContext(c.Request.Context(), failure,
		"task_id", c.Param("id"),
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": failure})
}
