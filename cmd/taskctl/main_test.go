package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/database"
	"github.com/Antonioedwardsd/devlab/internal/logger"
	"github.com/Antonioedwardsd/devlab/internal/models"
	"github.com/Antonioedwardsd/devlab/internal/repositories"
	"github.com/Antonioedwardsd/devlab/internal/router"
	"github.com/Antonioedwardsd/devlab/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func newAPI(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:   database.DriverSQLite,
		DSN:      ":memory:",
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, pool.Migrate())
	repo := repositories.NewGormTaskRepository(pool)

	server := httptest.NewServer(router.New(router.Options{
		Logger:      logger.Discard(),
		TaskService: services.NewTaskService(repo, 5*time.Second, logger.Discard()),
	}))
	t.Cleanup(func() {
		server.Close()
		_ = repo.Close(context.Background())
	})
	return server.URL
}

func taskctl(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestTaskctl_Lifecycle(t *testing.T) {
	url := newAPI(t)

	code, out, errOut := taskctl(t, "--url", url, "create", "--title", "Ship it", "--description", "release v1")
	require.Equal(t, 0, code, errOut)
	var created models.Task
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "Ship it", created.Title)

	code, out, _ = taskctl(t, "--url", url, "--base-path", "/api/todos", "update", created.ID, "--completed")
	require.Equal(t, 0, code)
	var updated models.Task
	require.NoError(t, json.Unmarshal([]byte(out), &updated))
	assert.True(t, updated.Completed)
	assert.Equal(t, "release v1", updated.Description)

	code, out, _ = taskctl(t, "--url", url, "list", "--completed=false")
	require.Equal(t, 0, code)
	var pending []models.Task
	require.NoError(t, json.Unmarshal([]byte(out), &pending))
	assert.Empty(t, pending)

	code, _, _ = taskctl(t, "--url", url, "delete", created.ID)
	require.Equal(t, 0, code)

	code, _, errOut = taskctl(t, "--url", url, "get", created.ID)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Task not found")
}

func TestTaskctl_ValidationErrorsAreReported(t *testing.T) {
	url := newAPI(t)

	code, _, errOut := taskctl(t, "--url", url, "create", "--title", "only a title")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "description")
}

func TestTaskctl_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "no command", args: nil, code: 2},
		{name: "unknown command", args: []string{"archive"}, code: 2},
		{name: "get without id", args: []string{"get"}, code: 2},
		{name: "bad flag", args: []string{"list", "--nope"}, code: 2},
		{name: "help", args: []string{"--help"}, code: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := taskctl(t, append([]string{"--url", "http://127.0.0.1:1"}, tt.args...)...)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestTaskctl_TokenFromEnvironment(t *testing.T) {
	t.Setenv("TASKS_TOKEN", "from-env")

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	code, _, errOut := taskctl(t, "--url", server.URL, "list")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "Bearer from-env", gotAuth)
}
