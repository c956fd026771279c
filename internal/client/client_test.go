package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/client"
	"github.com/Antonioedwardsd/devlab/internal/database"
	"github.com/Antonioedwardsd/devlab/internal/logger"
	"github.com/Antonioedwardsd/devlab/internal/repositories"
	"github.com/Antonioedwardsd/devlab/internal/router"
	"github.com/Antonioedwardsd/devlab/internal/services"
	"github.com/Antonioedwardsd/devlab/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func newServer(t *testing.T) *httptest.Server {
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
	return server
}

func TestClient_CRUD(t *testing.T) {
	server := newServer(t)
	c, err := client.New(server.URL, client.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	ctx := context.Background()

	tasks, err := c.ListTasks(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	created, err := c.CreateTask(ctx, validation.CreateTaskRequest{
		Title:       strPtr("Write docs"),
		Description: strPtr("README"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	fetched, err := c.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write docs", fetched.Title)

	updated, err := c.UpdateTask(ctx, created.ID, validation.UpdateTaskRequest{Completed: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "README", updated.Description)

	pending, err := c.ListTasks(ctx, boolPtr(false))
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, c.DeleteTask(ctx, created.ID))

	_, err = c.GetTask(ctx, created.ID)
	assert.True(t, client.IsNotFound(err))
}

func TestClient_ValidationError(t *testing.T) {
	server := newServer(t)
	c, err := client.New(server.URL, client.WithBasePath("api/todos"))
	require.NoError(t, err)

	_, err = c.CreateTask(context.Background(), validation.CreateTaskRequest{Title: strPtr("no description")})

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Validation failed", apiErr.Message)
	require.Len(t, apiErr.Details, 1)
	assert.Equal(t, "description", apiErr.Details[0].Field)
}

type countingTokens struct {
	calls int
}

func (c *countingTokens) Token(context.Context) (string, error) {
	c.calls++
	return "token-123", nil
}

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	tokens := &countingTokens{}
	c, err := client.New(server.URL+"/", client.WithTokenSource(tokens), client.WithBasePath("/api/todos/"))
	require.NoError(t, err)

	_, err = c.ListTasks(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, "/api/todos", gotPath)
	assert.Equal(t, 1, tokens.calls)
}

func TestClient_UnauthorizedAndPlainErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"no authorization token was found"}`))
			return
		}
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	c, err := client.New(server.URL)
	require.NoError(t, err)

	_, err = c.GetTask(context.Background(), "1")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Unauthorized: no authorization token was found", apiErr.Message)

	c, err = client.New(server.URL, client.WithTokenSource(client.StaticToken("t")))
	require.NoError(t, err)

	err = c.DeleteTask(context.Background(), "1")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := client.New("localhost:5000")
	assert.Error(t, err)
}
