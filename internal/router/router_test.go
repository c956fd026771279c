package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/auth"
	"github.com/Antonioedwardsd/devlab/internal/config"
	"github.com/Antonioedwardsd/devlab/internal/database"
	"github.com/Antonioedwardsd/devlab/internal/logger"
	"github.com/Antonioedwardsd/devlab/internal/middleware"
	"github.com/Antonioedwardsd/devlab/internal/models"
	"github.com/Antonioedwardsd/devlab/internal/repositories"
	"github.com/Antonioedwardsd/devlab/internal/router"
	"github.com/Antonioedwardsd/devlab/internal/services"
	"github.com/Antonioedwardsd/devlab/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

const (
	testSecret   = "router-test-secret"
	testAudience = "https://api.example.com"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, verifier middleware.TokenVerifier) *gin.Engine {
	t.Helper()
	return newTestRouterWith(t, cfg, verifier, newTestService(t))
}

func newTestRouterWith(t *testing.T, cfg *config.Config, verifier middleware.TokenVerifier, svc services.TaskService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	return router.New(router.Options{
		Config:      cfg,
		Logger:      logger.Discard(),
		TaskService: svc,
		Verifier:    verifier,
	})
}

func newTestService(t *testing.T) services.TaskService {
	t.Helper()

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:   database.DriverSQLite,
		DSN:      ":memory:",
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, pool.Migrate())

	repo := repositories.NewGormTaskRepository(pool)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	return services.NewTaskService(repo, 5*time.Second, logger.Discard())
}

// countingService counts every call that reaches the task service.
type countingService struct {
	services.TaskService
	calls atomic.Int32
}

func (s *countingService) CreateTask(ctx context.Context, req validation.CreateTaskRequest) (*models.Task, error) {
	s.calls.Add(1)
	return s.TaskService.CreateTask(ctx, req)
}

func (s *countingService) GetTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	s.calls.Add(1)
	return s.TaskService.GetTasks(ctx, filter)
}

func (s *countingService) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	s.calls.Add(1)
	return s.TaskService.GetTaskByID(ctx, id)
}

func (s *countingService) UpdateTask(ctx context.Context, id string, req validation.UpdateTaskRequest) (*models.Task, error) {
	s.calls.Add(1)
	return s.TaskService.UpdateTask(ctx, id, req)
}

func (s *countingService) DeleteTask(ctx context.Context, id string) error {
	s.calls.Add(1)
	return s.TaskService.DeleteTask(ctx, id)
}

func hs256Verifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewFromConfig(config.AuthConfig{
		Enabled:   true,
		Audience:  testAudience,
		Algorithm: "HS256",
		JWTSecret: testSecret,
	}, nil)
	require.NoError(t, err)
	return v
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type request struct {
	method string
	path   string
	body   string
	token  string
	header map[string]string
}

func do(engine *gin.Engine, r request) *httptest.ResponseRecorder {
	req := httptest.NewRequest(r.method, r.path, bytes.NewBufferString(r.body))
	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

func TestRouter_TaskLifecycle(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	w := do(engine, request{method: http.MethodPost, path: "/api/tasks", body: `{"title":"Buy milk","description":"2% milk"}`})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Task
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.Completed)
	assert.False(t, created.CreatedAt.IsZero())

	w = do(engine, request{method: http.MethodGet, path: "/api/tasks"})
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []models.Task
	decode(t, w, &tasks)
	require.Len(t, tasks, 1)
	assert.Equal(t, created.ID, tasks[0].ID)

	w = do(engine, request{method: http.MethodGet, path: "/api/tasks/" + created.ID})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(engine, request{method: http.MethodPut, path: "/api/tasks/" + created.ID, body: `{"completed":true}`})
	require.Equal(t, http.StatusOK, w.Code)
	var updated struct {
		Message string      `json:"message"`
		Task    models.Task `json:"task"`
	}
	decode(t, w, &updated)
	assert.Equal(t, "Task updated successfully", updated.Message)
	assert.True(t, updated.Task.Completed)
	assert.Equal(t, "Buy milk", updated.Task.Title)
	assert.Equal(t, created.CreatedAt.Unix(), updated.Task.CreatedAt.Unix())

	w = do(engine, request{method: http.MethodDelete, path: "/api/tasks/" + created.ID})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = do(engine, request{method: http.MethodGet, path: "/api/tasks/" + created.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(engine, request{method: http.MethodDelete, path: "/api/tasks/" + created.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ListRoundTripsEveryField(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	submitted := []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Completed   bool   `json:"completed"`
	}{
		{Title: "Buy milk", Description: "2% milk", Completed: false},
		{Title: "Ship release", Description: "tag v1.2.0 and \"announce\"", Completed: true},
		{Title: "Überprüfen ✓", Description: "multi\nline\tdescription", Completed: false},
		{Title: strings.Repeat("t", validation.TitleMaxLength), Description: strings.Repeat("d", validation.DescriptionMaxLength), Completed: true},
		{Title: "  padded  ", Description: "<b>not html</b>", Completed: true},
	}

	ids := make(map[string]int, len(submitted))
	for i, task := range submitted {
		payload, err := json.Marshal(task)
		require.NoError(t, err)

		w := do(engine, request{method: http.MethodPost, path: "/api/tasks", body: string(payload)})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var created models.Task
		decode(t, w, &created)
		ids[created.ID] = i
	}
	require.Len(t, ids, len(submitted), "every task gets its own id")

	var tasks []models.Task
	decode(t, do(engine, request{method: http.MethodGet, path: "/api/tasks"}), &tasks)
	require.Len(t, tasks, len(submitted))

	for _, task := range tasks {
		i, ok := ids[task.ID]
		require.True(t, ok, "unexpected task %s", task.ID)
		want := submitted[i]
		assert.Equal(t, want.Title, task.Title)
		assert.Equal(t, want.Description, task.Description)
		assert.Equal(t, want.Completed, task.Completed)
		assert.False(t, task.CreatedAt.IsZero())
		assert.False(t, task.UpdatedAt.IsZero())
		delete(ids, task.ID)
	}
	assert.Empty(t, ids, "every created task is listed exactly once")
}

func TestRouter_TodosShareTheStore(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	w := do(engine, request{method: http.MethodPost, path: "/api/todos", body: `{"title":"t","description":"d","completed":true}`})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(engine, request{method: http.MethodPost, path: "/api/tasks", body: `{"title":"t2","description":"d2"}`})
	require.Equal(t, http.StatusCreated, w.Code)

	var tasks []models.Task
	decode(t, do(engine, request{method: http.MethodGet, path: "/api/tasks?completed=true"}), &tasks)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t", tasks[0].Title)

	decode(t, do(engine, request{method: http.MethodGet, path: "/api/todos?completed=false"}), &tasks)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t2", tasks[0].Title)

	assert.Equal(t, http.StatusBadRequest, do(engine, request{method: http.MethodGet, path: "/api/todos?completed=yes-please"}).Code)
}

func TestRouter_ValidationAndUnknownIDs(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	w := do(engine, request{
		method: http.MethodPost,
		path:   "/api/tasks",
		body:   `{"title":"` + strings.Repeat("a", 101) + `","description":"d"}`,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error   string `json:"error"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	decode(t, w, &body)
	assert.Equal(t, "Validation failed", body.Error)
	require.NotEmpty(t, body.Details)
	assert.Equal(t, "title", body.Details[0].Field)

	var tasks []models.Task
	decode(t, do(engine, request{method: http.MethodGet, path: "/api/tasks"}), &tasks)
	assert.Empty(t, tasks, "rejected payloads must not reach the store")

	for _, id := range []string{"not-a-uuid", "00000000-0000-0000-0000-000000000000"} {
		assert.Equal(t, http.StatusNotFound, do(engine, request{method: http.MethodGet, path: "/api/tasks/" + id}).Code)
		assert.Equal(t, http.StatusNotFound, do(engine, request{method: http.MethodPut, path: "/api/tasks/" + id, body: `{"completed":true}`}).Code)
	}
}

func TestRouter_AuthGuardsAPI(t *testing.T) {
	svc := &countingService{TaskService: newTestService(t)}
	engine := newTestRouterWith(t, testConfig(), hs256Verifier(t), svc)

	w := do(engine, request{method: http.MethodGet, path: "/api/tasks"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "Unauthorized", body["error"])

	rejected := []request{
		{method: http.MethodGet, path: "/api/tasks", token: "garbage"},
		{method: http.MethodPost, path: "/api/tasks", body: `{"title":"t","description":"d"}`},
		{method: http.MethodGet, path: "/api/todos/some-id", token: "garbage"},
		{method: http.MethodPut, path: "/api/tasks/some-id", body: `{"completed":true}`},
		{method: http.MethodDelete, path: "/api/todos/some-id"},
	}
	for _, r := range rejected {
		assert.Equal(t, http.StatusUnauthorized, do(engine, r).Code, "%s %s", r.method, r.path)
	}
	assert.Equal(t, int32(0), svc.calls.Load(), "unauthenticated requests must not reach the task service")

	token := signToken(t, "user-1")
	w = do(engine, request{method: http.MethodGet, path: "/api/todos", token: token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), svc.calls.Load())

	w = do(engine, request{method: http.MethodGet, path: "/api/protected", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var protected struct {
		Message string                 `json:"message"`
		User    map[string]interface{} `json:"user"`
	}
	decode(t, w, &protected)
	assert.Equal(t, "You are authenticated!", protected.Message)
	assert.Equal(t, "user-1", protected.User["sub"])

	assert.Equal(t, http.StatusOK, do(engine, request{method: http.MethodGet, path: "/"}).Code)
	assert.Equal(t, http.StatusOK, do(engine, request{method: http.MethodGet, path: "/live"}).Code)
	assert.Equal(t, http.StatusOK, do(engine, request{method: http.MethodGet, path: "/health"}).Code)
}

func TestRouter_ProtectedOnlyWithAuth(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)
	assert.Equal(t, http.StatusNotFound, do(engine, request{method: http.MethodGet, path: "/api/protected"}).Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	engine := newTestRouter(t, testConfig(), hs256Verifier(t))

	w := do(engine, request{
		method: http.MethodOptions,
		path:   "/api/tasks",
		header: map[string]string{
			"Origin":                        "http://localhost:3000",
			"Access-Control-Request-Method": http.MethodPost,
		},
	})
	assert.Equal(t, http.StatusNoContent, w.Code, "preflight must not require a token")
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(engine, request{
		method: http.MethodGet,
		path:   "/",
		header: map[string]string{"Origin": "http://evil.example.com"},
	})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, BurstSize: 2}
	engine := newTestRouter(t, cfg, nil)

	assert.Equal(t, http.StatusOK, do(engine, request{method: http.MethodGet, path: "/"}).Code)
	assert.Equal(t, http.StatusOK, do(engine, request{method: http.MethodGet, path: "/"}).Code)

	w := do(engine, request{method: http.MethodGet, path: "/"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRouter_RequestIDAndNotFound(t *testing.T) {
	engine := newTestRouter(t, testConfig(), nil)

	w := do(engine, request{method: http.MethodGet, path: "/nowhere"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = do(engine, request{
		method: http.MethodGet,
		path:   "/",
		header: map[string]string{middleware.RequestIDHeader: "abc-123"},
	})
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))
}
