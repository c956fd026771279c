package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/cache"
	"github.com/Antonioedwardsd/devlab/internal/models"
	"github.com/Antonioedwardsd/devlab/internal/repositories"
	"github.com/Antonioedwardsd/devlab/internal/validation"

	"golang.org/x/sync/singleflight"
)

const (
	taskGenPrefix  = "gen:task:"
	listGenKey     = "gen:tasks:list"
	cacheOpTimeout = 2 * time.Second
	defaultTaskTTL = 30 * time.Minute
	defaultListTTL = 5 * time.Minute
	minGenTTL      = time.Hour
)

// TaskCache is the subset of the Redis cache used by CachedTaskService.
type TaskCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Generation(ctx context.Context, key string) (int64, error)
	Bump(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// CachedTaskService serves reads from the cache and invalidates it after
// every mutation.
//
// Every task and the set of listings carry a generation counter that is part
// of their cache keys. Readers fetch the generation before reading the store,
// and mutations bump it after writing the store, so a read that overlaps a
// mutation can only populate a key nobody looks up any more. A bump that
// fails is remembered and retried before the next read; until it succeeds
// that key bypasses the cache.
type CachedTaskService struct {
	taskService TaskService
	cache       TaskCache
	taskTTL     time.Duration
	listTTL     time.Duration
	genTTL      time.Duration
	group       singleflight.Group
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]uint64
}

func NewCachedTaskService(taskService TaskService, cacheInstance TaskCache, taskTTL, listTTL time.Duration, logger *slog.Logger) *CachedTaskService {
	if taskTTL <= 0 {
		taskTTL = defaultTaskTTL
	}
	if listTTL <= 0 {
		listTTL = defaultListTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Generations must outlive every entry keyed by them.
	genTTL := 2 * max(taskTTL, listTTL)
	if genTTL < minGenTTL {
		genTTL = minGenTTL
	}

	return &CachedTaskService{
		taskService: taskService,
		cache:       cacheInstance,
		taskTTL:     taskTTL,
		listTTL:     listTTL,
		genTTL:      genTTL,
		logger:      logger,
		pending:     make(map[string]uint64),
	}
}

func taskGenKey(id string) string {
	return taskGenPrefix + id
}

func taskKey(id string, gen int64) string {
	return fmt.Sprintf("task:%s:v%d", id, gen)
}

func listKey(filter models.TaskFilter, gen int64) string {
	return fmt.Sprintf("tasks:list:v%d:%s", gen, filter.CacheKey())
}

// cacheContext keeps cache calls bounded and independent of the caller.
func cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
}

// mutated reports whether err leaves the store possibly changed. A store
// failure may have been applied before the connection dropped.
func mutated(err error) bool {
	var storeErr *repositories.StoreError
	return err == nil || errors.As(err, &storeErr)
}

func (s *CachedTaskService) CreateTask(ctx context.Context, req validation.CreateTaskRequest) (*models.Task, error) {
	task, err := s.taskService.CreateTask(ctx, req)
	if mutated(err) {
		s.invalidate(ctx, listGenKey)
	}
	return task, err
}

func (s *CachedTaskService) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	gen, ok := s.generation(ctx, taskGenKey(id))
	if !ok {
		return s.taskService.GetTaskByID(ctx, id)
	}
	key := taskKey(id, gen)

	var cached models.Task
	if s.load(ctx, key, &cached) {
		return &cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		task, err := s.taskService.GetTaskByID(ctx, id)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, task, s.taskTTL)
		return *task, nil
	})
	if err != nil {
		return nil, err
	}

	task := v.(models.Task)
	return &task, nil
}

func (s *CachedTaskService) GetTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	gen, ok := s.generation(ctx, listGenKey)
	if !ok {
		return s.taskService.GetTasks(ctx, filter)
	}
	key := listKey(filter, gen)

	var cached []models.Task
	if s.load(ctx, key, &cached) {
		if cached == nil {
			cached = []models.Task{}
		}
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		tasks, err := s.taskService.GetTasks(ctx, filter)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, tasks, s.listTTL)
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}

	shared := v.([]models.Task)
	tasks := make([]models.Task, len(shared))
	copy(tasks, shared)
	return tasks, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, id string, req validation.UpdateTaskRequest) (*models.Task, error) {
	task, err := s.taskService.UpdateTask(ctx, id, req)
	if mutated(err) {
		s.invalidate(ctx, taskGenKey(id), listGenKey)
	}
	return task, err
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, id string) error {
	err := s.taskService.DeleteTask(ctx, id)
	if mutated(err) {
		s.invalidate(ctx, taskGenKey(id), listGenKey)
	}
	return err
}

// generation returns the current generation for genKey. ok is false when the
// cache must be bypassed for this key.
func (s *CachedTaskService) generation(ctx context.Context, genKey string) (int64, bool) {
	if !s.flushPending(ctx, genKey) {
		return 0, false
	}

	cctx, cancel := cacheContext(ctx)
	defer cancel()

	gen, err := s.cache.Generation(cctx, genKey)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed", "key", genKey, "error", err)
		return 0, false
	}
	return gen, true
}

// invalidate bumps each generation. Entries of the previous generation are
// removed on a best effort basis; TTLs collect whatever is left.
func (s *CachedTaskService) invalidate(ctx context.Context, genKeys ...string) {
	for _, genKey := range genKeys {
		if err := s.bump(ctx, genKey); err != nil {
			s.logger.WarnContext(ctx, "cache invalidation failed, bypassing cache until it succeeds",
				"key", genKey, "error", err)
			s.mu.Lock()
			s.pending[genKey]++
			s.mu.Unlock()
		}
	}
}

func (s *CachedTaskService) bump(ctx context.Context, genKey string) error {
	cctx, cancel := cacheContext(ctx)
	defer cancel()

	gen, err := s.cache.Bump(cctx, genKey, s.genTTL)
	if err != nil {
		return err
	}

	var cleanup error
	if genKey == listGenKey {
		cleanup = s.cache.DeletePattern(cctx, fmt.Sprintf("tasks:list:v%d:*", gen-1))
	} else {
		cleanup = s.cache.Delete(cctx, taskKey(genKey[len(taskGenPrefix):], gen-1))
	}
	if cleanup != nil {
		s.logger.DebugContext(ctx, "stale cache cleanup failed", "key", genKey, "error", cleanup)
	}
	return nil
}

// flushPending retries failed invalidations and reports whether genKey is
// safe to serve from the cache.
func (s *CachedTaskService) flushPending(ctx context.Context, genKey string) bool {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return true
	}
	snapshot := make(map[string]uint64, len(s.pending))
	for key, seq := range s.pending {
		snapshot[key] = seq
	}
	s.mu.Unlock()

	for key, seq := range snapshot {
		if err := s.bump(ctx, key); err != nil {
			continue
		}
		s.mu.Lock()
		// A failure recorded after the snapshot still needs its own bump.
		if s.pending[key] == seq {
			delete(s.pending, key)
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, stale := s.pending[genKey]
	return !stale
}

func (s *CachedTaskService) load(ctx context.Context, key string, dest interface{}) bool {
	cctx, cancel := cacheContext(ctx)
	defer cancel()

	err := s.cache.Get(cctx, key, dest)
	switch {
	case err == nil:
		return true
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		s.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}
	return false
}

func (s *CachedTaskService) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	cctx, cancel := cacheContext(ctx)
	defer cancel()

	if err := s.cache.Set(cctx, key, value, ttl); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}
