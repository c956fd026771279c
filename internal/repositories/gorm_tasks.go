package repositories

import (
	"context"
	"errors"

	"github.com/Antonioedwardsd/devlab/internal/database"
	"github.com/Antonioedwardsd/devlab/internal/models"

	"gorm.io/gorm"
)

// GormTaskRepository stores tasks in a SQL database through gorm.
type GormTaskRepository struct {
	pool *database.DatabasePool
	db   *gorm.DB
}

func NewGormTaskRepository(pool *database.DatabasePool) *GormTaskRepository {
	return &GormTaskRepository{pool: pool, db: pool.DB}
}

func (r *GormTaskRepository) Create(ctx context.Context, draft models.TaskDraft) (*models.Task, error) {
	task := models.Task{
		Title:       draft.Title,
		Description: draft.Description,
		Completed:   draft.Completed,
	}
	if err := r.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, storeError("create", err)
	}
	return &task, nil
}

func (r *GormTaskRepository) FindAll(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	query := r.db.WithContext(ctx).Model(&models.Task{})
	if filter.Completed != nil {
		query = query.Where("completed = ?", *filter.Completed)
	}

	tasks := make([]models.Task, 0)
	if err := query.Order("created_at ASC").Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, storeError("find all", err)
	}
	return tasks, nil
}

func (r *GormTaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	return r.findByID(r.db.WithContext(ctx), id)
}

func (r *GormTaskRepository) findByID(db *gorm.DB, id string) (*models.Task, error) {
	var task models.Task
	if err := db.Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, storeError("find by id", err)
	}
	return &task, nil
}

// UpdateByID applies patch with one UPDATE and re-reads the row in the same
// transaction. An empty patch only reads.
func (r *GormTaskRepository) UpdateByID(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if patch.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	var updated *models.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		columns := patch.Columns()
		columns["updated_at"] = tx.NowFunc()

		result := tx.Model(&models.Task{}).Where("id = ?", id).Updates(columns)
		if result.Error != nil {
			return storeError("update", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTaskNotFound
		}

		task, err := r.findByID(tx, id)
		if err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		var serr *StoreError
		if errors.As(err, &serr) {
			return nil, err
		}
		return nil, storeError("update", err)
	}
	return updated, nil
}

func (r *GormTaskRepository) DeleteByID(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{})
	if result.Error != nil {
		return storeError("delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *GormTaskRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (r *GormTaskRepository) Close(context.Context) error {
	return r.pool.Close()
}
