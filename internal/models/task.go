package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Task is the single persisted entity. IDs are assigned by the store and never
// change afterwards.
type Task struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Title       string    `json:"title" gorm:"size:100;not null"`
	Description string    `json:"description" gorm:"size:500;not null"`
	Completed   bool      `json:"completed" gorm:"not null"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Task) TableName() string {
	return "tasks"
}

// BeforeCreate assigns a v4 UUID when the caller did not supply an ID.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID != "" {
		return nil
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	t.ID = id.String()
	return nil
}

// TaskDraft holds validated fields for a new task.
type TaskDraft struct {
	Title       string
	Description string
	Completed   bool
}

// TaskPatch holds validated fields for a partial update. Nil fields are left
// unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil
}

// Columns returns the column/value pairs to set for the SQL store.
func (p TaskPatch) Columns() map[string]interface{} {
	columns := make(map[string]interface{}, 3)
	if p.Title != nil {
		columns["title"] = *p.Title
	}
	if p.Description != nil {
		columns["description"] = *p.Description
	}
	if p.Completed != nil {
		columns["completed"] = *p.Completed
	}
	return columns
}

// Apply copies the set fields of p onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
}

// TaskFilter narrows a listing. A nil Completed matches every task.
type TaskFilter struct {
	Completed *bool
}

// CacheKey is a stable textual form of the filter.
func (f TaskFilter) CacheKey() string {
	switch {
	case f.Completed == nil:
		return "all"
	case *f.Completed:
		return "completed"
	default:
		return "pending"
	}
}
