package repository

import (
	"gorm.io/gorm"

	"github.com/JustJay7/court-case-monitor/internal/database"
)

// TaskRepository persists background task records.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(t *database.Task) error {
	return classify("tasks.Create", r.db.Create(t).Error)
}

func (r *TaskRepository) Save(t *database.Task) error {
	return classify("tasks.Save", r.db.Save(t).Error)
}

func (r *TaskRepository) Get(id string) (*database.Task, error) {
	var t database.Task
	if err := r.db.Where("id = ?", id).First(&t).Error; err != nil {
		return nil, classify("tasks.Get", err)
	}
	return &t, nil
}

// FindOpen returns a queued or running task of kind for caseID, or nil.
func (r *TaskRepository) FindOpen(kind string, caseID uint) (*database.Task, error) {
	return r.find("tasks.FindOpen", kind, caseID, database.TaskQueued, database.TaskRunning)
}

// FindQueued returns a task of kind for caseID that has not started yet, or nil.
func (r *TaskRepository) FindQueued(kind string, caseID uint) (*database.Task, error) {
	return r.find("tasks.FindQueued", kind, caseID, database.TaskQueued)
}

func (r *TaskRepository) find(op, kind string, caseID uint, statuses ...string) (*database.Task, error) {
	var tasks []database.Task
	err := r.db.Where("kind = ? AND case_id = ? AND status IN ?", kind, caseID, statuses).
		Order("created_at ASC").Limit(1).Find(&tasks).Error
	if err != nil {
		return nil, classify(op, err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

// FailInterrupted marks tasks left queued or running by a previous process
// as failed and returns how many were affected.
func (r *TaskRepository) FailInterrupted(message string) (int64, error) {
	res := r.db.Model(&database.Task{}).
		Where("status IN ?", []string{database.TaskQueued, database.TaskRunning}).
		Updates(map[string]interface{}{"status": database.TaskFailed, "error": message})
	return res.RowsAffected, classify("tasks.FailInterrupted", res.Error)
}
