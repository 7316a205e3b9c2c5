package repository

import (
	"time"

	"gorm.io/gorm"
)

// Store bundles the repositories that share one database handle and clock.
type Store struct {
	Cases     *CaseRegistry
	Orders    *OrderRepository
	Windows   *WindowRepository
	Artifacts *ArtifactRepository
	Tasks     *TaskRepository
}

func New(db *gorm.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		Cases:     NewCaseRegistry(db, now),
		Orders:    NewOrderRepository(db, now),
		Windows:   NewWindowRepository(db),
		Artifacts: NewArtifactRepository(db),
		Tasks:     NewTaskRepository(db),
	}
}
