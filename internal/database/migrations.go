package database

import (
	"fmt"

	"gorm.io/gorm"
)

// RunMigrations executes the migrations AutoMigrate cannot express
func RunMigrations(db *gorm.DB) error {
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createIndexes creates the composite indexes behind the pending-stage and
// sweep queries
func createIndexes(db *gorm.DB) error {
	// Pending-stage lookups walk orders per case by flag
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_orders_stage_flags
		ON orders(case_id, document_retrieved, text_extracted, classified)
	`).Error; err != nil {
		return err
	}

	// Sweep selects active windows by date range
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_windows_active_range
		ON monitoring_windows(is_active, start_date, end_date)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_fetch_logs_time
		ON fetch_logs(query_time)
	`).Error; err != nil {
		return err
	}

	return nil
}
