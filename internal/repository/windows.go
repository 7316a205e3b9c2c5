package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/court-case-monitor/internal/database"
)

// WindowRepository persists monitoring windows. (case, trigger date) is
// unique; reopening a window reuses its row.
type WindowRepository struct {
	db *gorm.DB
}

func NewWindowRepository(db *gorm.DB) *WindowRepository {
	return &WindowRepository{db: db}
}

// FindByTrigger returns the window for (caseID, trigger), or a NotFound
// error.
func (r *WindowRepository) FindByTrigger(caseID uint, trigger time.Time) (*database.MonitoringWindow, error) {
	var w database.MonitoringWindow
	err := r.db.Where("case_id = ? AND trigger_date = ?", caseID, database.Day(trigger)).First(&w).Error
	if err != nil {
		return nil, classify("windows.FindByTrigger", err)
	}
	return &w, nil
}

func (r *WindowRepository) Get(id uint) (*database.MonitoringWindow, error) {
	var w database.MonitoringWindow
	if err := r.db.First(&w, id).Error; err != nil {
		return nil, classify("windows.Get", err)
	}
	return &w, nil
}

// Create inserts w. A unique-key race returns the stored row together with
// a DuplicateConflict error.
func (r *WindowRepository) Create(w *database.MonitoringWindow) (*database.MonitoringWindow, error) {
	err := r.db.Create(w).Error
	if err == nil {
		return w, nil
	}
	if isDuplicate(err) {
		existing, getErr := r.FindByTrigger(w.CaseID, w.TriggerDate)
		if getErr != nil {
			return nil, getErr
		}
		return existing, classify("windows.Create", err)
	}
	return nil, classify("windows.Create", err)
}

func (r *WindowRepository) Save(w *database.MonitoringWindow) error {
	return classify("windows.Save", r.db.Save(w).Error)
}

// TransitionState moves a window from one state to another. It returns
// false when the window was no longer in from.
func (r *WindowRepository) TransitionState(id uint, from, to string) (bool, error) {
	res := r.db.Model(&database.MonitoringWindow{}).
		Where("id = ? AND state = ?", id, from).
		Update("state", to)
	if res.Error != nil {
		return false, classify("windows.TransitionState", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Active returns every window whose stored flag says active. Date-range
// filtering is left to the caller so it runs on the injected clock.
func (r *WindowRepository) Active() ([]database.MonitoringWindow, error) {
	var windows []database.MonitoringWindow
	err := r.db.Where("is_active = ?", true).Order("start_date ASC, id ASC").Find(&windows).Error
	return windows, classify("windows.Active", err)
}

func (r *WindowRepository) ByCase(caseID uint) ([]database.MonitoringWindow, error) {
	var windows []database.MonitoringWindow
	err := r.db.Where("case_id = ?", caseID).Order("trigger_date DESC").Find(&windows).Error
	return windows, classify("windows.ByCase", err)
}

// ClosedFoundOn returns windows that closed with a found order on the
// calendar day (a database.Day value) as observed in loc.
func (r *WindowRepository) ClosedFoundOn(day time.Time, loc *time.Location) ([]database.MonitoringWindow, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	// The range is padded by a day each side because SQLite compares the
	// stored text form, whose offset may differ from loc. The exact day is
	// checked below.
	var candidates []database.MonitoringWindow
	err := r.db.Where("state = ? AND closed_at >= ? AND closed_at < ?", database.WindowClosedFound,
		start.AddDate(0, 0, -1).UTC(), end.AddDate(0, 0, 1).UTC()).
		Order("closed_at ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, classify("windows.ClosedFoundOn", err)
	}

	var windows []database.MonitoringWindow
	for _, w := range candidates {
		if database.Day(w.ClosedAt.In(loc)).Equal(day) {
			windows = append(windows, w)
		}
	}
	return windows, nil
}

// RecordNotification stores the digest marker for day. A second call for
// the same day returns a DuplicateConflict error.
func (r *WindowRepository) RecordNotification(entry *database.NotificationLog) error {
	return classify("windows.RecordNotification", r.db.Create(entry).Error)
}

// NotificationSent reports whether a digest row exists for day.
func (r *WindowRepository) NotificationSent(day string) (bool, error) {
	var entry database.NotificationLog
	err := r.db.Where("day = ?", day).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, classify("windows.NotificationSent", err)
	}
	return true, nil
}
