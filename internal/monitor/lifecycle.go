// Package monitor owns monitoring windows: opening and expiring them, and
// the periodic sweep that re-checks cases for new orders.
package monitor

import (
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/repository"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

// Lifecycle opens, reactivates and expires windows. Dates are calendar
// days in the configured zone.
type Lifecycle struct {
	windows *repository.WindowRepository
	days    int
	now     func() time.Time
	loc     *time.Location
	logger  *logger.Logger
}

func NewLifecycle(windows *repository.WindowRepository, days int, now func() time.Time, loc *time.Location, log *logger.Logger) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Lifecycle{windows: windows, days: days, now: now, loc: loc, logger: log}
}

// Today returns the current calendar date.
func (l *Lifecycle) Today() time.Time {
	return database.Day(l.now().In(l.loc))
}

// Bounds returns the first and last monitored day for a hearing date.
func (l *Lifecycle) Bounds(hearing time.Time) (start, end time.Time) {
	trigger := database.Day(hearing)
	return trigger.AddDate(0, 0, 1), trigger.AddDate(0, 0, l.days)
}

// Open returns the window for (caseID, hearing). An active window is
// returned unchanged, an inactive one is reset to active_waiting, and a
// missing one is created.
func (l *Lifecycle) Open(caseID uint, hearing time.Time) (*database.MonitoringWindow, error) {
	trigger := database.Day(hearing)
	start, end := l.Bounds(trigger)

	existing, err := l.windows.FindByTrigger(caseID, trigger)
	switch {
	case err == nil:
		if existing.IsActive {
			return existing, nil
		}
		reset(existing, start, end)
		if err := l.windows.Save(existing); err != nil {
			return nil, err
		}
		l.logger.Info("Monitoring window reactivated", "window_id", existing.ID, "case_id", caseID,
			"trigger", trigger.Format("2006-01-02"))
		return existing, nil
	case !apperr.IsKind(err, apperr.KindNotFound):
		return nil, err
	}

	w := &database.MonitoringWindow{
		CaseID:      caseID,
		TriggerDate: trigger,
		StartDate:   start,
		EndDate:     end,
		State:       database.WindowActiveWaiting,
		IsActive:    true,
	}
	created, err := l.windows.Create(w)
	if err != nil {
		if apperr.IsKind(err, apperr.KindDuplicateConflict) && created != nil {
			return created, nil
		}
		return nil, err
	}

	l.logger.Info("Monitoring window opened", "window_id", created.ID, "case_id", caseID,
		"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))
	return created, nil
}

func reset(w *database.MonitoringWindow, start, end time.Time) {
	w.StartDate = start
	w.EndDate = end
	w.State = database.WindowActiveWaiting
	w.IsActive = true
	w.OrderFound = false
	w.FoundOrderID = nil
	w.CheckCount = 0
	w.LastCheckAt = nil
	w.LastError = ""
	w.ClosedAt = nil
}

// Expire closes every active window whose end date has passed and returns
// how many were closed.
func (l *Lifecycle) Expire() (int, error) {
	windows, err := l.windows.Active()
	if err != nil {
		return 0, err
	}

	today := l.Today()
	expired := 0
	for i := range windows {
		w := &windows[i]
		if !w.EndDate.Before(today) {
			continue
		}
		now := l.now()
		w.State = database.WindowClosedExpired
		w.IsActive = false
		w.ClosedAt = &now
		if err := l.windows.Save(w); err != nil {
			return expired, err
		}
		expired++
		l.logger.Info("Monitoring window expired", "window_id", w.ID, "case_id", w.CaseID,
			"order_found", w.OrderFound)
	}
	return expired, nil
}

// Active returns active windows that have not ended.
func (l *Lifecycle) Active() ([]database.MonitoringWindow, error) {
	windows, err := l.windows.Active()
	if err != nil {
		return nil, err
	}
	today := l.Today()
	out := windows[:0]
	for _, w := range windows {
		if !w.EndDate.Before(today) {
			out = append(out, w)
		}
	}
	return out, nil
}

// Due returns active windows whose date range covers today.
func (l *Lifecycle) Due() ([]database.MonitoringWindow, error) {
	windows, err := l.Active()
	if err != nil {
		return nil, err
	}
	today := l.Today()
	out := windows[:0]
	for _, w := range windows {
		if !w.StartDate.After(today) {
			out = append(out, w)
		}
	}
	return out, nil
}
