package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/classifier"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/guard"
	"github.com/JustJay7/court-case-monitor/internal/pipeline"
	"github.com/JustJay7/court-case-monitor/internal/repository"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

// ErrSweepInProgress is returned when another sweep holds the lock.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Pipeline is the part of the pipeline service a sweep drives.
type Pipeline interface {
	DiscoverOrders(ctx context.Context, caseID uint, fresh bool) (*pipeline.Discovery, error)
	ProcessOrders(ctx context.Context, orders []database.Order) *pipeline.Report
}

// Cases reads case records.
type Cases interface {
	Get(id uint) (*database.Case, error)
}

type Options struct {
	ItemDelay time.Duration
	Sleep     classifier.Sleeper
}

// Scheduler runs sweeps over due windows, one at a time.
type Scheduler struct {
	lifecycle *Lifecycle
	windows   *repository.WindowRepository
	cases     Cases
	pipeline  Pipeline
	lock      *guard.SchedulerLock
	digest    *Digest
	opts      Options
	logger    *logger.Logger
}

// NewScheduler builds a scheduler. digest may be nil.
func NewScheduler(lifecycle *Lifecycle, windows *repository.WindowRepository, cases Cases, p Pipeline,
	lock *guard.SchedulerLock, digest *Digest, opts Options, log *logger.Logger) *Scheduler {
	if opts.Sleep == nil {
		opts.Sleep = classifier.ContextSleep
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		lifecycle: lifecycle,
		windows:   windows,
		cases:     cases,
		pipeline:  p,
		lock:      lock,
		digest:    digest,
		opts:      opts,
		logger:    log,
	}
}

// WindowResult is the outcome of checking one window.
type WindowResult struct {
	WindowID     uint   `json:"window_id"`
	CaseID       uint   `json:"case_id"`
	State        string `json:"state"`
	NewOrders    int    `json:"new_orders"`
	NextWindowID uint   `json:"next_window_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Expired    int            `json:"expired"`
	Checked    int            `json:"checked"`
	Found      int            `json:"found"`
	Failed     int            `json:"failed"`
	DigestSent bool           `json:"digest_sent"`
	Windows    []WindowResult `json:"windows"`
}

// Sweep expires ended windows, then checks each due window in turn. A
// failing window is recorded and the sweep moves on.
func (s *Scheduler) Sweep(ctx context.Context) (*SweepReport, error) {
	const op = "monitor.Sweep"

	token, ok := s.lock.TryAcquire()
	if !ok {
		return nil, apperr.Wrap(apperr.KindDuplicateConflict, op, ErrSweepInProgress)
	}
	defer s.lock.Release(token)

	report := &SweepReport{StartedAt: s.lifecycle.now()}

	expired, err := s.lifecycle.Expire()
	report.Expired = expired
	if err != nil {
		return report, err
	}

	due, err := s.lifecycle.Due()
	if err != nil {
		return report, err
	}
	s.logger.Info("Sweep started", "due", len(due), "expired", expired)

	for i := range due {
		if i > 0 {
			if err := s.opts.Sleep(ctx, s.opts.ItemDelay); err != nil {
				s.logger.Warn("Sweep interrupted", "error", err)
				break
			}
		}

		result := s.check(ctx, due[i])
		report.Checked++
		switch {
		case result.Error != "":
			report.Failed++
		case result.State == database.WindowClosedFound:
			report.Found++
		}
		report.Windows = append(report.Windows, result)
	}

	if s.digest != nil {
		sent, err := s.digest.SendDaily(ctx)
		if err != nil {
			s.logger.Error("Daily digest failed", "error", err)
		}
		report.DigestSent = sent
	}

	report.FinishedAt = s.lifecycle.now()
	s.logger.Info("Sweep finished", "checked", report.Checked, "found", report.Found, "failed", report.Failed)
	return report, nil
}

// check runs one window through active_checking and back to waiting, or on
// to closed_found.
func (s *Scheduler) check(ctx context.Context, w database.MonitoringWindow) WindowResult {
	result := WindowResult{WindowID: w.ID, CaseID: w.CaseID, State: w.State}
	log := s.logger.With("window_id", w.ID, "case_id", w.CaseID)

	// A window left in active_checking was interrupted by a previous
	// process and is checked again.
	if w.State == database.WindowActiveWaiting {
		moved, err := s.windows.TransitionState(w.ID, database.WindowActiveWaiting, database.WindowActiveChecking)
		if err != nil {
			result.Error = apperr.Sanitize(err)
			log.Error("Failed to start window check", "error", err)
			return result
		}
		if !moved {
			log.Debug("Window changed state, skipping")
			return result
		}
		w.State = database.WindowActiveChecking
	}

	disc, err := s.pipeline.DiscoverOrders(ctx, w.CaseID, true)
	now := s.lifecycle.now()
	w.CheckCount++
	w.LastCheckAt = &now

	if err != nil {
		w.State = database.WindowActiveWaiting
		w.LastError = apperr.Sanitize(err)
		result.Error = w.LastError
		log.Warn("Discovery failed", "error", err)
		s.save(&w, log)
		result.State = w.State
		return result
	}

	if len(disc.Created) == 0 {
		w.State = database.WindowActiveWaiting
		w.LastError = ""
		s.save(&w, log)
		result.State = w.State
		log.Debug("No new orders")
		return result
	}

	result.NewOrders = len(disc.Created)
	processed := s.pipeline.ProcessOrders(ctx, disc.Created)

	first := disc.Created[0].ID
	w.OrderFound = true
	w.FoundOrderID = &first
	w.State = database.WindowClosedFound
	w.IsActive = false
	w.ClosedAt = &now
	w.LastError = ""
	if !s.save(&w, log) {
		result.Error = "failed to close window"
		return result
	}
	result.State = w.State
	log.Info("New orders found, window closed", "new_orders", len(disc.Created),
		"processed", processed.Succeeded, "failed", processed.Failed)

	c, err := s.cases.Get(w.CaseID)
	if err != nil {
		log.Error("Failed to reload case", "error", err)
		return result
	}
	if c.NextHearingDate != nil && database.Day(*c.NextHearingDate).After(w.TriggerDate) {
		next, err := s.lifecycle.Open(w.CaseID, *c.NextHearingDate)
		if err != nil {
			log.Error("Failed to open next window", "error", err)
			return result
		}
		result.NextWindowID = next.ID
	}
	return result
}

func (s *Scheduler) save(w *database.MonitoringWindow, log *logger.Logger) bool {
	if err := s.windows.Save(w); err != nil {
		log.Error("Failed to save window", "error", err)
		return false
	}
	return true
}

// Run sweeps every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Monitor started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Monitor stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				if errors.Is(err, ErrSweepInProgress) {
					s.logger.Info("Sweep skipped, previous sweep still running")
					continue
				}
				s.logger.Error("Sweep failed", "error", err)
			}
		}
	}
}

// Lifecycle exposes the window lifecycle the scheduler uses.
func (s *Scheduler) Lifecycle() *Lifecycle {
	return s.lifecycle
}
