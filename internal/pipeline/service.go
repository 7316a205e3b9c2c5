// Package pipeline drives cases through detail extraction, order discovery
// and the per-order retrieval, extraction and classification stages.
package pipeline

import (
	"context"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/cache"
	"github.com/JustJay7/court-case-monitor/internal/classifier"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/extraction"
	"github.com/JustJay7/court-case-monitor/internal/fetcher"
	"github.com/JustJay7/court-case-monitor/internal/identifier"
	"github.com/JustJay7/court-case-monitor/internal/repository"
	"github.com/JustJay7/court-case-monitor/internal/scraper"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

// maxRawLog bounds the page HTML kept on a fetch log row.
const maxRawLog = 64 * 1024

// WindowOpener opens a monitoring window for a hearing date.
type WindowOpener interface {
	Open(caseID uint, hearing time.Time) (*database.MonitoringWindow, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store      *repository.Store
	Codec      *identifier.Codec
	Source     scraper.Source
	Cache      cache.Cache
	Retrieval  *fetcher.Stage
	Extraction *extraction.Stage
	Classifier *classifier.Stage
	Windows    WindowOpener
}

type Options struct {
	ItemDelay  time.Duration
	MaxRetries int
	Sleep      classifier.Sleeper
	Now        func() time.Time
	Location   *time.Location
}

// Service runs pipeline operations for one case or order at a time.
type Service struct {
	Deps
	opts   Options
	logger *logger.Logger
}

func New(deps Deps, opts Options, log *logger.Logger) *Service {
	if opts.Sleep == nil {
		opts.Sleep = classifier.ContextSleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{Deps: deps, opts: opts, logger: log}
}

// today is the current calendar date in the configured zone.
func (s *Service) today() time.Time {
	return database.Day(s.opts.Now().In(s.opts.Location))
}

// ExtractDetails reads case details from the detail source and stores them.
// Details are written once; force refetches and overwrites them.
func (s *Service) ExtractDetails(ctx context.Context, caseID uint, force bool) (*database.Case, error) {
	c, err := s.Store.Cases.Get(caseID)
	if err != nil {
		return nil, err
	}
	if c.DetailsExtracted && !force {
		return c, nil
	}

	snap, err := s.lookup(ctx, c, force, "details")
	if err != nil {
		return nil, err
	}
	if snap.Details != nil {
		if _, err := s.Store.Cases.UpdateDetails(c.ID, *snap.Details, force); err != nil {
			return nil, err
		}
		if snap.Details.NextHearingDate != nil {
			if _, err := s.NoteHearing(c.ID, *snap.Details.NextHearingDate); err != nil {
				s.logger.Warn("Failed to record hearing date", "case_id", c.ID, "error", err)
			}
		}
	}

	s.logger.Info("Case details extracted", "case_id", c.ID, "cnr", c.CNR)
	return s.Store.Cases.Get(c.ID)
}

// Discovery is the outcome of one order discovery run.
type Discovery struct {
	CaseID  uint             `json:"case_id"`
	Listed  int              `json:"listed"`
	Created []database.Order `json:"created"`
}

// DiscoverOrders reads the order listing and stores orders not seen before.
// fresh bypasses the detail cache.
func (s *Service) DiscoverOrders(ctx context.Context, caseID uint, fresh bool) (*Discovery, error) {
	c, err := s.Store.Cases.Get(caseID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, apperr.New(apperr.KindValidation, "pipeline.DiscoverOrders", "case is inactive")
	}

	snap, err := s.lookup(ctx, c, fresh, "discover")
	if err != nil {
		return nil, err
	}

	created, err := s.Store.Orders.AddDiscovered(c.ID, snap.Orders)
	if err != nil {
		return nil, err
	}

	if snap.Details != nil {
		if !c.DetailsExtracted {
			if _, err := s.Store.Cases.UpdateDetails(c.ID, *snap.Details, false); err != nil {
				s.logger.Warn("Failed to store case details", "case_id", c.ID, "error", err)
			}
		}
		if snap.Details.NextHearingDate != nil {
			if _, err := s.NoteHearing(c.ID, *snap.Details.NextHearingDate); err != nil {
				s.logger.Warn("Failed to record hearing date", "case_id", c.ID, "error", err)
			}
		}
	}

	if !c.InitialOrdersDownloaded {
		if err := s.Store.Cases.MarkInitialOrdersDownloaded(c.ID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Orders discovered", "case_id", c.ID, "cnr", c.CNR, "listed", len(snap.Orders), "new", len(created))
	return &Discovery{CaseID: c.ID, Listed: len(snap.Orders), Created: created}, nil
}

// lookup returns the detail source snapshot for a case, from the cache
// unless fresh is set. Every source call is logged.
func (s *Service) lookup(ctx context.Context, c *database.Case, fresh bool, purpose string) (*cache.Snapshot, error) {
	if s.Cache != nil {
		if fresh {
			s.Cache.Delete(c.CNR)
		} else if snap, ok := s.Cache.Get(c.CNR); ok {
			s.logger.Debug("Detail cache hit", "cnr", c.CNR)
			return snap, nil
		}
	}

	id, err := s.Codec.Decode(c.CNR)
	if err != nil {
		return nil, err
	}

	snap, err := s.Source.Fetch(ctx, id)

	entry := &database.FetchLog{CaseID: c.ID, CNR: c.CNR, Purpose: purpose, Success: err == nil}
	if err != nil {
		entry.ErrorMessage = apperr.Sanitize(err)
		s.logger.Error("Detail source failed", "case_id", c.ID, "cnr", c.CNR, "error", err)
	} else {
		entry.RawResponse = snap.Raw
		if len(entry.RawResponse) > maxRawLog {
			entry.RawResponse = entry.RawResponse[:maxRawLog]
		}
	}
	s.Store.Cases.LogFetch(entry)

	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.Set(c.CNR, snap)
	}
	return snap, nil
}

// NoteHearing records a next-hearing date for a case and opens a window
// for it when the date is today or later and either moved the stored date
// forward or has no window yet. It reports whether a window was opened.
func (s *Service) NoteHearing(caseID uint, hearing time.Time) (bool, error) {
	hearing = database.Day(hearing)
	if hearing.Before(s.today()) {
		return false, nil
	}

	changed, err := s.Store.Cases.SetNextHearing(caseID, hearing)
	if err != nil {
		return false, err
	}
	if !changed {
		_, err := s.Store.Windows.FindByTrigger(caseID, hearing)
		switch {
		case err == nil:
			return false, nil
		case !apperr.IsKind(err, apperr.KindNotFound):
			return false, err
		}
	}
	if s.Windows == nil {
		return false, nil
	}

	if _, err := s.Windows.Open(caseID, hearing); err != nil {
		return false, err
	}
	return true, nil
}

// Rollup regenerates the progression summary of a case.
func (s *Service) Rollup(ctx context.Context, caseID uint) (*database.CaseRollup, error) {
	if _, err := s.Store.Cases.Get(caseID); err != nil {
		return nil, err
	}
	return s.Classifier.Rollup(ctx, caseID)
}
