package fetcher

import (
	"context"
	"errors"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/blob"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

// Orders is the slice of the order repository the stage needs.
type Orders interface {
	Get(id uint) (*database.Order, error)
	MarkRetrieved(id uint, path string, size int64) (bool, error)
	RecordFailure(id uint, message string) error
}

type Options struct {
	AllowedDomains []string
	MinBytes       int
	MaxRetries     int
}

// Stage is the retrieval stage.
type Stage struct {
	orders Orders
	blobs  blob.Store
	source Source
	opts   Options
	logger *logger.Logger
}

// Result describes one retrieval call. Skipped is set when the document was
// already retrieved and nothing was done.
type Result struct {
	OrderID uint   `json:"order_id"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Skipped bool   `json:"skipped"`
}

func NewStage(orders Orders, blobs blob.Store, source Source, opts Options, log *logger.Logger) *Stage {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Stage{orders: orders, blobs: blobs, source: source, opts: opts, logger: log}
}

// Retrieve downloads and stores the document of one order. The order is
// reloaded first; an already retrieved order is a no-op and an order at
// the retry ceiling is refused with ErrRetryLimitReached until reset.
func (s *Stage) Retrieve(ctx context.Context, orderID uint) (*Result, error) {
	const op = "fetcher.Retrieve"

	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.DocumentRetrieved {
		return &Result{OrderID: order.ID, Path: order.DocumentPath, Size: order.DocumentSize, Skipped: true}, nil
	}
	if order.RetryCount >= s.opts.MaxRetries {
		return nil, apperr.Wrapf(apperr.KindValidation, op, ErrRetryLimitReached,
			"retry limit of %d reached; reset the order to retry", s.opts.MaxRetries)
	}

	log := s.logger.With("order_id", order.ID, "case_id", order.CaseID)

	data, err := s.download(ctx, order)
	if err != nil {
		log.Warn("Document retrieval failed", "error", err, "retry_count", order.RetryCount+1)
		if recErr := s.orders.RecordFailure(order.ID, apperr.Sanitize(err)); recErr != nil {
			log.Error("Failed to record retrieval failure", "error", recErr)
		}
		return nil, err
	}

	key := blob.OrderKey(order.ID, order.OrderDate)
	if err := s.blobs.Put(key, data); err != nil {
		log.Error("Failed to store document", "error", err)
		if recErr := s.orders.RecordFailure(order.ID, "failed to store document"); recErr != nil {
			log.Error("Failed to record retrieval failure", "error", recErr)
		}
		return nil, err
	}

	size := int64(len(data))
	updated, err := s.orders.MarkRetrieved(order.ID, key, size)
	if err != nil {
		return nil, err
	}
	if !updated {
		// A concurrent run set the flag first.
		return &Result{OrderID: order.ID, Path: key, Size: size, Skipped: true}, nil
	}

	log.Info("Document retrieved", "size", size, "path", key)
	return &Result{OrderID: order.ID, Path: key, Size: size}, nil
}

func (s *Stage) download(ctx context.Context, order *database.Order) ([]byte, error) {
	if order.SourceURL == "" {
		return nil, apperr.Wrapf(apperr.KindValidation, "fetcher.Retrieve", ErrInvalidPayload, "order has no source url")
	}
	if err := CheckAllowed(order.SourceURL, s.opts.AllowedDomains); err != nil {
		return nil, err
	}

	resp, err := s.source.Fetch(ctx, order.SourceURL)
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = apperr.Wrapf(apperr.KindExternalUnavailable, "fetcher.Retrieve", errors.Join(ErrTransport, err), "document source unreachable")
		}
		return nil, err
	}

	if err := Validate(resp, s.opts.MinBytes); err != nil {
		return nil, err
	}
	return resp.Body, nil
}
