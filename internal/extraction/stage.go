package extraction

import (
	"context"
	"strings"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/blob"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

type Orders interface {
	Get(id uint) (*database.Order, error)
	// CompleteExtraction stores text and sets text_extracted atomically,
	// reporting false when another run got there first.
	CompleteExtraction(text *database.ExtractedText) (bool, error)
	RecordFailure(id uint, message string) error
}

// Stage is the extraction stage.
type Stage struct {
	orders    Orders
	blobs     blob.Store
	extractor Extractor
	logger    *logger.Logger
}

type Result struct {
	OrderID   uint `json:"order_id"`
	PageCount int  `json:"page_count"`
	WordCount int  `json:"word_count"`
	Skipped   bool `json:"skipped"`
}

func NewStage(orders Orders, blobs blob.Store, extractor Extractor, log *logger.Logger) *Stage {
	if log == nil {
		log = logger.NewNop()
	}
	return &Stage{orders: orders, blobs: blobs, extractor: extractor, logger: log}
}

// Extract converts the stored document of one order to text. It runs only
// for retrieved, not yet extracted orders and sets the flag only when the
// cleaned text is non-empty.
func (s *Stage) Extract(ctx context.Context, orderID uint) (*Result, error) {
	const op = "extraction.Extract"

	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if !order.DocumentRetrieved {
		return nil, apperr.New(apperr.KindValidation, op, "document has not been retrieved")
	}
	if order.TextExtracted {
		return &Result{OrderID: order.ID, Skipped: true}, nil
	}

	log := s.logger.With("order_id", order.ID, "case_id", order.CaseID)

	text, err := s.extract(ctx, order)
	if err != nil {
		log.Warn("Text extraction failed", "error", err)
		if recErr := s.orders.RecordFailure(order.ID, apperr.Sanitize(err)); recErr != nil {
			log.Error("Failed to record extraction failure", "error", recErr)
		}
		return nil, err
	}

	updated, err := s.orders.CompleteExtraction(text)
	if err != nil {
		return nil, err
	}
	if !updated {
		log.Info("Text already extracted by another run")
		return &Result{OrderID: order.ID, Skipped: true}, nil
	}

	log.Info("Text extracted", "pages", text.PageCount, "words", text.WordCount)
	return &Result{OrderID: order.ID, PageCount: text.PageCount, WordCount: text.WordCount}, nil
}

func (s *Stage) extract(ctx context.Context, order *database.Order) (*database.ExtractedText, error) {
	const op = "extraction.Extract"

	document, err := s.blobs.Get(order.DocumentPath)
	if err != nil {
		return nil, err
	}

	pages, err := s.extractor.Extract(ctx, document)
	if err != nil {
		return nil, err
	}

	raw := strings.Join(pages, "\n\n")
	cleaned := CleanText(raw)
	if cleaned == "" {
		return nil, apperr.Wrapf(apperr.KindInvalidResponse, op, ErrEmptyResult, "extraction returned no text")
	}

	return &database.ExtractedText{
		OrderID:     order.ID,
		RawText:     raw,
		CleanedText: cleaned,
		PageCount:   len(pages),
		WordCount:   WordCount(cleaned),
	}, nil
}
