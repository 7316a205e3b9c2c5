package pipeline

import (
	"context"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/repository"
)

// Outcome reports how far one order got through the stages.
type Outcome struct {
	OrderID         uint             `json:"order_id"`
	Retrieved       bool             `json:"retrieved"`
	Extracted       bool             `json:"extracted"`
	Classified      bool             `json:"classified"`
	NextHearingDate *time.Time       `json:"next_hearing_date,omitempty"`
	FailedStage     repository.Stage `json:"failed_stage,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// ProcessOrder runs retrieval, extraction and classification for one order,
// stopping at the first stage that fails. Completed stages are skipped.
func (s *Service) ProcessOrder(ctx context.Context, orderID uint) (*Outcome, error) {
	out := &Outcome{OrderID: orderID}
	log := s.logger.With("order_id", orderID)

	if _, err := s.Retrieval.Retrieve(ctx, orderID); err != nil {
		return out.failed(repository.StageRetrieval, err)
	}
	out.Retrieved = true

	if _, err := s.Extraction.Extract(ctx, orderID); err != nil {
		return out.failed(repository.StageExtraction, err)
	}
	out.Extracted = true

	res, err := s.Classifier.Classify(ctx, orderID, false)
	if err != nil {
		return out.failed(repository.StageClassification, err)
	}
	out.Classified = true

	if res.NextHearingDate != nil {
		out.NextHearingDate = res.NextHearingDate
		order, err := s.Store.Orders.Get(orderID)
		if err == nil {
			_, err = s.NoteHearing(order.CaseID, *res.NextHearingDate)
		}
		if err != nil {
			log.Warn("Failed to record hearing date", "error", err)
		}
	}

	log.Info("Order processed")
	return out, nil
}

func (o *Outcome) failed(stage repository.Stage, err error) (*Outcome, error) {
	o.FailedStage = stage
	o.Error = apperr.Sanitize(err)
	return o, err
}

// Report summarizes a batch of processed orders.
type Report struct {
	CaseID    uint       `json:"case_id"`
	Processed int        `json:"processed"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Skipped   int        `json:"skipped"`
	Outcomes  []*Outcome `json:"outcomes"`
}

// ProcessOrders runs ProcessOrder over orders in sequence with the item
// delay between them. A failed order does not stop the batch.
func (s *Service) ProcessOrders(ctx context.Context, orders []database.Order) *Report {
	report := &Report{}
	for _, o := range orders {
		if report.CaseID == 0 {
			report.CaseID = o.CaseID
		}
		if !s.processable(o) {
			report.Skipped++
			continue
		}
		if report.Processed > 0 {
			if err := s.opts.Sleep(ctx, s.opts.ItemDelay); err != nil {
				break
			}
		}

		out, err := s.ProcessOrder(ctx, o.ID)
		report.Processed++
		report.Outcomes = append(report.Outcomes, out)
		if err != nil {
			report.Failed++
			s.logger.Warn("Order processing failed", "order_id", o.ID, "case_id", o.CaseID,
				"stage", out.FailedStage, "error", err)
			continue
		}
		report.Succeeded++
	}
	return report
}

// processable reports whether an order still has a stage it can run.
func (s *Service) processable(o database.Order) bool {
	if o.Classified {
		return false
	}
	if !o.DocumentRetrieved && (o.SourceURL == "" || o.RetryCount >= s.opts.MaxRetries) {
		return false
	}
	return true
}

// ProcessCase processes every unfinished order of a case.
func (s *Service) ProcessCase(ctx context.Context, caseID uint) (*Report, error) {
	c, err := s.Store.Cases.Get(caseID)
	if err != nil {
		return nil, err
	}

	orders, err := s.Store.Orders.ListByCase(c.ID)
	if err != nil {
		return nil, err
	}

	report := s.ProcessOrders(ctx, orders)
	report.CaseID = c.ID
	s.logger.Info("Case processed", "case_id", c.ID, "cnr", c.CNR,
		"processed", report.Processed, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

// Reclassification summarizes a perspective change.
type Reclassification struct {
	CaseID      uint   `json:"case_id"`
	Perspective string `json:"perspective"`
	Orders      int    `json:"orders"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
}

// Reclassify classifies every already classified order of the case again
// under the perspective stored on the case when it runs.
func (s *Service) Reclassify(ctx context.Context, caseID uint) (*Reclassification, error) {
	c, err := s.Store.Cases.Get(caseID)
	if err != nil {
		return nil, err
	}
	perspective := c.Perspective

	orders, err := s.Store.Orders.Classified(caseID)
	if err != nil {
		return nil, err
	}

	result := &Reclassification{CaseID: caseID, Perspective: perspective, Orders: len(orders)}
	for i, o := range orders {
		if i > 0 {
			if err := s.opts.Sleep(ctx, s.opts.ItemDelay); err != nil {
				return result, err
			}
		}
		if _, err := s.Classifier.Classify(ctx, o.ID, true); err != nil {
			result.Failed++
			s.logger.Warn("Reclassification failed", "order_id", o.ID, "case_id", caseID, "error", err)
			continue
		}
		result.Succeeded++
	}

	s.logger.Info("Case reclassified", "case_id", caseID, "perspective", perspective,
		"orders", result.Orders, "failed", result.Failed)
	return result, nil
}
