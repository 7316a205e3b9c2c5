package classifier

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

type Orders interface {
	Get(id uint) (*database.Order, error)
	MarkClassified(id uint) (bool, error)
	RecordFailure(id uint, message string) error
}

type Cases interface {
	Get(id uint) (*database.Case, error)
}

type Artifacts interface {
	GetText(orderID uint) (*database.ExtractedText, error)
	SaveSummary(summary *database.OrderSummary) error
	SummariesForCase(caseID uint) ([]database.OrderWithSummary, error)
	SaveRollup(rollup *database.CaseRollup) error
}

type Options struct {
	MaxChars int
	Backoff  Backoff
}

// Stage is the classification stage.
type Stage struct {
	orders    Orders
	cases     Cases
	artifacts Artifacts
	model     Model
	opts      Options
	logger    *logger.Logger
}

type Result struct {
	OrderID         uint       `json:"order_id"`
	NextHearingDate *time.Time `json:"next_hearing_date,omitempty"`
	Confidence      float64    `json:"confidence"`
	Skipped         bool       `json:"skipped"`
}

func NewStage(orders Orders, cases Cases, artifacts Artifacts, model Model, opts Options, log *logger.Logger) *Stage {
	if opts.MaxChars <= 0 {
		opts.MaxChars = 30000
	}
	if opts.Backoff.Attempts <= 0 {
		opts.Backoff.Attempts = 3
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff.Base = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Stage{orders: orders, cases: cases, artifacts: artifacts, model: model, opts: opts, logger: log}
}

// Classify classifies one extracted order under its case's perspective.
// Already classified orders are skipped unless force is set; force is the
// reclassification path and replaces the stored summary.
func (s *Stage) Classify(ctx context.Context, orderID uint, force bool) (*Result, error) {
	const op = "classifier.Classify"

	order, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if !order.TextExtracted {
		return nil, apperr.New(apperr.KindValidation, op, "text has not been extracted")
	}
	if order.Classified && !force {
		return &Result{OrderID: order.ID, Skipped: true}, nil
	}

	c, err := s.cases.Get(order.CaseID)
	if err != nil {
		return nil, err
	}
	text, err := s.artifacts.GetText(order.ID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With("order_id", order.ID, "case_id", order.CaseID, "cnr", c.CNR)

	var answer string
	err = s.opts.Backoff.Do(ctx, func() error {
		var callErr error
		answer, callErr = s.model.Complete(ctx, classifyPrompt(c.Perspective), Truncate(text.CleanedText, s.opts.MaxChars))
		if callErr != nil && apperr.Retryable(callErr) {
			log.Warn("Classification call failed, retrying", "error", callErr)
		}
		return callErr
	})
	if err != nil {
		s.fail(log, order.ID, err)
		return nil, err
	}

	result, err := ParseClassification(answer)
	if err != nil {
		log.Warn("Classification response rejected", "error", err)
		s.fail(log, order.ID, err)
		return nil, err
	}

	actions, _ := json.Marshal(result.ActionItems)
	summary := &database.OrderSummary{
		OrderID:             order.ID,
		CaseTitle:           result.CaseTitle,
		CaseCategory:        result.CaseCategory,
		OrderType:           result.OrderType,
		Summary:             result.Summary,
		OperativePortion:    result.OperativePortion,
		NextHearingDate:     result.NextHearingDate,
		IsFinalOrder:        result.IsFinalOrder,
		IsInterimOrder:      result.IsInterimOrder,
		IsAdjournment:       result.IsAdjournment,
		PreparationGuidance: result.PreparationGuidance,
		ActionItems:         datatypes.JSON(actions),
		Confidence:          result.Confidence,
		Perspective:         c.Perspective,
		ModelName:           s.model.Name(),
	}
	if err := s.artifacts.SaveSummary(summary); err != nil {
		return nil, err
	}

	updated, err := s.orders.MarkClassified(order.ID)
	if err != nil {
		return nil, err
	}

	log.Info("Order classified", "order_type", result.OrderType, "confidence", result.Confidence, "forced", force)
	return &Result{
		OrderID:         order.ID,
		NextHearingDate: result.NextHearingDate,
		Confidence:      result.Confidence,
		Skipped:         !updated && !force,
	}, nil
}

func (s *Stage) fail(log *logger.Logger, orderID uint, err error) {
	if recErr := s.orders.RecordFailure(orderID, apperr.Sanitize(err)); recErr != nil {
		log.Error("Failed to record classification failure", "error", recErr)
	}
}
