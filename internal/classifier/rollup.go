package classifier

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
)

// TimelineEntry is one dated event of a rollup.
type TimelineEntry struct {
	Date  string `json:"date"`
	Event string `json:"event"`
}

// Rollup is the validated case-level aggregate.
type Rollup struct {
	Narrative          string          `json:"narrative"`
	Timeline           []TimelineEntry `json:"timeline"`
	CurrentStage       string          `json:"current_stage"`
	PetitionerAdjourns int             `json:"petitioner_adjournments"`
	RespondentAdjourns int             `json:"respondent_adjournments"`
	CourtAdjourns      int             `json:"court_adjournments"`
	PendingActions     []string        `json:"pending_actions"`
}

// ParseRollup decodes a rollup answer with the same null-safe defaults as
// ParseClassification.
func ParseRollup(answer string) (*Rollup, error) {
	fields, err := decodeObject(answer)
	if err != nil {
		return nil, apperr.Wrapf(apperr.KindInvalidResponse, "classifier.ParseRollup", err, "rollup response was not a JSON object")
	}

	r := &Rollup{
		Narrative:      str(fields["narrative"]),
		CurrentStage:   str(fields["current_stage"]),
		PendingActions: list(fields["pending_actions"]),
		Timeline:       []TimelineEntry{},
	}

	if entries, ok := fields["timeline"].([]any); ok {
		for _, e := range entries {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			entry := TimelineEntry{Date: str(m["date"]), Event: str(m["event"])}
			if d, ok := ParseDate(entry.Date); ok {
				entry.Date = d.Format("2006-01-02")
			}
			if entry.Event != "" {
				r.Timeline = append(r.Timeline, entry)
			}
		}
	}

	if adj, ok := fields["adjournments"].(map[string]any); ok {
		r.PetitionerAdjourns = integer(adj["petitioner"])
		r.RespondentAdjourns = integer(adj["respondent"])
		r.CourtAdjourns = integer(adj["court"])
	}

	return r, nil
}

// Rollup regenerates the rollup of a case from all of its classified
// orders in one model call and replaces any stored rollup.
func (s *Stage) Rollup(ctx context.Context, caseID uint) (*database.CaseRollup, error) {
	const op = "classifier.Rollup"

	c, err := s.cases.Get(caseID)
	if err != nil {
		return nil, err
	}
	pairs, err := s.artifacts.SummariesForCase(caseID)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, apperr.New(apperr.KindValidation, op, "case has no classified orders")
	}

	log := s.logger.With("case_id", caseID, "cnr", c.CNR)

	var answer string
	err = s.opts.Backoff.Do(ctx, func() error {
		var callErr error
		answer, callErr = s.model.Complete(ctx, rollupPrompt(c.Perspective), rollupContext(c, pairs))
		return callErr
	})
	if err != nil {
		log.Warn("Rollup call failed", "error", err)
		return nil, err
	}

	parsed, err := ParseRollup(answer)
	if err != nil {
		log.Warn("Rollup response rejected", "error", err)
		return nil, err
	}

	timeline, _ := json.Marshal(parsed.Timeline)
	pending, _ := json.Marshal(parsed.PendingActions)
	rollup := &database.CaseRollup{
		CaseID:             caseID,
		Narrative:          parsed.Narrative,
		Timeline:           datatypes.JSON(timeline),
		CurrentStage:       parsed.CurrentStage,
		PetitionerAdjourns: parsed.PetitionerAdjourns,
		RespondentAdjourns: parsed.RespondentAdjourns,
		CourtAdjourns:      parsed.CourtAdjourns,
		PendingActions:     datatypes.JSON(pending),
		OrdersConsidered:   len(pairs),
		ModelName:          s.model.Name(),
	}
	if err := s.artifacts.SaveRollup(rollup); err != nil {
		return nil, err
	}

	log.Info("Case rollup generated", "orders", len(pairs))
	return rollup, nil
}
