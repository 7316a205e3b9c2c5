package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/JustJay7/court-case-monitor/internal/database"
)

// ArtifactRepository stores the per-order and per-case derived records:
// extracted text, order summaries and case rollups. Each is one-to-one with
// its owner and written with replace semantics.
type ArtifactRepository struct {
	db *gorm.DB
}

func NewArtifactRepository(db *gorm.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// upsertText creates or replaces the extracted text of an order within tx.
func upsertText(tx *gorm.DB, op string, text *database.ExtractedText) error {
	var existing database.ExtractedText
	err := tx.Where("order_id = ?", text.OrderID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return classify(op, tx.Create(text).Error)
	case err != nil:
		return classify(op, err)
	}
	text.ID = existing.ID
	text.CreatedAt = existing.CreatedAt
	return classify(op, tx.Save(text).Error)
}

func (r *ArtifactRepository) GetText(orderID uint) (*database.ExtractedText, error) {
	var text database.ExtractedText
	if err := r.db.Where("order_id = ?", orderID).First(&text).Error; err != nil {
		return nil, classify("artifacts.GetText", err)
	}
	return &text, nil
}

// SaveSummary creates or fully replaces the summary of an order.
func (r *ArtifactRepository) SaveSummary(summary *database.OrderSummary) error {
	const op = "artifacts.SaveSummary"
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing database.OrderSummary
		err := tx.Where("order_id = ?", summary.OrderID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return classify(op, tx.Create(summary).Error)
		case err != nil:
			return classify(op, err)
		}
		summary.ID = existing.ID
		summary.CreatedAt = existing.CreatedAt
		return classify(op, tx.Save(summary).Error)
	})
}

func (r *ArtifactRepository) GetSummary(orderID uint) (*database.OrderSummary, error) {
	var summary database.OrderSummary
	if err := r.db.Where("order_id = ?", orderID).First(&summary).Error; err != nil {
		return nil, classify("artifacts.GetSummary", err)
	}
	return &summary, nil
}

// SummariesForCase returns every classified order of a case with its
// summary, by order number. Orders flagged classified but missing a summary
// row are skipped.
func (r *ArtifactRepository) SummariesForCase(caseID uint) ([]database.OrderWithSummary, error) {
	const op = "artifacts.SummariesForCase"

	var orders []database.Order
	err := r.db.Where("case_id = ? AND classified = ?", caseID, true).
		Order("order_number ASC, order_date ASC").
		Find(&orders).Error
	if err != nil {
		return nil, classify(op, err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	ids := make([]uint, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	var summaries []database.OrderSummary
	if err := r.db.Where("order_id IN ?", ids).Find(&summaries).Error; err != nil {
		return nil, classify(op, err)
	}
	byOrder := make(map[uint]database.OrderSummary, len(summaries))
	for _, s := range summaries {
		byOrder[s.OrderID] = s
	}

	out := make([]database.OrderWithSummary, 0, len(orders))
	for _, o := range orders {
		s, ok := byOrder[o.ID]
		if !ok {
			continue
		}
		out = append(out, database.OrderWithSummary{Order: o, Summary: s})
	}
	return out, nil
}

// SaveRollup replaces the rollup of a case. Nothing of the prior rollup is
// carried over.
func (r *ArtifactRepository) SaveRollup(rollup *database.CaseRollup) error {
	const op = "artifacts.SaveRollup"
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing database.CaseRollup
		err := tx.Where("case_id = ?", rollup.CaseID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return classify(op, tx.Create(rollup).Error)
		case err != nil:
			return classify(op, err)
		}
		rollup.ID = existing.ID
		rollup.CreatedAt = existing.CreatedAt
		return classify(op, tx.Save(rollup).Error)
	})
}

func (r *ArtifactRepository) GetRollup(caseID uint) (*database.CaseRollup, error) {
	var rollup database.CaseRollup
	if err := r.db.Where("case_id = ?", caseID).First(&rollup).Error; err != nil {
		return nil, classify("artifacts.GetRollup", err)
	}
	return &rollup, nil
}
