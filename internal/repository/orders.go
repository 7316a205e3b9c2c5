package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
)

// Stage names a pipeline stage whose completion is tracked by a flag.
type Stage string

const (
	StageRetrieval      Stage = "retrieval"
	StageExtraction     Stage = "extraction"
	StageClassification Stage = "classification"
)

// OrderRepository owns order records and their stage flags. Flag
// transitions are conditional updates so a repeated or concurrent
// transition for the same order affects zero rows.
type OrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewOrderRepository(db *gorm.DB, now func() time.Time) *OrderRepository {
	if now == nil {
		now = time.Now
	}
	return &OrderRepository{db: db, now: now}
}

// AddDiscovered stores orders not seen before for caseID and returns only
// the newly created rows. Duplicates on (case, order number, order date)
// are skipped, both within the batch and against stored rows.
func (r *OrderRepository) AddDiscovered(caseID uint, discovered []database.DiscoveredOrder) ([]database.Order, error) {
	const op = "orders.AddDiscovered"

	type key struct {
		number int
		date   time.Time
	}
	seen := make(map[key]bool, len(discovered))
	var created []database.Order

	for _, d := range discovered {
		date := database.Day(d.OrderDate)
		k := key{d.OrderNumber, date}
		if seen[k] {
			continue
		}
		seen[k] = true

		var count int64
		err := r.db.Model(&database.Order{}).
			Where("case_id = ? AND order_number = ? AND order_date = ?", caseID, d.OrderNumber, date).
			Count(&count).Error
		if err != nil {
			return created, classify(op, err)
		}
		if count > 0 {
			continue
		}

		order := database.Order{
			CaseID:      caseID,
			OrderNumber: d.OrderNumber,
			OrderDate:   date,
			Description: d.Description,
			SourceURL:   d.SourceURL,
		}
		if err := r.db.Create(&order).Error; err != nil {
			if isDuplicate(err) {
				continue
			}
			return created, classify(op, err)
		}
		created = append(created, order)
	}

	return created, nil
}

func (r *OrderRepository) Get(id uint) (*database.Order, error) {
	var o database.Order
	if err := r.db.First(&o, id).Error; err != nil {
		return nil, classify("orders.Get", err)
	}
	return &o, nil
}

// ListByCase returns every order of a case by order number, then date.
func (r *OrderRepository) ListByCase(caseID uint) ([]database.Order, error) {
	var orders []database.Order
	err := r.db.Where("case_id = ?", caseID).
		Order("order_number ASC, order_date ASC").
		Find(&orders).Error
	return orders, classify("orders.ListByCase", err)
}

// Pending returns the orders of caseID that are ready for stage: the
// previous stage's flag is set and this stage's flag is not. Retrieval
// additionally excludes orders at or above maxRetries. caseID 0 spans all
// cases.
func (r *OrderRepository) Pending(caseID uint, stage Stage, maxRetries int) ([]database.Order, error) {
	q := r.db.Model(&database.Order{})
	if caseID != 0 {
		q = q.Where("case_id = ?", caseID)
	}

	switch stage {
	case StageRetrieval:
		q = q.Where("document_retrieved = ? AND source_url <> ''", false)
		if maxRetries > 0 {
			q = q.Where("retry_count < ?", maxRetries)
		}
	case StageExtraction:
		q = q.Where("document_retrieved = ? AND text_extracted = ?", true, false)
	case StageClassification:
		q = q.Where("text_extracted = ? AND classified = ?", true, false)
	default:
		return nil, apperr.New(apperr.KindValidation, "orders.Pending", "unknown stage "+string(stage))
	}

	var orders []database.Order
	err := q.Order("case_id ASC, order_number ASC, order_date ASC").Find(&orders).Error
	return orders, classify("orders.Pending", err)
}

// Classified returns orders of caseID whose classification flag is set.
func (r *OrderRepository) Classified(caseID uint) ([]database.Order, error) {
	var orders []database.Order
	err := r.db.Where("case_id = ? AND classified = ?", caseID, true).
		Order("order_number ASC, order_date ASC").
		Find(&orders).Error
	return orders, classify("orders.Classified", err)
}

// MarkRetrieved flips document_retrieved. It returns false when the flag
// was already set.
func (r *OrderRepository) MarkRetrieved(id uint, path string, size int64) (bool, error) {
	now := r.now()
	res := r.db.Model(&database.Order{}).
		Where("id = ? AND document_retrieved = ?", id, false).
		Updates(map[string]interface{}{
			"document_retrieved": true,
			"document_path":      path,
			"document_size":      size,
			"last_error":         "",
			"last_attempt_at":    now,
		})
	if res.Error != nil {
		return false, classify("orders.MarkRetrieved", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkExtracted flips text_extracted, only after retrieval.
func (r *OrderRepository) MarkExtracted(id uint) (bool, error) {
	updated, err := r.markExtracted(r.db, id)
	return updated, classify("orders.MarkExtracted", err)
}

// CompleteExtraction stores the text of an order and flips text_extracted
// in one transaction. When the flag is already set, or the document is not
// retrieved, nothing is written and false is returned.
func (r *OrderRepository) CompleteExtraction(text *database.ExtractedText) (bool, error) {
	const op = "orders.CompleteExtraction"
	var updated bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if updated, err = r.markExtracted(tx, text.OrderID); err != nil {
			return classify(op, err)
		}
		if !updated {
			return nil
		}
		return upsertText(tx, op, text)
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

func (r *OrderRepository) markExtracted(tx *gorm.DB, id uint) (bool, error) {
	res := tx.Model(&database.Order{}).
		Where("id = ? AND document_retrieved = ? AND text_extracted = ?", id, true, false).
		Updates(map[string]interface{}{
			"text_extracted":  true,
			"last_error":      "",
			"last_attempt_at": r.now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkClassified flips classified, only after extraction.
func (r *OrderRepository) MarkClassified(id uint) (bool, error) {
	now := r.now()
	res := r.db.Model(&database.Order{}).
		Where("id = ? AND text_extracted = ? AND classified = ?", id, true, false).
		Updates(map[string]interface{}{
			"classified":      true,
			"last_error":      "",
			"last_attempt_at": now,
		})
	if res.Error != nil {
		return false, classify("orders.MarkClassified", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RecordFailure increments the retry counter and stores the error text.
func (r *OrderRepository) RecordFailure(id uint, message string) error {
	err := r.db.Model(&database.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count":     gorm.Expr("retry_count + 1"),
			"last_error":      message,
			"last_attempt_at": r.now(),
		}).Error
	return classify("orders.RecordFailure", err)
}

// ResetRetries clears the retry counter so a capped order can be retried.
func (r *OrderRepository) ResetRetries(id uint) error {
	res := r.db.Model(&database.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count": 0,
			"last_error":  "",
		})
	if res.Error != nil {
		return classify("orders.ResetRetries", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "orders.ResetRetries", "order not found")
	}
	return nil
}

// LatestOrderDate returns the most recent order date stored for a case,
// or the zero time when it has none.
func (r *OrderRepository) LatestOrderDate(caseID uint) (time.Time, error) {
	var o database.Order
	err := r.db.Where("case_id = ?", caseID).Order("order_date DESC").Limit(1).Find(&o).Error
	if err != nil {
		return time.Time{}, classify("orders.LatestOrderDate", err)
	}
	return o.OrderDate, nil
}
