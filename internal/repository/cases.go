package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/config"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/identifier"
)

// CaseRegistry owns case records. There is at most one record per CNR;
// records are deactivated instead of deleted.
type CaseRegistry struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCaseRegistry(db *gorm.DB, now func() time.Time) *CaseRegistry {
	if now == nil {
		now = time.Now
	}
	return &CaseRegistry{db: db, now: now}
}

// SeedDistricts upserts the district table by code.
func (r *CaseRegistry) SeedDistricts(districts []config.District) error {
	for _, d := range districts {
		row := database.District{Code: d.Code, Name: d.Name, BaseURL: d.BaseURL}
		err := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "base_url", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return classify("cases.SeedDistricts", err)
		}
	}
	return nil
}

// Register creates the case for id, or returns the existing record. An
// inactive record is reactivated. created reports whether a new row was
// inserted.
func (r *CaseRegistry) Register(id identifier.CaseIdentifier, advocateID *uint, perspective string) (c *database.Case, created bool, err error) {
	const op = "cases.Register"

	if !id.Valid() {
		return nil, false, apperr.New(apperr.KindValidation, op, "invalid case identifier")
	}
	if err := ValidatePerspective(perspective); err != nil {
		return nil, false, err
	}

	existing, err := r.GetByCNR(id.String())
	switch {
	case err == nil:
		if !existing.IsActive {
			if err := r.db.Model(existing).Update("is_active", true).Error; err != nil {
				return nil, false, classify(op, err)
			}
			existing.IsActive = true
		}
		return existing, false, nil
	case !apperr.IsKind(err, apperr.KindNotFound):
		return nil, false, err
	}

	var district database.District
	if err := r.db.Where("code = ?", id.District).First(&district).Error; err != nil {
		return nil, false, classify(op, fmt.Errorf("district %s: %w", id.District, err))
	}

	c = &database.Case{
		CNR:           id.String(),
		DistrictID:    district.ID,
		AdvocateID:    advocateID,
		Establishment: id.Establishment,
		SerialNumber:  id.Serial,
		FilingYear:    id.Year,
		IsActive:      true,
	}
	if perspective != "" {
		at := r.now()
		c.Perspective = perspective
		c.PerspectiveSetAt = &at
	}

	if err := r.db.Omit(clause.Associations).Create(c).Error; err != nil {
		if isDuplicate(err) {
			// Lost a race with a concurrent registration.
			existing, getErr := r.GetByCNR(id.String())
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, classify(op, err)
	}

	return c, true, nil
}

func (r *CaseRegistry) Get(id uint) (*database.Case, error) {
	var c database.Case
	if err := r.db.Preload("District").Preload("Advocate").First(&c, id).Error; err != nil {
		return nil, classify("cases.Get", err)
	}
	return &c, nil
}

func (r *CaseRegistry) GetByCNR(cnr string) (*database.Case, error) {
	var c database.Case
	if err := r.db.Preload("District").Where("cnr = ?", cnr).First(&c).Error; err != nil {
		return nil, classify("cases.GetByCNR", err)
	}
	return &c, nil
}

// List returns one page of cases, newest first, and the total count.
func (r *CaseRegistry) List(activeOnly bool, offset, limit int) ([]database.Case, int64, error) {
	q := r.db.Model(&database.Case{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify("cases.List", err)
	}

	var cases []database.Case
	if err := q.Preload("District").Order("created_at DESC").Offset(offset).Limit(limit).Find(&cases).Error; err != nil {
		return nil, 0, classify("cases.List", err)
	}
	return cases, total, nil
}

// UpdateDetails stores extracted detail fields. Details are written once;
// without force a second call is a no-op and returns false.
func (r *CaseRegistry) UpdateDetails(caseID uint, d database.CaseDetails, force bool) (bool, error) {
	updates := map[string]interface{}{
		"case_type":         d.CaseType,
		"filing_number":     d.FilingNumber,
		"filing_date":       d.FilingDate,
		"registration_no":   d.RegistrationNo,
		"petitioner":        d.Petitioner,
		"respondent":        d.Respondent,
		"petitioner_adv":    d.PetitionerAdv,
		"respondent_adv":    d.RespondentAdv,
		"stage":             d.Stage,
		"court_name":        d.CourtName,
		"judge_name":        d.JudgeName,
		"first_hearing":     d.FirstHearing,
		"next_hearing_date": d.NextHearingDate,
		"details_extracted": true,
	}

	q := r.db.Model(&database.Case{}).Where("id = ?", caseID)
	if !force {
		q = q.Where("details_extracted = ?", false)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, classify("cases.UpdateDetails", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetNextHearing records a later next-hearing date. It returns true only
// when the stored date changed.
func (r *CaseRegistry) SetNextHearing(caseID uint, date time.Time) (bool, error) {
	date = database.Day(date)
	res := r.db.Model(&database.Case{}).
		Where("id = ? AND (next_hearing_date IS NULL OR next_hearing_date < ?)", caseID, date).
		Update("next_hearing_date", date)
	if res.Error != nil {
		return false, classify("cases.SetNextHearing", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *CaseRegistry) MarkInitialOrdersDownloaded(caseID uint) error {
	err := r.db.Model(&database.Case{}).
		Where("id = ?", caseID).
		Update("initial_orders_downloaded", true).Error
	return classify("cases.MarkInitialOrdersDownloaded", err)
}

// Deactivate soft-deletes the case and parks its open windows as
// reactivatable.
func (r *CaseRegistry) Deactivate(caseID uint) error {
	const op = "cases.Deactivate"
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&database.Case{}).Where("id = ?", caseID).Update("is_active", false)
		if res.Error != nil {
			return classify(op, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.KindNotFound, op, "case not found")
		}
		now := r.now()
		err := tx.Model(&database.MonitoringWindow{}).
			Where("case_id = ? AND is_active = ?", caseID, true).
			Updates(map[string]interface{}{
				"is_active": false,
				"state":     database.WindowClosedReactivatable,
				"closed_at": now,
			}).Error
		return classify(op, err)
	})
}

// SetPerspective stores the represented-party perspective. It reports
// whether the value changed.
func (r *CaseRegistry) SetPerspective(caseID uint, perspective string) (bool, error) {
	const op = "cases.SetPerspective"
	if err := ValidatePerspective(perspective); err != nil {
		return false, err
	}

	c, err := r.Get(caseID)
	if err != nil {
		return false, err
	}
	if c.Perspective == perspective {
		return false, nil
	}

	err = r.db.Model(&database.Case{}).Where("id = ?", caseID).Updates(map[string]interface{}{
		"perspective":        perspective,
		"perspective_set_at": r.now(),
	}).Error
	if err != nil {
		return false, classify(op, err)
	}
	return true, nil
}

// LogFetch appends a detail-source call record.
func (r *CaseRegistry) LogFetch(entry *database.FetchLog) {
	if entry.QueryTime.IsZero() {
		entry.QueryTime = r.now()
	}
	r.db.Create(entry)
}

// CreateAdvocate stores an advocate reference record.
func (r *CaseRegistry) CreateAdvocate(name, email string) (*database.Advocate, error) {
	a := &database.Advocate{Name: name, Email: email}
	if err := r.db.Create(a).Error; err != nil {
		return nil, classify("cases.CreateAdvocate", err)
	}
	return a, nil
}

// FindAdvocateByEmail returns the advocate registered under email.
func (r *CaseRegistry) FindAdvocateByEmail(email string) (*database.Advocate, error) {
	var a database.Advocate
	err := r.db.Where("email = ?", email).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "cases.FindAdvocateByEmail", "advocate not found")
	}
	if err != nil {
		return nil, classify("cases.FindAdvocateByEmail", err)
	}
	return &a, nil
}

// ValidatePerspective accepts "", "petitioner" or "respondent".
func ValidatePerspective(p string) error {
	switch p {
	case "", database.PerspectivePetitioner, database.PerspectiveRespondent:
		return nil
	default:
		return apperr.New(apperr.KindValidation, "cases.ValidatePerspective",
			fmt.Sprintf("perspective must be %q or %q", database.PerspectivePetitioner, database.PerspectiveRespondent))
	}
}
