package database

import "time"

// CaseDetails is what the detail source reports for one case.
type CaseDetails struct {
	CaseType        string
	FilingNumber    string
	FilingDate      *time.Time
	RegistrationNo  string
	Petitioner      string
	Respondent      string
	PetitionerAdv   string
	RespondentAdv   string
	Stage           string
	CourtName       string
	JudgeName       string
	FirstHearing    *time.Time
	NextHearingDate *time.Time
}

// DiscoveredOrder is one row of a case's order listing before it is stored.
type DiscoveredOrder struct {
	OrderNumber int       `json:"order_number"`
	OrderDate   time.Time `json:"order_date"`
	Description string    `json:"description"`
	SourceURL   string    `json:"source_url"`
}

// OrderWithSummary pairs a classified order with its summary.
type OrderWithSummary struct {
	Order   Order
	Summary OrderSummary
}

// Day truncates t to its calendar date in t's own location and returns that
// date at UTC midnight. All date-only columns are stored this way.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
