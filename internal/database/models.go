package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Window states.
const (
	WindowActiveWaiting       = "active_waiting"
	WindowActiveChecking      = "active_checking"
	WindowClosedFound         = "closed_found"
	WindowClosedExpired       = "closed_expired"
	WindowClosedReactivatable = "closed_reactivatable"
)

// Task statuses.
const (
	TaskQueued    = "queued"
	TaskRunning   = "running"
	TaskSucceeded = "succeeded"
	TaskFailed    = "failed"
)

// Represented-party perspectives.
const (
	PerspectivePetitioner = "petitioner"
	PerspectiveRespondent = "respondent"
)

type District struct {
	gorm.Model
	Code    string `json:"code" gorm:"uniqueIndex;size:2"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

type Advocate struct {
	gorm.Model
	Name  string `json:"name"`
	Email string `json:"email" gorm:"index"`
}

// Case is one tracked court case. Records are deactivated, never deleted.
type Case struct {
	gorm.Model
	CNR           string    `json:"cnr" gorm:"uniqueIndex;size:16"`
	DistrictID    uint      `json:"district_id"`
	District      District  `json:"district,omitempty"`
	AdvocateID    *uint     `json:"advocate_id"`
	Advocate      *Advocate `json:"advocate,omitempty"`
	Establishment string    `json:"establishment"`
	SerialNumber  int       `json:"serial_number"`
	FilingYear    int       `json:"filing_year"`

	CaseType        string     `json:"case_type"`
	FilingNumber    string     `json:"filing_number"`
	FilingDate      *time.Time `json:"filing_date"`
	RegistrationNo  string     `json:"registration_number"`
	Petitioner      string     `json:"petitioner"`
	Respondent      string     `json:"respondent"`
	PetitionerAdv   string     `json:"petitioner_advocate"`
	RespondentAdv   string     `json:"respondent_advocate"`
	Stage           string     `json:"stage"`
	CourtName       string     `json:"court_name"`
	JudgeName       string     `json:"judge_name"`
	FirstHearing    *time.Time `json:"first_hearing"`
	NextHearingDate *time.Time `json:"next_hearing_date"`

	DetailsExtracted        bool       `json:"details_extracted"`
	InitialOrdersDownloaded bool       `json:"initial_orders_downloaded"`
	IsActive                bool       `json:"is_active" gorm:"index"`
	Perspective             string     `json:"perspective"`
	PerspectiveSetAt        *time.Time `json:"perspective_set_at"`

	Orders []Order `json:"orders,omitempty" gorm:"foreignKey:CaseID"`
}

// Order is one dated ruling within a case. Natural key is
// (case, order number, order date).
type Order struct {
	gorm.Model
	CaseID      uint      `json:"case_id" gorm:"uniqueIndex:idx_order_natural_key"`
	OrderNumber int       `json:"order_number" gorm:"uniqueIndex:idx_order_natural_key"`
	OrderDate   time.Time `json:"order_date" gorm:"uniqueIndex:idx_order_natural_key"`
	Description string    `json:"description"`
	SourceURL   string    `json:"source_url"`

	DocumentRetrieved bool   `json:"document_retrieved" gorm:"index"`
	DocumentPath      string `json:"document_path"`
	DocumentSize      int64  `json:"document_size"`
	TextExtracted     bool   `json:"text_extracted" gorm:"index"`
	Classified        bool   `json:"classified" gorm:"index"`

	RetryCount    int        `json:"retry_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	LastError     string     `json:"last_error"`
}

type ExtractedText struct {
	gorm.Model
	OrderID     uint   `json:"order_id" gorm:"uniqueIndex"`
	RawText     string `json:"raw_text" gorm:"type:text"`
	CleanedText string `json:"cleaned_text" gorm:"type:text"`
	PageCount   int    `json:"page_count"`
	WordCount   int    `json:"word_count"`
}

// OrderSummary is the structured classification of one order.
type OrderSummary struct {
	gorm.Model
	OrderID             uint           `json:"order_id" gorm:"uniqueIndex"`
	CaseTitle           string         `json:"case_title"`
	CaseCategory        string         `json:"case_category"`
	OrderType           string         `json:"order_type"`
	Summary             string         `json:"summary" gorm:"type:text"`
	OperativePortion    string         `json:"operative_portion" gorm:"type:text"`
	NextHearingDate     *time.Time     `json:"next_hearing_date"`
	IsFinalOrder        bool           `json:"is_final_order"`
	IsInterimOrder      bool           `json:"is_interim_order"`
	IsAdjournment       bool           `json:"is_adjournment"`
	PreparationGuidance string         `json:"preparation_guidance" gorm:"type:text"`
	ActionItems         datatypes.JSON `json:"action_items"`
	Confidence          float64        `json:"confidence"`
	Perspective         string         `json:"perspective"`
	ModelName           string         `json:"model"`
}

type MonitoringWindow struct {
	gorm.Model
	CaseID       uint       `json:"case_id" gorm:"uniqueIndex:idx_window_case_trigger"`
	TriggerDate  time.Time  `json:"trigger_date" gorm:"uniqueIndex:idx_window_case_trigger"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      time.Time  `json:"end_date"`
	State        string     `json:"state" gorm:"index"`
	IsActive     bool       `json:"is_active" gorm:"index"`
	OrderFound   bool       `json:"order_found"`
	FoundOrderID *uint      `json:"found_order_id"`
	CheckCount   int        `json:"check_count"`
	LastCheckAt  *time.Time `json:"last_check_at"`
	LastError    string     `json:"last_error"`
	ClosedAt     *time.Time `json:"closed_at"`
}

type CaseRollup struct {
	gorm.Model
	CaseID             uint           `json:"case_id" gorm:"uniqueIndex"`
	Narrative          string         `json:"narrative" gorm:"type:text"`
	Timeline           datatypes.JSON `json:"timeline"`
	CurrentStage       string         `json:"current_stage"`
	PetitionerAdjourns int            `json:"petitioner_adjournments"`
	RespondentAdjourns int            `json:"respondent_adjournments"`
	CourtAdjourns      int            `json:"court_adjournments"`
	PendingActions     datatypes.JSON `json:"pending_actions"`
	OrdersConsidered   int            `json:"orders_considered"`
	ModelName          string         `json:"model"`
}

// FetchLog records every call to the detail source, successful or not.
type FetchLog struct {
	gorm.Model
	CaseID       uint      `json:"case_id" gorm:"index"`
	CNR          string    `json:"cnr"`
	Purpose      string    `json:"purpose"`
	RawResponse  string    `json:"raw_response" gorm:"type:text"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message"`
	QueryTime    time.Time `json:"query_time"`
}

// Task is an observable background job.
type Task struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36"`
	Kind       string     `json:"kind" gorm:"index"`
	CaseID     uint       `json:"case_id" gorm:"index"`
	Status     string     `json:"status" gorm:"index"`
	Detail     string     `json:"detail"`
	Error      string     `json:"error"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// NotificationLog has one row per calendar day a digest went out.
type NotificationLog struct {
	gorm.Model
	Day       string `json:"day" gorm:"uniqueIndex;size:10"`
	Recipient string `json:"recipient"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error"`
}

func (District) TableName() string {
	return "districts"
}

func (Advocate) TableName() string {
	return "advocates"
}

func (Case) TableName() string {
	return "cases"
}

func (Order) TableName() string {
	return "orders"
}

func (ExtractedText) TableName() string {
	return "extracted_texts"
}

func (OrderSummary) TableName() string {
	return "order_summaries"
}

func (MonitoringWindow) TableName() string {
	return "monitoring_windows"
}

func (CaseRollup) TableName() string {
	return "case_rollups"
}

func (FetchLog) TableName() string {
	return "fetch_logs"
}

func (Task) TableName() string {
	return "tasks"
}

func (NotificationLog) TableName() string {
	return "notification_logs"
}
