// Package intake registers cases from API requests and CSV imports.
package intake

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
	"github.com/JustJay7/court-case-monitor/internal/identifier"
	"github.com/JustJay7/court-case-monitor/internal/repository"
)

// Request is one case to register. The csv tags are the import header.
type Request struct {
	CNR           string `json:"cnr" csv:"cnr"`
	Perspective   string `json:"perspective" csv:"perspective,omitempty"`
	AdvocateName  string `json:"advocate_name" csv:"advocate_name,omitempty"`
	AdvocateEmail string `json:"advocate_email" csv:"advocate_email,omitempty"`
}

// Service registers cases against the case registry.
type Service struct {
	cases *repository.CaseRegistry
	codec *identifier.Codec
}

func New(cases *repository.CaseRegistry, codec *identifier.Codec) *Service {
	return &Service{cases: cases, codec: codec}
}

// Register decodes the CNR, resolves the advocate by email and registers
// the case. created is false when the case already existed.
func (s *Service) Register(req Request) (c *database.Case, created bool, err error) {
	id, err := s.codec.Decode(req.CNR)
	if err != nil {
		return nil, false, err
	}

	perspective := strings.ToLower(strings.TrimSpace(req.Perspective))
	if err := repository.ValidatePerspective(perspective); err != nil {
		return nil, false, err
	}

	var advocateID *uint
	if email := strings.ToLower(strings.TrimSpace(req.AdvocateEmail)); email != "" {
		a, err := s.cases.FindAdvocateByEmail(email)
		if apperr.IsKind(err, apperr.KindNotFound) {
			a, err = s.cases.CreateAdvocate(strings.TrimSpace(req.AdvocateName), email)
		}
		if err != nil {
			return nil, false, err
		}
		advocateID = &a.ID
	}

	return s.cases.Register(id, advocateID, perspective)
}

// Result is the outcome of one imported row.
type Result struct {
	Line    int    `json:"line"`
	CNR     string `json:"cnr"`
	CaseID  uint   `json:"case_id,omitempty"`
	Created bool   `json:"created"`
	Error   string `json:"error,omitempty"`
}

// Summary totals an import.
type Summary struct {
	Created  int      `json:"created"`
	Existing int      `json:"existing"`
	Failed   int      `json:"failed"`
	Rows     []Result `json:"rows"`
}

// ParseCSV reads import rows. The first line is the header; only the cnr
// column is required. Rows may leave trailing columns off.
func ParseCSV(r io.Reader) ([]Request, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	dec, err := csvutil.NewDecoder(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperr.New(apperr.KindValidation, "intake.ParseCSV", "import file is empty")
		}
		return nil, apperr.Wrapf(apperr.KindValidation, "intake.ParseCSV", err, "invalid import file")
	}
	dec.AlignRecord = true

	var rows []Request
	if err := dec.Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, apperr.Wrapf(apperr.KindValidation, "intake.ParseCSV", err, "invalid import file: %v", err)
	}
	return rows, nil
}

// Import registers every row of a CSV file. A bad row is reported and
// does not stop the import.
func (s *Service) Import(r io.Reader) (*Summary, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Rows: make([]Result, 0, len(rows))}
	for i, row := range rows {
		res := Result{Line: i + 2, CNR: identifier.Normalize(row.CNR)}
		c, created, err := s.Register(row)
		switch {
		case err != nil:
			res.Error = apperr.Sanitize(err)
			summary.Failed++
		case created:
			res.CaseID, res.Created = c.ID, true
			summary.Created++
		default:
			res.CaseID = c.ID
			summary.Existing++
		}
		summary.Rows = append(summary.Rows, res)
	}
	return summary, nil
}

// String renders a summary for the command line.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "created=%d existing=%d failed=%d", s.Created, s.Existing, s.Failed)
	for _, r := range s.Rows {
		if r.Error != "" {
			fmt.Fprintf(&b, "\nline %d (%s): %s", r.Line, r.CNR, r.Error)
		}
	}
	return b.String()
}
