// Package identifier decodes the 16-character CNR case number used by the
// district courts: state(2) district(2) establishment(2) serial(6) year(4).
package identifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/config"
)

const (
	// Length is the fixed length of a normalized identifier.
	Length = 16

	// MinYear is the earliest filing year accepted.
	MinYear = 2010
)

var grammar = regexp.MustCompile(`^([A-Z]{2})([A-Z]{2})([0-9]{2})([0-9]{6})([0-9]{4})$`)

// CaseIdentifier is a decoded CNR. The zero value is not valid.
type CaseIdentifier struct {
	State         string `json:"state"`
	District      string `json:"district"`
	Establishment string `json:"establishment"`
	Serial        int    `json:"serial"`
	Year          int    `json:"year"`
	BaseURL       string `json:"base_url"`
}

// String re-encodes the identifier in canonical form.
func (id CaseIdentifier) String() string {
	return fmt.Sprintf("%s%s%s%06d%04d", id.State, id.District, id.Establishment, id.Serial, id.Year)
}

// Valid reports whether id came out of a successful Decode.
func (id CaseIdentifier) Valid() bool {
	return id.State != "" && id.District != "" && id.BaseURL != ""
}

// Codec decodes identifiers against a district table and a clock.
type Codec struct {
	state     string
	districts map[string]config.District
	now       func() time.Time
}

// NewCodec builds a codec. An empty state accepts any two-letter state code.
func NewCodec(state string, districts []config.District, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	table := make(map[string]config.District, len(districts))
	for _, d := range districts {
		table[strings.ToUpper(d.Code)] = d
	}
	return &Codec{
		state:     strings.ToUpper(state),
		districts: table,
		now:       now,
	}
}

// Normalize upper-cases raw and strips all whitespace.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Decode parses raw into a CaseIdentifier. Any malformed input returns the
// zero value and a validation error; callers must check the error.
func (c *Codec) Decode(raw string) (CaseIdentifier, error) {
	const op = "identifier.Decode"

	norm := Normalize(raw)
	if len(norm) != Length {
		return CaseIdentifier{}, apperr.New(apperr.KindValidation, op,
			fmt.Sprintf("case number must be %d characters, got %d", Length, len(norm)))
	}

	m := grammar.FindStringSubmatch(norm)
	if m == nil {
		return CaseIdentifier{}, apperr.New(apperr.KindValidation, op, "case number does not match the CNR format")
	}

	state, district, establishment := m[1], m[2], m[3]
	serial, _ := strconv.Atoi(m[4])
	year, _ := strconv.Atoi(m[5])

	if c.state != "" && state != c.state {
		return CaseIdentifier{}, apperr.New(apperr.KindValidation, op,
			fmt.Sprintf("state code %s is not supported", state))
	}
	if serial == 0 {
		return CaseIdentifier{}, apperr.New(apperr.KindValidation, op, "serial number must be non-zero")
	}

	maxYear := c.now().Year() + 1
	if year < MinYear || year > maxYear {
		return CaseIdentifier{}, apperr.New(apperr.KindValidation, op,
			fmt.Sprintf("filing year %d outside %d-%d", year, MinYear, maxYear))
	}

	d, ok := c.districts[district]
	if !ok || d.BaseURL == "" {
		return CaseIdentifier{}, apperr.New(apperr.KindValidation, op,
			fmt.Sprintf("district code %s is not registered", district))
	}

	return CaseIdentifier{
		State:         state,
		District:      district,
		Establishment: establishment,
		Serial:        serial,
		Year:          year,
		BaseURL:       d.BaseURL,
	}, nil
}

// District returns the registered district for code.
func (c *Codec) District(code string) (config.District, bool) {
	d, ok := c.districts[strings.ToUpper(code)]
	return d, ok
}
