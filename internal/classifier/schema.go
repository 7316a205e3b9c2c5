package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/database"
)

var ErrNotObject = errors.New("model response is not a JSON object")

// Classification is the validated result for one order. Every field has a
// zero default; a field the model omitted or sent with the wrong type is
// left at that default.
type Classification struct {
	CaseTitle           string     `json:"case_title"`
	CaseCategory        string     `json:"case_category"`
	OrderType           string     `json:"order_type"`
	Summary             string     `json:"summary"`
	OperativePortion    string     `json:"operative_portion"`
	NextHearingDate     *time.Time `json:"next_hearing_date"`
	IsFinalOrder        bool       `json:"is_final_order"`
	IsInterimOrder      bool       `json:"is_interim_order"`
	IsAdjournment       bool       `json:"is_adjournment"`
	PreparationGuidance string     `json:"preparation_guidance"`
	ActionItems         []string   `json:"action_items"`
	Confidence          float64    `json:"confidence"`
}

// ParseClassification decodes a model answer. Only an answer that is not a
// JSON object is rejected, as KindInvalidResponse.
func ParseClassification(answer string) (*Classification, error) {
	fields, err := decodeObject(answer)
	if err != nil {
		return nil, apperr.Wrapf(apperr.KindInvalidResponse, "classifier.ParseClassification", err, "classification response was not a JSON object")
	}

	return &Classification{
		CaseTitle:           str(fields["case_title"]),
		CaseCategory:        str(fields["case_category"]),
		OrderType:           str(fields["order_type"]),
		Summary:             str(fields["summary"]),
		OperativePortion:    str(fields["operative_portion"]),
		NextHearingDate:     date(fields["next_hearing_date"]),
		IsFinalOrder:        boolean(fields["is_final_order"]),
		IsInterimOrder:      boolean(fields["is_interim_order"]),
		IsAdjournment:       boolean(fields["is_adjournment"]),
		PreparationGuidance: str(fields["preparation_guidance"]),
		ActionItems:         list(fields["action_items"]),
		Confidence:          confidence(fields["confidence"]),
	}, nil
}

// decodeObject accepts a JSON object, optionally wrapped in a markdown code
// fence.
func decodeObject(answer string) (map[string]any, error) {
	s := strings.TrimSpace(answer)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	fields, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return fields, nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func boolean(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		}
	case float64:
		return t != 0
	}
	return false
}

func list(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := str(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return []string{}
}

// maxCount bounds counts read from model output so they fit an int column.
const maxCount = math.MaxInt32

// integer reads a non-negative count, clamped to maxCount.
func integer(v any) int {
	switch t := v.(type) {
	case float64:
		switch {
		case math.IsNaN(t) || t <= 0:
			return 0
		case t >= maxCount:
			return maxCount
		}
		return int(t)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0
		}
		switch {
		case n <= 0:
			return 0
		case n >= maxCount:
			return maxCount
		}
		return int(n)
	}
	return 0
}

// confidence clamps to [0,1]; values in (1,100] are read as percentages.
func confidence(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f > 1 && f <= 100 {
		f /= 100
	}
	return math.Min(f, 1)
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// ParseDate reads a calendar date in the formats court orders and the model
// use. The result is a database.Day value.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return database.Day(t), true
		}
	}
	return time.Time{}, false
}

func date(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	t, ok := ParseDate(s)
	if !ok {
		return nil
	}
	return &t
}
