package identifier

import (
	"fmt"
	"testing"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/config"
)

func testCodec() *Codec {
	now := func() time.Time { return time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC) }
	return NewCodec("DL", config.DefaultDistricts, now)
}

func TestDecodeScenario(t *testing.T) {
	id, err := testCodec().Decode("DLWT01 012715 2025")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if id.District != "WT" {
		t.Errorf("Expected district WT, got %s", id.District)
	}
	if id.Establishment != "01" {
		t.Errorf("Expected establishment 01, got %s", id.Establishment)
	}
	if id.Serial != 12715 {
		t.Errorf("Expected serial 12715, got %d", id.Serial)
	}
	if id.Year != 2025 {
		t.Errorf("Expected year 2025, got %d", id.Year)
	}
	if id.BaseURL != "https://westdelhi.dcourts.gov.in" {
		t.Errorf("Unexpected base URL %s", id.BaseURL)
	}
	if id.String() != "DLWT010127152025" {
		t.Errorf("Expected canonical DLWT010127152025, got %s", id.String())
	}
}

func TestDecodeNormalizesCase(t *testing.T) {
	id, err := testCodec().Decode("  dlwt010127152025\n")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if id.String() != "DLWT010127152025" {
		t.Errorf("Expected canonical form, got %s", id.String())
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"too short", "DLWT01012715202"},
		{"too long", "DLWT0101271520251"},
		{"digit in district", "DLW101012715202X"},
		{"letter in serial", "DLWT01A127152025"},
		{"letter in year", "DLWT01012715202A"},
		{"year too old", "DLWT010127152009"},
		{"year too new", "DLWT010127152027"},
		{"unknown district", "DLZZ010127152025"},
		{"other state", "MHWT010127152025"},
		{"zero serial", "DLWT010000002025"},
		{"punctuation", "DL-WT-01-012715-2025"},
	}

	codec := testCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := codec.Decode(tt.raw)
			if err == nil {
				t.Fatalf("Expected error for %q, got %+v", tt.raw, id)
			}
			if !apperr.IsKind(err, apperr.KindValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
			if id.Valid() {
				t.Errorf("Expected zero identifier, got %+v", id)
			}
		})
	}
}

func TestDecodeAcceptsNextYear(t *testing.T) {
	if _, err := testCodec().Decode("DLWT010127152026"); err != nil {
		t.Errorf("Expected next year to be accepted, got %v", err)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	codec := testCodec()
	for _, d := range config.DefaultDistricts {
		for _, serial := range []int{1, 42, 12715, 999999} {
			for _, year := range []int{2010, 2018, 2026} {
				raw := fmt.Sprintf("DL%s07%06d%d", d.Code, serial, year)
				id, err := codec.Decode(raw)
				if err != nil {
					t.Fatalf("Decode(%s) error = %v", raw, err)
				}
				if id.String() != raw {
					t.Fatalf("Round trip mismatch: %s -> %s", raw, id.String())
				}
				again, err := codec.Decode(id.String())
				if err != nil || again != id {
					t.Fatalf("Re-decode mismatch for %s: %+v vs %+v (%v)", raw, again, id, err)
				}
			}
		}
	}
}

func TestDecodeAnyStateWhenUnset(t *testing.T) {
	codec := NewCodec("", config.DefaultDistricts, nil)
	if _, err := codec.Decode("MHWT010127152020"); err != nil {
		t.Errorf("Expected any state to be accepted, got %v", err)
	}
}
