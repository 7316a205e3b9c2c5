package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// District maps a two-letter district code to the court site that serves it.
type District struct {
	Code    string `yaml:"code"`
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

type districtsFile struct {
	State     string     `yaml:"state"`
	Districts []District `yaml:"districts"`
}

// DefaultDistricts covers the Delhi district court establishments.
var DefaultDistricts = []District{
	{Code: "CT", Name: "Central", BaseURL: "https://centraldelhi.dcourts.gov.in"},
	{Code: "ET", Name: "East", BaseURL: "https://eastdelhi.dcourts.gov.in"},
	{Code: "ND", Name: "New Delhi", BaseURL: "https://newdelhi.dcourts.gov.in"},
	{Code: "NT", Name: "North", BaseURL: "https://northdelhi.dcourts.gov.in"},
	{Code: "NE", Name: "North East", BaseURL: "https://northeast.dcourts.gov.in"},
	{Code: "NW", Name: "North West", BaseURL: "https://northwest.dcourts.gov.in"},
	{Code: "SH", Name: "Shahdara", BaseURL: "https://shahdara.dcourts.gov.in"},
	{Code: "ST", Name: "South", BaseURL: "https://southdelhi.dcourts.gov.in"},
	{Code: "SE", Name: "South East", BaseURL: "https://southeastdelhi.dcourts.gov.in"},
	{Code: "SW", Name: "South West", BaseURL: "https://southwestdelhi.dcourts.gov.in"},
	{Code: "WT", Name: "West", BaseURL: "https://westdelhi.dcourts.gov.in"},
}

// LoadDistricts reads the district table from a YAML file. An empty path
// yields DefaultDistricts.
func LoadDistricts(path string) ([]District, error) {
	if path == "" {
		return DefaultDistricts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read districts file: %w", err)
	}

	return ParseDistricts(data)
}

// ParseDistricts decodes and validates a YAML district table.
func ParseDistricts(data []byte) ([]District, error) {
	var file districtsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse districts file: %w", err)
	}

	seen := make(map[string]bool, len(file.Districts))
	out := make([]District, 0, len(file.Districts))
	for _, d := range file.Districts {
		d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
		d.BaseURL = strings.TrimRight(strings.TrimSpace(d.BaseURL), "/")
		if len(d.Code) != 2 {
			return nil, fmt.Errorf("district code %q must be two letters", d.Code)
		}
		if d.BaseURL == "" {
			return nil, fmt.Errorf("district %s has no base_url", d.Code)
		}
		if seen[d.Code] {
			return nil, fmt.Errorf("district %s listed twice", d.Code)
		}
		seen[d.Code] = true
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
