package eval

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/rivalscope/internal/model"
)

type scenarioFile struct {
	Scenarios []rawScenario `yaml:"scenarios"`
}

type rawScenario struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	PageType   string `yaml:"page_type"`
	Competitor string `yaml:"competitor"`
	BeforeHTML string `yaml:"before_html"`
	AfterHTML  string `yaml:"after_html"`
	Expected   struct {
		HasSignificantChange *bool  `yaml:"has_significant_change"`
		ChangeType           string `yaml:"change_type"`
		ImpactLevel          string `yaml:"impact_level"`
	} `yaml:"expected"`
}

// LoadScenarios reads a YAML file with a top-level "scenarios" list.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes and validates scenario YAML. Unknown keys are
// rejected.
func ParseScenarios(data []byte) ([]Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f scenarioFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}

	out := make([]Scenario, 0, len(f.Scenarios))
	seen := map[string]bool{}
	var errs []error
	for i, raw := range f.Scenarios {
		s, err := raw.validate()
		if err == nil && seen[s.ID] {
			err = fmt.Errorf("duplicate id %q", s.ID)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("scenario %d: %w", i, err))
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (r rawScenario) validate() (Scenario, error) {
	if r.ID == "" {
		return Scenario{}, errors.New("id is required")
	}
	if r.BeforeHTML == "" || r.AfterHTML == "" {
		return Scenario{}, errors.New("before_html and after_html are required")
	}
	if r.Expected.HasSignificantChange == nil {
		return Scenario{}, errors.New("expected.has_significant_change is required")
	}

	ct := model.ChangeOther
	if r.Expected.ChangeType != "" {
		var ok bool
		if ct, ok = model.ParseChangeType(r.Expected.ChangeType); !ok {
			return Scenario{}, fmt.Errorf("invalid change_type %q", r.Expected.ChangeType)
		}
	}
	impact := model.LevelLow
	if r.Expected.ImpactLevel != "" {
		impact = model.ParseLevel(r.Expected.ImpactLevel, "")
		if impact == "" {
			return Scenario{}, fmt.Errorf("invalid impact_level %q", r.Expected.ImpactLevel)
		}
	}

	name := r.Name
	if name == "" {
		name = r.ID
	}
	return Scenario{
		ID:         r.ID,
		Name:       name,
		PageType:   r.PageType,
		Competitor: r.Competitor,
		BeforeHTML: r.BeforeHTML,
		AfterHTML:  r.AfterHTML,
		Expected: Expectation{
			HasSignificantChange: *r.Expected.HasSignificantChange,
			ChangeType:           ct,
			ImpactLevel:          impact,
		},
	}, nil
}
