package migration

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/arkilian/realmstore/pkg/types"
)

// Plan is a declarative migration: versioned steps of schema changes. A step
// with From == v runs when a store moves past version v; a step from
// types.Unversioned builds a fresh store.
type Plan struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one version transition of a plan.
type Step struct {
	From        int64                `yaml:"from" json:"from"`
	Description string               `yaml:"description,omitempty" json:"description,omitempty"`
	Changes     []types.SchemaChange `yaml:"changes" json:"changes"`
}

// LoadPlan reads a plan from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("migration: failed to read plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan parses a YAML plan.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("migration: failed to parse plan: %w", err)
	}
	seen := make(map[int64]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.From < types.Unversioned {
			return nil, fmt.Errorf("migration: invalid step version %d", s.From)
		}
		if seen[s.From] {
			return nil, fmt.Errorf("migration: duplicate step from version %d", s.From)
		}
		seen[s.From] = true
	}
	return &p, nil
}

// Pending returns the steps that move a store from oldVersion to newVersion,
// in ascending order.
func (p *Plan) Pending(oldVersion, newVersion int64) []Step {
	var steps []Step
	for _, s := range p.Steps {
		if s.From >= oldVersion && s.From < newVersion {
			steps = append(steps, s)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].From < steps[j].From })
	return steps
}

// Procedure turns the plan into a migration procedure.
func (p *Plan) Procedure() Procedure {
	return func(_ context.Context, s *Session, oldVersion, newVersion int64) error {
		for _, step := range p.Pending(oldVersion, newVersion) {
			for _, c := range step.Changes {
				if err := s.Apply(c); err != nil {
					return fmt.Errorf("step from version %d: %w", step.From, err)
				}
			}
		}
		return nil
	}
}
