// Package catalog provides a read-only view over seeded regulatory
// requirements, grouped by framework. A Snapshot is constructed once at run
// start and passed to every component by reference; it is never mutated, so
// concurrent reads during a run need no locking.
package catalog

import (
	"fmt"
	"sort"

	"github.com/clausewise/clausewise/pkg/domain"
)

// Framework describes a named regulatory ruleset.
type Framework struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Version       string `json:"version" yaml:"version"`
	EffectiveDate string `json:"effective_date" yaml:"effective_date"`
}

// Snapshot is an immutable requirement catalog for a single framework.
type Snapshot struct {
	framework    Framework
	requirements []domain.Requirement
	byID         map[string]domain.Requirement
}

// NewSnapshot validates and freezes the given requirements. Duplicate or
// invalid entries are rejected up front so agents can trust every lookup.
func NewSnapshot(fw Framework, requirements []domain.Requirement) (*Snapshot, error) {
	if fw.ID == "" {
		return nil, fmt.Errorf("catalog: framework id is required")
	}
	if len(requirements) == 0 {
		return nil, domain.ErrEmptyCatalog
	}

	byID := make(map[string]domain.Requirement, len(requirements))
	ordered := make([]domain.Requirement, 0, len(requirements))
	for _, req := range requirements {
		if req.RequirementID == "" {
			return nil, fmt.Errorf("catalog: requirement with empty id in framework %s", fw.ID)
		}
		if !req.RiskLevel.Valid() {
			return nil, fmt.Errorf("catalog: requirement %s has invalid risk level %q", req.RequirementID, req.RiskLevel)
		}
		if _, dup := byID[req.RequirementID]; dup {
			return nil, fmt.Errorf("catalog: duplicate requirement id %s", req.RequirementID)
		}
		if req.FrameworkID == "" {
			req.FrameworkID = fw.ID
		}
		byID[req.RequirementID] = req
		ordered = append(ordered, req)
	}

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].RequirementID < ordered[j].RequirementID
	})

	return &Snapshot{framework: fw, requirements: ordered, byID: byID}, nil
}

// Framework returns the framework metadata.
func (s *Snapshot) Framework() Framework { return s.framework }

// Len returns the number of requirements.
func (s *Snapshot) Len() int { return len(s.requirements) }

// Requirements returns the requirements ordered by id. The returned slice is
// a copy; callers cannot mutate the snapshot through it.
func (s *Snapshot) Requirements() []domain.Requirement {
	out := make([]domain.Requirement, len(s.requirements))
	copy(out, s.requirements)
	return out
}

// Get looks up a requirement by id.
func (s *Snapshot) Get(id string) (domain.Requirement, bool) {
	req, ok := s.byID[id]
	return req, ok
}

// Contains reports whether the id exists in the catalog.
func (s *Snapshot) Contains(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Mandatory returns the ids of requirements marked mandatory for the
// framework, ordered by id.
func (s *Snapshot) Mandatory() []string {
	var ids []string
	for _, req := range s.requirements {
		if req.Mandatory {
			ids = append(ids, req.RequirementID)
		}
	}
	return ids
}
