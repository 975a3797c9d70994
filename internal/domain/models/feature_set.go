package models

import (
	"LineGuard/internal/domain/errs"
)

// FeatureSet is the frozen, ordered list of feature columns a model was
// trained on. It is authoritative for every inference against that model.
type FeatureSet struct {
	Names []string
}

// NewFeatureSet copies names and validates them.
func NewFeatureSet(names []string) (FeatureSet, error) {
	fs := FeatureSet{Names: append([]string(nil), names...)}
	if err := fs.Validate(); err != nil {
		return FeatureSet{}, err
	}
	return fs, nil
}

// Validate rejects empty, blank or duplicated names.
func (f FeatureSet) Validate() error {
	if len(f.Names) == 0 {
		return errs.EmptyFeatureSet("No numeric feature columns found after excluding %s/timestamp/Id.", LabelColumn)
	}
	seen := make(map[string]struct{}, len(f.Names))
	for i, n := range f.Names {
		if n == "" {
			return errs.Schema("feature %d has an empty name", i)
		}
		if _, dup := seen[n]; dup {
			return errs.Schema("feature %q appears more than once", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func (f FeatureSet) Len() int { return len(f.Names) }

// Index maps feature name to its column position.
func (f FeatureSet) Index() map[string]int {
	idx := make(map[string]int, len(f.Names))
	for i, n := range f.Names {
		idx[n] = i
	}
	return idx
}
