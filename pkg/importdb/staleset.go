package importdb

import (
	"path"
	"slices"
)

// StaleReason says why an asset needs importing.
type StaleReason int

const (
	// Fresh means the stored record still matches.
	Fresh StaleReason = iota
	// NotImported means the asset has never been imported successfully.
	NotImported
	// InputsChanged means an input fingerprint differs or inputs were added or removed.
	InputsChanged
	// TypeChanged means the asset now resolves to a different type.
	TypeChanged
	// ImporterChanged means the routine's version differs from the recorded one.
	ImporterChanged
	// OutputsMissing means a recorded output no longer exists.
	OutputsMissing
)

// String implements fmt.Stringer.
func (r StaleReason) String() string {
	switch r {
	case Fresh:
		return "fresh"
	case NotImported:
		return "new"
	case InputsChanged:
		return "inputs-changed"
	case TypeChanged:
		return "type-changed"
	case ImporterChanged:
		return "importer-changed"
	case OutputsMissing:
		return "outputs-missing"
	default:
		return "unknown"
	}
}

// Stale reports whether the reason requires a reimport.
func (r StaleReason) Stale() bool {
	return r != Fresh
}

// StaleSet groups asset ids by stale reason.
type StaleSet struct {
	New             []string `json:"new"`
	InputsChanged   []string `json:"inputs_changed"`
	TypeChanged     []string `json:"type_changed"`
	ImporterChanged []string `json:"importer_changed"`
	OutputsMissing  []string `json:"outputs_missing"`
	Fresh           []string `json:"fresh"`
	// Removed lists recorded assets that no longer exist in the source tree.
	Removed []string `json:"removed"`
}

// NewStaleSet creates an empty StaleSet.
func NewStaleSet() *StaleSet {
	return &StaleSet{
		New:             []string{},
		InputsChanged:   []string{},
		TypeChanged:     []string{},
		ImporterChanged: []string{},
		OutputsMissing:  []string{},
		Fresh:           []string{},
		Removed:         []string{},
	}
}

// Add files an asset id under its reason.
func (s *StaleSet) Add(id string, reason StaleReason) {
	switch reason {
	case Fresh:
		s.Fresh = append(s.Fresh, id)
	case NotImported:
		s.New = append(s.New, id)
	case InputsChanged:
		s.InputsChanged = append(s.InputsChanged, id)
	case TypeChanged:
		s.TypeChanged = append(s.TypeChanged, id)
	case ImporterChanged:
		s.ImporterChanged = append(s.ImporterChanged, id)
	case OutputsMissing:
		s.OutputsMissing = append(s.OutputsMissing, id)
	}
}

// IsEmpty returns true if nothing is stale and nothing was removed.
func (s *StaleSet) IsEmpty() bool {
	if s == nil {
		return true
	}
	return s.StaleCount() == 0 && len(s.Removed) == 0
}

// StaleCount returns the number of assets that need importing.
func (s *StaleSet) StaleCount() int {
	if s == nil {
		return 0
	}
	return len(s.New) + len(s.InputsChanged) + len(s.TypeChanged) +
		len(s.ImporterChanged) + len(s.OutputsMissing)
}

// Stale returns every stale asset id, sorted.
func (s *StaleSet) Stale() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, s.StaleCount())
	out = append(out, s.New...)
	out = append(out, s.InputsChanged...)
	out = append(out, s.TypeChanged...)
	out = append(out, s.ImporterChanged...)
	out = append(out, s.OutputsMissing...)
	slices.Sort(out)
	return out
}

// AffectedDirs returns sorted unique directories containing stale or removed assets.
func (s *StaleSet) AffectedDirs() []string {
	if s == nil {
		return nil
	}

	dirs := make(map[string]struct{})
	for _, id := range s.Stale() {
		dirs[path.Dir(id)] = struct{}{}
	}
	for _, id := range s.Removed {
		dirs[path.Dir(id)] = struct{}{}
	}

	result := make([]string, 0, len(dirs))
	for dir := range dirs {
		result = append(result, dir)
	}
	slices.Sort(result)
	return result
}

// sort sorts all slices for deterministic output.
func (s *StaleSet) sort() {
	if s == nil {
		return
	}
	slices.Sort(s.New)
	slices.Sort(s.InputsChanged)
	slices.Sort(s.TypeChanged)
	slices.Sort(s.ImporterChanged)
	slices.Sort(s.OutputsMissing)
	slices.Sort(s.Fresh)
	slices.Sort(s.Removed)
}
