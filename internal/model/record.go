package model

// Location names one of the places transaction documents may live.
type Location string

const (
	// LocationLegacy is the old flat collection shared by all users.
	LocationLegacy Location = "legacy"
	// LocationCurrent is the per-owner nested collection.
	LocationCurrent Location = "current"
)

// IsValid reports whether l is a known location.
func (l Location) IsValid() bool {
	return l == LocationLegacy || l == LocationCurrent
}

// RawRecord is a stored document exactly as it was found, before any field
// names or value types have been reconciled.
type RawRecord struct {
	Fields   map[string]any
	ID       string
	Location Location
}

// Field returns the first present, non-nil value among the given names.
func (r RawRecord) Field(names ...string) (any, string, bool) {
	for _, name := range names {
		if v, ok := r.Fields[name]; ok && v != nil {
			return v, name, true
		}
	}
	return nil, "", false
}
