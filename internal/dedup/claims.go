package dedup

import "github.com/Veraticus/the-books-must-balance/internal/model"

// MergedSourcesField lists, on a migrated document, the legacy ids that were
// folded into it as duplicates.
const MergedSourcesField = "mergedSourceIds"

// ClaimedByDocuments indexes every legacy id that current-location documents
// account for: their source id, original id and merged source ids.
func ClaimedByDocuments(ownerID string, docs []model.RawRecord) map[string]bool {
	claimed := make(map[string]bool, len(docs))
	add := func(id string) {
		if id != "" {
			claimed[claimKey(ownerID, id)] = true
		}
	}

	for _, doc := range docs {
		add(stringField(doc, "sourceId"))
		add(stringField(doc, "originalId"))

		switch merged := doc.Fields[MergedSourcesField].(type) {
		case []string:
			for _, id := range merged {
				add(id)
			}
		case []any:
			for _, v := range merged {
				if id, ok := v.(string); ok {
					add(id)
				}
			}
		}
	}
	return claimed
}

// IsRecordClaimed reports whether a legacy document, or the record it was
// itself copied from, is already accounted for in claimed.
func IsRecordClaimed(claimed map[string]bool, ownerID string, raw model.RawRecord) bool {
	if IsClaimed(claimed, ownerID, raw.ID) {
		return true
	}
	source := stringField(raw, "sourceId", "originalId")
	return source != "" && IsClaimed(claimed, ownerID, source)
}

func stringField(r model.RawRecord, names ...string) string {
	v, _, ok := r.Field(names...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
