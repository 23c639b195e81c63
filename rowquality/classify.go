package rowquality

import "strings"

// Tag is a column capability derived from its name. A column can carry
// several tags (e.g. "PO_Number" is both critical and id-like; "ETA" is
// both critical and date-like).
type Tag int

const (
	// TagCritical marks a column essential for record completeness.
	TagCritical Tag = 1 << iota
	// TagID marks a column whose values should be unique per row.
	TagID
	// TagDate marks a column expected to hold date values.
	TagDate
)

// Keyword lists are the behavior contract for column classification.
// Matching is substring, case-insensitive.
var (
	criticalKeywords = []string{"po", "order", "status", "customer", "eta", "tracking", "invoice", "reference", "shipment"}
	idKeywords       = []string{"po", "order", "id", "number"}
	dateKeywords     = []string{"date", "eta", "time"}
)

// Classify returns the capability tags for a column name.
func Classify(column string) Tag {
	lower := strings.ToLower(column)
	var t Tag
	if containsAny(lower, criticalKeywords) {
		t |= TagCritical
	}
	if containsAny(lower, idKeywords) {
		t |= TagID
	}
	if containsAny(lower, dateKeywords) {
		t |= TagDate
	}
	return t
}

// Has reports whether t carries the given tag.
func (t Tag) Has(tag Tag) bool { return t&tag != 0 }

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// criticalFields returns the columns tagged critical, falling back to the
// first 5 columns when no name matches a keyword.
func criticalFields(columns []string) []string {
	var critical []string
	for _, c := range columns {
		if Classify(c).Has(TagCritical) {
			critical = append(critical, c)
		}
	}
	if len(critical) > 0 {
		return critical
	}
	if len(columns) > 5 {
		return columns[:5]
	}
	return columns
}
