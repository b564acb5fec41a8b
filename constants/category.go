package constants

import "strings"

// SuggestionCategory is the taxonomy the analysis stage uses for its
// improvement suggestions.
type SuggestionCategory string

const (
	Skills     SuggestionCategory = "Skills"
	Experience SuggestionCategory = "Experience"
	Format     SuggestionCategory = "Format"
	Content    SuggestionCategory = "Content"
	Impact     SuggestionCategory = "Impact"
	Keywords   SuggestionCategory = "Keywords"
	General    SuggestionCategory = "General"
)

var allCategories = []SuggestionCategory{
	Skills,
	Experience,
	Format,
	Content,
	Impact,
	Keywords,
	General,
}

// AsStringSlice returns the category taxonomy as plain strings.
func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps a free-form category label onto the taxonomy,
// case-insensitively. Unknown labels fall back to General.
func Canonicalize(label string) (SuggestionCategory, bool) {
	needle := strings.TrimSpace(label)
	for _, cat := range allCategories {
		if strings.EqualFold(string(cat), needle) {
			return cat, true
		}
	}
	return General, false
}
