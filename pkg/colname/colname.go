// Package colname normalizes raw CSV column headers to snake_case identifiers.
package colname

import (
	"strings"
	"unicode"
)

// Normalize converts a raw column header to a canonical lowercase identifier
// using underscores as the sole word separator. Spacing and punctuation
// become single separators, apostrophes vanish without splitting the word,
// and camel-case boundaries are treated as word breaks:
//
//	"Patients' rating of the facility linear mean score"
//	  -> "patients_rating_of_the_facility_linear_mean_score"
//	"Facility ID" -> "facility_id"
//	"EndDate"     -> "end_date"
//
// The output never has leading, trailing, or consecutive underscores.
// Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	pendingSep := false
	prevLowerOrDigit := false
	wrote := false

	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			// Break words at lower-to-upper transitions.
			if unicode.IsUpper(r) && prevLowerOrDigit {
				pendingSep = true
			}
			if pendingSep && wrote {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			wrote = true
			pendingSep = false
			prevLowerOrDigit = unicode.IsLower(r) || unicode.IsDigit(r)
		case r == '\'' || r == '’':
			// Apostrophes are dropped entirely: "Patients'" -> "patients".
		default:
			pendingSep = true
			prevLowerOrDigit = false
		}
	}

	return b.String()
}
