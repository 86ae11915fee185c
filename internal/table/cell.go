package table

import (
	"math"
	"strconv"
)

// Public-dataset spellings of "no value" in raw cells. Matches what pandas
// readers accept by default, which is what the upstream collectors emit.
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
}

// MissingToken reports whether the raw string cell spells a missing value.
func MissingToken(s string) bool { return missingTokens[s] }

// CellFloat interprets a raw cell for numeric processing.
//
// Returns:
//   - (v, false, true) for a parseable numeric cell
//   - (0, true, true)  for a missing cell (nil, missing token, or NaN)
//   - (0, false, false) for a present non-numeric cell
func CellFloat(cell any) (v float64, missing bool, numeric bool) {
	switch c := cell.(type) {
	case nil:
		return 0, true, true
	case float64:
		if math.IsNaN(c) {
			return 0, true, true
		}
		return c, false, true
	case string:
		if MissingToken(c) {
			return 0, true, true
		}
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return 0, false, false
		}
		if math.IsNaN(f) {
			return 0, true, true
		}
		return f, false, true
	default:
		return 0, false, false
	}
}
