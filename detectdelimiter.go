package bidsonym

import (
	"io"

	"github.com/csimplestring/go-csv/detector"
)

// DetermineDelimiter returns the delimiter of a participants.tsv-like table.
// The detector's candidates are taken in order and only tab or comma is
// accepted. Anything else, including no candidate at all, yields tab.
func DetermineDelimiter(r io.Reader) rune {
	for _, candidate := range detector.New().DetectDelimiter(r, '"') {
		if candidate == "" {
			continue
		}
		switch delim := rune(candidate[0]); delim {
		case '\t', ',':
			return delim
		}
	}

	return '\t'
}
