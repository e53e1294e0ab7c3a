package bids

import (
	"strings"

	bidsonym "github.com/PeerHerholz/BIDSonym"
)

// Modality is the BIDS suffix of an anatomical image.
type Modality string

const (
	T1w   Modality = "T1w"
	T2w   Modality = "T2w"
	FLAIR Modality = "FLAIR"
)

// Modalities lists the supported anatomical modalities in processing order.
var Modalities = []Modality{T1w, T2w, FLAIR}

// ParseModality accepts a modality name case-insensitively.
func ParseModality(s string) (Modality, error) {
	for _, m := range Modalities {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", bidsonym.ConfigurationError.New("unsupported modality %q (choose from T1w, T2w, FLAIR)", s)
}

// Datatype returns the BIDS datatype folder a file named f belongs in. The
// decision is a filename substring heuristic: names that happen to contain
// "bold" or "dwi" elsewhere can be misclassified. Anything unrecognized is
// placed in anat/. Root-level task JSON files return "".
func Datatype(f Filename) string {
	base := f.Base()
	switch {
	case strings.HasPrefix(base, "task-") && f.Ext() == ".json":
		return ""
	case strings.Contains(base, "T1w"), strings.Contains(base, "T2w"), strings.Contains(base, "FLAIR"):
		return "anat"
	case strings.Contains(base, "bold"):
		return "func"
	case strings.Contains(base, "dwi"):
		return "dwi"
	}
	return "anat"
}
