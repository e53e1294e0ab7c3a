package pipeline

import (
	"strings"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/bids"
	"github.com/PeerHerholz/BIDSonym/brainmask"
	"github.com/PeerHerholz/BIDSonym/deface"
)

// Analysis levels.
const (
	ParticipantLevel = "participant"
	GroupLevel       = "group"
)

// AllSessions selects every session of each subject.
const AllSessions = "all"

// Config is built once from the command line and passed down explicitly.
type Config struct {
	BIDSDir       string
	AnalysisLevel string

	// Subject labels, with or without "sub-". Empty selects all subjects.
	ParticipantLabels []string
	// Session labels, with or without "ses-". Empty or "all" selects every
	// session.
	Sessions []string

	Deid            string
	BrainExtraction string
	BetFrac         float64
	NobrainerModel  string
	Deface          deface.Options

	DefaceT2w   bool
	DefaceFLAIR bool
	// Modalities to render QC images for. T1w when empty.
	Modalities []bids.Modality

	// CheckMeta terms are added to the default suspect terms.
	CheckMeta []string
	// DelMeta fields are replaced with the sentinel in every side-car.
	DelMeta []string

	SkipBIDSValidation bool

	Revert           bool
	RevertConfirmOff bool
}

// Validate rejects incomplete or inconsistent configurations before anything
// is read from the dataset.
func (c Config) Validate() error {
	if c.BIDSDir == "" {
		return bidsonym.ConfigurationError.New("bids_dir is required")
	}

	switch c.AnalysisLevel {
	case ParticipantLevel, GroupLevel:
	default:
		return bidsonym.ConfigurationError.New("analysis_level must be %q or %q, got %q", ParticipantLevel, GroupLevel, c.AnalysisLevel)
	}

	if c.Revert {
		return nil
	}

	if _, err := deface.ParseAlgorithm(c.Deid); err != nil {
		return err
	}

	switch brainmask.Algorithm(c.BrainExtraction) {
	case "":
		return bidsonym.ConfigurationError.New("--brainextraction is required (bet or nobrainer)")
	case brainmask.BET:
		if c.BetFrac == 0 {
			return bidsonym.ConfigurationError.New("--bet_frac is required when --brainextraction is bet")
		}
		if c.BetFrac <= 0 || c.BetFrac >= 1 {
			return bidsonym.ConfigurationError.New("--bet_frac must be between 0 and 1, got %v", c.BetFrac)
		}
	case brainmask.Nobrainer:
	default:
		return bidsonym.ConfigurationError.New("unknown brain extraction algorithm %q (choose from bet, nobrainer)", c.BrainExtraction)
	}

	return nil
}

// SubjectFilter returns the subject labels to select, or nil for all.
func (c Config) SubjectFilter() []string {
	if c.AnalysisLevel == GroupLevel {
		return nil
	}
	out := make([]string, 0, len(c.ParticipantLabels))
	for _, l := range c.ParticipantLabels {
		out = append(out, bids.TrimSubject(l))
	}
	return out
}

// SessionFilter returns the session labels to select, or nil for all.
func (c Config) SessionFilter() []string {
	var out []string
	for _, s := range c.Sessions {
		if strings.EqualFold(s, AllSessions) {
			return nil
		}
		out = append(out, bids.TrimSession(s))
	}
	return out
}

// SecondaryModalities returns the modalities defaced through registration.
func (c Config) SecondaryModalities() []bids.Modality {
	var out []bids.Modality
	if c.DefaceT2w {
		out = append(out, bids.T2w)
	}
	if c.DefaceFLAIR {
		out = append(out, bids.FLAIR)
	}
	return out
}

// ReportModalities returns the modalities to render, T1w first.
func (c Config) ReportModalities() []bids.Modality {
	if len(c.Modalities) == 0 {
		return []bids.Modality{bids.T1w}
	}
	return c.Modalities
}
