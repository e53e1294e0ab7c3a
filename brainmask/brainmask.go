// Package brainmask wraps the external brain extraction programs used to
// produce the QC mask from the original T1w.
package brainmask

import (
	"context"
	"strconv"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/bids"
	"github.com/PeerHerholz/BIDSonym/exttool"
)

// Algorithm names a brain extraction program.
type Algorithm string

const (
	BET       Algorithm = "bet"
	Nobrainer Algorithm = "nobrainer"
)

// DefaultNobrainerModel is the model path in the container image.
const DefaultNobrainerModel = "/models/brain-extraction-unet-128iso-model.h5"

// Options configures extraction. Fraction is required for BET.
type Options struct {
	Fraction float64
	Model    string
}

// Extractor runs one algorithm.
type Extractor struct {
	Algorithm Algorithm
	Runner    exttool.Runner
	Options   Options
}

// New validates the algorithm and its parameters.
func New(name string, runner exttool.Runner, opts Options) (*Extractor, error) {
	switch Algorithm(name) {
	case BET:
		if opts.Fraction <= 0 || opts.Fraction >= 1 {
			return nil, bidsonym.ConfigurationError.New("bet requires --bet_frac between 0 and 1, got %v", opts.Fraction)
		}
	case Nobrainer:
		if opts.Model == "" {
			opts.Model = DefaultNobrainerModel
		}
	default:
		return nil, bidsonym.ConfigurationError.New("unknown brain extraction algorithm %q (choose from bet, nobrainer)", name)
	}

	return &Extractor{Algorithm: Algorithm(name), Runner: runner, Options: opts}, nil
}

// OutputName returns the QC mask file name for image:
// <stem>_brainmask.nii.gz.
func OutputName(image string) string {
	return bids.Parse(image).WithToken(bids.BrainMaskToken).WithExt(".nii.gz").Base()
}

// Extract writes the brain image of in to out.
func (e *Extractor) Extract(ctx context.Context, in, out string) error {
	if e.Algorithm == Nobrainer {
		return e.Runner.Run(ctx, "nobrainer", "predict", "--model", e.Options.Model, in, out)
	}
	return e.Runner.Run(ctx, "bet", in, out, "-f", strconv.FormatFloat(e.Options.Fraction, 'f', -1, 64))
}
