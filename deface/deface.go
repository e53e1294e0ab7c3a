// Package deface wraps the external defacing programs. Each reads a staged
// original and writes the defaced image to the canonical path.
package deface

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/bids"
	"github.com/PeerHerholz/BIDSonym/exttool"
	"github.com/PeerHerholz/BIDSonym/staging"
)

// Algorithm names a defacing program.
type Algorithm string

const (
	Pydeface    Algorithm = "pydeface"
	MRIDeface   Algorithm = "mri_deface"
	Quickshear  Algorithm = "quickshear"
	MRIDefacer  Algorithm = "mridefacer"
	DeepDefacer Algorithm = "deepdefacer"
)

// Algorithms lists the supported programs.
var Algorithms = []Algorithm{Pydeface, MRIDeface, Quickshear, MRIDefacer, DeepDefacer}

// ParseAlgorithm returns the Algorithm named s.
func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range Algorithms {
		if string(a) == s {
			return a, nil
		}
	}

	names := make([]string, 0, len(Algorithms))
	for _, a := range Algorithms {
		names = append(names, string(a))
	}
	return "", bidsonym.ConfigurationError.New("unknown defacing algorithm %q (choose from %s)", s, strings.Join(names, ", "))
}

// Options locates programs and templates. Zero fields take the defaults of
// the published container image.
type Options struct {
	MRIDeface        string
	BrainTemplate    string
	FaceTemplate     string
	MRIDefacer       string
	QuickshearBuffer string
	QuickshearFrac   string
}

// DefaultOptions match the container image layout.
var DefaultOptions = Options{
	MRIDeface:        "mri_deface",
	BrainTemplate:    "/home/bm/bidsonym/fs_data/talairach_mixed_with_skull.gca",
	FaceTemplate:     "/home/bm/bidsonym/fs_data/face.gca",
	MRIDefacer:       "/mridefacer/mridefacer",
	QuickshearBuffer: "50",
	QuickshearFrac:   "0.5",
}

func (o Options) withDefaults() Options {
	d := DefaultOptions
	if o.MRIDeface != "" {
		d.MRIDeface = o.MRIDeface
	}
	if o.BrainTemplate != "" {
		d.BrainTemplate = o.BrainTemplate
	}
	if o.FaceTemplate != "" {
		d.FaceTemplate = o.FaceTemplate
	}
	if o.MRIDefacer != "" {
		d.MRIDefacer = o.MRIDefacer
	}
	if o.QuickshearBuffer != "" {
		d.QuickshearBuffer = o.QuickshearBuffer
	}
	if o.QuickshearFrac != "" {
		d.QuickshearFrac = o.QuickshearFrac
	}
	return d
}

// Defacer runs one algorithm.
type Defacer struct {
	Algorithm Algorithm
	Runner    exttool.Runner
	Options   Options
}

// New returns a Defacer for the named algorithm.
func New(name string, runner exttool.Runner, opts Options) (*Defacer, error) {
	alg, err := ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}
	return &Defacer{Algorithm: alg, Runner: runner, Options: opts.withDefaults()}, nil
}

// Deface reads the original at in and writes the defaced image to out.
// Masks a program leaves next to out are moved into backupRoot.
func (d *Defacer) Deface(ctx context.Context, in, out, backupRoot string) error {
	o := d.Options

	switch d.Algorithm {
	case Pydeface:
		return d.Runner.Run(ctx, "pydeface", in, "--out", out, "--force")

	case MRIDeface:
		return d.Runner.Run(ctx, o.MRIDeface, in, o.BrainTemplate, o.FaceTemplate, out)

	case Quickshear:
		return d.quickshear(ctx, in, out)

	case MRIDefacer:
		return d.mridefacer(ctx, in, out, backupRoot)

	case DeepDefacer:
		return d.Runner.Run(ctx, "deepdefacer", "--input_file", in, "--defaced_output_path", out)
	}

	return bidsonym.ConfigurationError.New("unknown defacing algorithm %q", d.Algorithm)
}

// quickshear derives a brain mask with bet and shears everything anterior to
// it.
func (d *Defacer) quickshear(ctx context.Context, in, out string) error {
	tmp, err := os.MkdirTemp("", "bidsonym-quickshear")
	if err != nil {
		return pfx.Err(err)
	}
	defer os.RemoveAll(tmp)

	brain := filepath.Join(tmp, "brain")
	if err := d.Runner.Run(ctx, "bet", in, brain, "-m", "-f", d.Options.QuickshearFrac); err != nil {
		return err
	}

	return d.Runner.Run(ctx, "quickshear", in, brain+"_mask.nii.gz", out, d.Options.QuickshearBuffer)
}

// mridefacer works in place: the original is copied to out and defaced there.
// The face mask it writes beside out is moved into the backup root.
func (d *Defacer) mridefacer(ctx context.Context, in, out, backupRoot string) error {
	if err := staging.CopyFile(in, out); err != nil {
		return err
	}

	if err := d.Runner.Run(ctx, d.Options.MRIDefacer, "--apply", out); err != nil {
		return err
	}

	mask := MaskPath(out)
	if _, err := os.Stat(mask); os.IsNotExist(err) {
		return nil
	}
	return staging.MoveFile(mask, filepath.Join(backupRoot, filepath.Base(mask)))
}

// MaskPath returns where mridefacer writes the face mask for image.
func MaskPath(image string) string {
	f := bids.Parse(image)
	return f.WithToken(bids.DefaceMaskToken).WithExt(".nii.gz").Path()
}
