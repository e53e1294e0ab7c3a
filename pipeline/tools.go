package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/PeerHerholz/BIDSonym/brainmask"
	"github.com/PeerHerholz/BIDSonym/deface"
	"github.com/PeerHerholz/BIDSonym/exttool"
	"github.com/PeerHerholz/BIDSonym/register"
	"github.com/PeerHerholz/BIDSonym/report"
	"github.com/PeerHerholz/BIDSonym/validate"
)

// Defacer writes a defaced version of in to out. Masks it produces go into
// backupRoot.
type Defacer interface {
	Deface(ctx context.Context, in, out, backupRoot string) error
}

// BrainExtractor writes the brain image of in to out.
type BrainExtractor interface {
	Extract(ctx context.Context, in, out string) error
}

// Registrar warps moving onto reference.
type Registrar interface {
	Register(ctx context.Context, moving, reference, out string) error
}

// Masker applies mask to in.
type Masker interface {
	Mask(ctx context.Context, in, mask, out string) error
}

// Renderer draws QC images of a processed image into outDir.
type Renderer interface {
	Render(path, brainMask, outDir string) ([]string, error)
}

// Validator checks the dataset structure.
type Validator interface {
	Validate(ctx context.Context, bidsRoot string, all, selected []string) error
}

// Tools are the external collaborators of a run.
type Tools struct {
	Defacer        Defacer
	BrainExtractor BrainExtractor
	Registrar      Registrar
	Masker         Masker
	Renderer       Renderer
	Validator      Validator
}

// NewTools builds the external program wrappers for cfg.
func NewTools(cfg Config, runner exttool.Runner, log *zap.Logger) (Tools, error) {
	d, err := deface.New(cfg.Deid, runner, cfg.Deface)
	if err != nil {
		return Tools{}, err
	}

	b, err := brainmask.New(cfg.BrainExtraction, runner, brainmask.Options{Fraction: cfg.BetFrac, Model: cfg.NobrainerModel})
	if err != nil {
		return Tools{}, err
	}

	return Tools{
		Defacer:        d,
		BrainExtractor: b,
		Registrar:      register.Registrar{Runner: runner},
		Masker:         register.Masker{Runner: runner},
		Renderer:       report.Renderer{Log: log},
		Validator:      validate.Validator{Runner: runner, Log: log, InContainer: validate.InContainer()},
	}, nil
}
