// Package register aligns a defaced T1w to a secondary modality and applies
// the result as a mask, defacing T2w and FLAIR images without running a
// defacer on them.
package register

import (
	"context"
	"strconv"

	"github.com/PeerHerholz/BIDSonym/bids"
	"github.com/PeerHerholz/BIDSonym/exttool"
)

// Registrar warps moving into the space of reference.
type Registrar struct {
	Runner exttool.Runner
	DOF    int
}

// Register writes moving resampled onto reference to out.
func (r Registrar) Register(ctx context.Context, moving, reference, out string) error {
	dof := r.DOF
	if dof == 0 {
		dof = 6
	}
	return r.Runner.Run(ctx, "flirt", "-in", moving, "-ref", reference, "-out", out, "-dof", strconv.Itoa(dof))
}

// Masker zeroes the voxels of an image outside a mask.
type Masker struct {
	Runner exttool.Runner
}

// Mask writes in masked by mask to out.
func (m Masker) Mask(ctx context.Context, in, mask, out string) error {
	return m.Runner.Run(ctx, "fslmaths", in, "-mas", mask, out)
}

// RegisteredName returns the QC name of the T1w registered to image:
// <stem>_T1wreg.nii.gz.
func RegisteredName(image string) string {
	return bids.Parse(image).WithToken(bids.RegisteredToken).WithExt(".nii.gz").Base()
}
