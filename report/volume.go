package report

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/carbocation/pfx"
	"github.com/henghuang/nifti"
	"github.com/montanaflynn/stats"
)

// WindowPercentile is the intensity percentile, over nonzero voxels, that maps
// to white. Bright vessels and fat otherwise wash out the slices.
const WindowPercentile = 99.5

// maxWindowSamples caps how many voxels are sorted to find the window.
const maxWindowSamples = 1 << 20

// Axis selects a slicing direction in voxel space.
type Axis int

const (
	Sagittal Axis = iota // fixed x
	Coronal              // fixed y
	Axial                // fixed z
)

func (a Axis) String() string {
	switch a {
	case Sagittal:
		return "sagittal"
	case Coronal:
		return "coronal"
	case Axial:
		return "axial"
	}
	return "unknown"
}

// Volume is the first frame of a 3D or 4D image, held in memory.
type Volume struct {
	Dims   [3]int
	data   []float64
	window float64
}

// NewVolume wraps data laid out x fastest, then y, then z.
func NewVolume(dims [3]int, data []float64) (*Volume, error) {
	if len(data) != dims[0]*dims[1]*dims[2] {
		return nil, fmt.Errorf("volume of %v needs %d voxels, got %d", dims, dims[0]*dims[1]*dims[2], len(data))
	}

	return &Volume{Dims: dims, data: data, window: window(data)}, nil
}

// window returns the WindowPercentile intensity of the nonzero voxels,
// sampling evenly when there are many. An empty volume has window 0.
func window(data []float64) float64 {
	stride := len(data)/maxWindowSamples + 1

	sample := make([]float64, 0, len(data)/stride+1)
	peak := 0.0
	for i := 0; i < len(data); i += stride {
		if data[i] > 0 {
			sample = append(sample, data[i])
		}
	}
	for _, d := range data {
		if d > peak {
			peak = d
		}
	}

	p, err := stats.LoadRawData(sample).Percentile(WindowPercentile)
	if err != nil || p <= 0 {
		return peak
	}
	return p
}

// LoadVolume reads a .nii or .nii.gz image.
func LoadVolume(path string) (*Volume, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, pfx.Err(err)
	}

	img, err := safelyNiftiParse(path)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	dims := img.GetDims()
	if len(dims) < 3 {
		return nil, pfx.Err(fmt.Errorf("%s: expected at least 3 dimensions, got %v", path, dims))
	}

	xm, ym, zm := dims[0], dims[1], dims[2]
	data := make([]float64, 0, xm*ym*zm)
	for z := 0; z < zm; z++ {
		for y := 0; y < ym; y++ {
			for x := 0; x < xm; x++ {
				data = append(data, float64(img.GetAt(x, y, z, 0)))
			}
		}
	}

	return NewVolume([3]int{xm, ym, zm}, data)
}

// safelyNiftiParse consumes panics emitted by the nifti library, which are
// inappropriate and must be captured in order to turn them into recoverable
// errors.
func safelyNiftiParse(filename string) (parsedData nifti.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsedData.LoadImage(filename, true)

	return
}

// At returns the voxel value, or 0 outside the volume.
func (v *Volume) At(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= v.Dims[0] || y >= v.Dims[1] || z >= v.Dims[2] {
		return 0
	}
	return v.data[x+v.Dims[0]*(y+v.Dims[1]*z)]
}

// Mid returns the middle index along axis.
func (v *Volume) Mid(axis Axis) int {
	return v.Dims[axis] / 2
}

// sliceDims returns the in-plane width and height for axis.
func (v *Volume) sliceDims(axis Axis) (int, int) {
	switch axis {
	case Sagittal:
		return v.Dims[1], v.Dims[2]
	case Coronal:
		return v.Dims[0], v.Dims[2]
	}
	return v.Dims[0], v.Dims[1]
}

func (v *Volume) voxel(axis Axis, index, u, w int) float64 {
	switch axis {
	case Sagittal:
		return v.At(index, u, w)
	case Coronal:
		return v.At(u, index, w)
	}
	return v.At(u, w, index)
}

// Slice renders one plane as grayscale, scaled to the intensity window. Image
// rows run from high to low voxel index so that superior (or anterior) is up.
func (v *Volume) Slice(axis Axis, index int) *image.Gray16 {
	width, height := v.sliceDims(axis)
	out := image.NewGray16(image.Rect(0, 0, width, height))

	for u := 0; u < width; u++ {
		for w := 0; w < height; w++ {
			out.SetGray16(u, height-1-w, color.Gray16{Y: applyWindowScaling(v.voxel(axis, index, u, w), v.window)})
		}
	}
	return out
}

// Overlay renders the nonzero voxels of a plane in c and leaves the rest
// transparent. Orientation matches Slice.
func (v *Volume) Overlay(axis Axis, index int, c color.NRGBA) *image.NRGBA {
	width, height := v.sliceDims(axis)
	out := image.NewNRGBA(image.Rect(0, 0, width, height))

	for u := 0; u < width; u++ {
		for w := 0; w < height; w++ {
			if v.voxel(axis, index, u, w) > 0 {
				out.SetNRGBA(u, height-1-w, c)
			}
		}
	}
	return out
}

func applyWindowScaling(intensity, maxIntensity float64) uint16 {
	if intensity < 0 || maxIntensity <= 0 {
		return 0
	}

	return uint16(math.Min(1, intensity/maxIntensity) * math.MaxUint16)
}
