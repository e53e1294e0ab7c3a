// Package report draws the QC images of a processed unit: a PNG of the
// defaced image with the original brain mask on top, and an animated GIF
// through its axial slices.
package report

import (
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"os"

	"github.com/carbocation/go-quantize/quantize"
	"github.com/carbocation/pfx"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"go.uber.org/zap"
	"golang.org/x/image/font/basicfont"

	"github.com/PeerHerholz/BIDSonym/bids"
)

// PanelSize is the height of each panel in the mask overview.
const PanelSize = 256

// MaskColor is the overlay color of the brain mask.
var MaskColor = color.NRGBA{R: 255, A: 110}

// OverviewName returns <stem>_desc-brainmaskdeid.png.
func OverviewName(path string) string {
	return bids.Parse(path).WithToken("desc-brainmaskdeid").WithExt(".png").Base()
}

// AnimationName returns <stem>.gif.
func AnimationName(path string) string {
	return bids.Parse(path).WithExt(".gif").Base()
}

// Overview places the middle sagittal, coronal and axial slices of bg side by
// side, each resized to PanelSize high, with mask drawn over them when it is
// non-nil.
func Overview(bg, mask *Volume) image.Image {
	axes := []Axis{Sagittal, Coronal, Axial}

	panels := make([]image.Image, 0, len(axes))
	width := 0
	for _, axis := range axes {
		idx := bg.Mid(axis)
		panel := image.Image(bg.Slice(axis, idx))

		if mask != nil {
			ctx := gg.NewContextForImage(panel)
			ctx.DrawImage(mask.Overlay(axis, idx, MaskColor), 0, 0)
			panel = ctx.Image()
		}

		panel = imaging.Resize(panel, 0, PanelSize, imaging.NearestNeighbor)
		panels = append(panels, panel)
		width += panel.Bounds().Dx()
	}

	dc := gg.NewContext(width, PanelSize)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	x := 0
	for i, panel := range panels {
		dc.DrawImage(panel, x, 0)
		dc.SetRGB(1, 1, 1)
		dc.DrawString(axes[i].String(), float64(x+4), 14)
		x += panel.Bounds().Dx()
	}

	return dc.Image()
}

// Animation loops through the axial slices of v. The delay between frames is
// in hundredths of a second.
func Animation(v *Volume, delay int) *gif.GIF {
	frames := make([]image.Image, 0, v.Dims[2])
	for z := 0; z < v.Dims[2]; z++ {
		frames = append(frames, v.Slice(Axial, z))
	}

	return MakeOneGIF(frames, delay)
}

// MakeOneGIF creates an animated gif from an ordered slice of images. The
// color quantizer is built from all input images, and the quantized palette is
// shared across all of the output frames.
func MakeOneGIF(sortedImages []image.Image, delay int) *gif.GIF {
	outGif := &gif.GIF{}

	quantizer := quantize.MedianCutQuantizer{
		Aggregation:    quantize.Mean,
		Weighting:      nil,
		AddTransparent: false,
	}

	pal := quantizer.QuantizeMultiple(make([]color.Color, 0, 256), sortedImages)

	for _, img := range sortedImages {
		palettedImage := image.NewPaletted(img.Bounds(), pal)
		draw.Draw(palettedImage, img.Bounds(), img, image.Point{}, draw.Over)
		outGif.Image = append(outGif.Image, palettedImage)
		outGif.Delay = append(outGif.Delay, delay)
	}

	return outGif
}

// Renderer writes QC images for processed images.
type Renderer struct {
	Log   *zap.Logger
	Delay int
}

// Render writes the overview PNG (when brainMask is not empty) and the GIF of
// the image at path into outDir, returning the written paths.
func (r Renderer) Render(path, brainMask, outDir string) ([]string, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	delay := r.Delay
	if delay == 0 {
		delay = 5
	}

	bg, err := LoadVolume(path)
	if err != nil {
		return nil, err
	}

	var written []string

	if brainMask != "" {
		mask, err := LoadVolume(brainMask)
		if err != nil {
			return written, err
		}
		if mask.Dims != bg.Dims {
			log.Warn("brain mask grid differs from image; drawing without overlay",
				zap.String("image", path), zap.Ints("image_dims", bg.Dims[:]), zap.Ints("mask_dims", mask.Dims[:]))
			mask = nil
		}

		out := bids.Parse(OverviewName(path)).InDir(outDir).Path()
		if err := savePNG(Overview(bg, mask), out); err != nil {
			return written, err
		}
		written = append(written, out)
	}

	out := bids.Parse(AnimationName(path)).InDir(outDir).Path()
	if err := saveGIF(Animation(bg, delay), out); err != nil {
		return written, err
	}
	written = append(written, out)

	log.Info("wrote QC images", zap.Strings("files", written))
	return written, nil
}

func savePNG(img image.Image, outName string) error {
	f, err := os.Create(outName)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return pfx.Err(err)
	}
	return pfx.Err(f.Close())
}

func saveGIF(g *gif.GIF, outName string) error {
	f, err := os.Create(outName)
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()

	if err := gif.EncodeAll(f, g); err != nil {
		return pfx.Err(err)
	}
	return pfx.Err(f.Close())
}
