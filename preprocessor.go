package autosense

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTargetWidth    = 1200
	DefaultContrastFactor = 1.5
	DefaultMaxPixels      = 40_000_000
)

var ErrImageDecode = errors.New("image could not be decoded")

// PIL's SHARPEN filter, normalised by its sum (16).
var sharpenKernel = [9]float64{
	-2, -2, -2,
	-2, 32, -2,
	-2, -2, -2,
}

// Preprocessor turns an arbitrary photo into an upright, upscaled,
// contrast boosted, sharpened grayscale image.
type Preprocessor struct {
	TargetWidth    int
	ContrastFactor float64
	// MaxPixels bounds both the decoded and the upscaled image. Zero means
	// DefaultMaxPixels.
	MaxPixels int
}

func DefaultPreprocessor() Preprocessor {
	return Preprocessor{
		TargetWidth:    DefaultTargetWidth,
		ContrastFactor: DefaultContrastFactor,
		MaxPixels:      DefaultMaxPixels,
	}
}

func (p Preprocessor) maxPixels() int {
	if p.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return p.MaxPixels
}

func (p Preprocessor) checkSize(width, height int) error {
	if int64(width)*int64(height) > int64(p.maxPixels()) {
		return errors.Wrapf(ErrImageDecode, "image too large: %dx%d exceeds %d pixels", width, height, p.maxPixels())
	}
	return nil
}

// NormalizedImage is a single channel image ready for text recognition.
type NormalizedImage struct {
	gray *image.Gray
}

func (n NormalizedImage) Image() *image.Gray {
	return n.gray
}

func (n NormalizedImage) Width() int {
	if n.gray == nil {
		return 0
	}
	return n.gray.Bounds().Dx()
}

func (n NormalizedImage) Height() int {
	if n.gray == nil {
		return 0
	}
	return n.gray.Bounds().Dy()
}

// EncodePNG returns the lossless byte form handed to OCR backends.
func (n NormalizedImage) EncodePNG() ([]byte, error) {
	if n.gray == nil {
		return nil, errors.New("empty normalized image")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, n.gray, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "png encode failed")
	}
	return buf.Bytes(), nil
}

// PreprocessImage runs the default pipeline with the given target width.
func PreprocessImage(raw []byte, targetWidth int) (NormalizedImage, error) {
	p := DefaultPreprocessor()
	p.TargetWidth = targetWidth
	return p.Preprocess(raw)
}

func (p Preprocessor) Preprocess(raw []byte) (NormalizedImage, error) {
	// header only, so oversized images are refused before their pixels are allocated
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
		if err := p.checkSize(cfg.Width, cfg.Height); err != nil {
			return NormalizedImage{}, err
		}
	}
	src, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return NormalizedImage{}, errors.Wrapf(ErrImageDecode, "%v", err)
	}

	img := dropAlpha(src)
	origWidth, origHeight := img.Bounds().Dx(), img.Bounds().Dy()
	if origWidth == 0 || origHeight == 0 {
		return NormalizedImage{}, errors.Wrap(ErrImageDecode, "image has no pixels")
	}

	if p.TargetWidth > 0 && origWidth < p.TargetWidth {
		height := int(math.Round(float64(origHeight) * float64(p.TargetWidth) / float64(origWidth)))
		if height < 1 {
			height = 1
		}
		if err := p.checkSize(p.TargetWidth, height); err != nil {
			return NormalizedImage{}, err
		}
		img = imaging.Resize(img, p.TargetWidth, height, imaging.Lanczos)
	}

	factor := p.ContrastFactor
	if factor == 0 {
		factor = DefaultContrastFactor
	}
	img = enhanceContrast(img, factor)
	img = imaging.Convolve3x3(img, sharpenKernel, &imaging.ConvolveOptions{Normalize: true})
	gray := luminance(img)

	log.Debug().Str("component", "PREPROCESSOR").
		Int("width_in", origWidth).Int("height_in", origHeight).
		Int("width_out", gray.Bounds().Dx()).Int("height_out", gray.Bounds().Dy()).
		Msg("image normalized")

	return NormalizedImage{gray: gray}, nil
}

// dropAlpha mirrors an RGB conversion: colour channels are kept as they are
// and the alpha channel is discarded.
func dropAlpha(src image.Image) *image.NRGBA {
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		c.A = 0xff
		return c
	})
}

// enhanceContrast blends every channel away from the mean luminance, the
// same model PIL's ImageEnhance.Contrast uses.
func enhanceContrast(img *image.NRGBA, factor float64) *image.NRGBA {
	hist := imaging.Histogram(img)
	var mean float64
	for level, share := range hist {
		mean += float64(level) * share
	}
	mean = math.Floor(mean + 0.5)

	var lut [256]uint8
	for i := range lut {
		lut[i] = clampUint8(mean + factor*(float64(i)-mean))
	}

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
}

// luminance reduces to one channel with ITU-R 601-2 weights.
func luminance(img *image.NRGBA) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+bounds.Dx()*4]
		dst := gray.Pix[y*gray.Stride : y*gray.Stride+bounds.Dx()]
		for x := range dst {
			r, g, b := uint32(src[x*4]), uint32(src[x*4+1]), uint32(src[x*4+2])
			dst[x] = uint8((r*299 + g*587 + b*114 + 500) / 1000)
		}
	}
	return gray
}

func clampUint8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
