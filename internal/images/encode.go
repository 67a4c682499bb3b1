package images

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/soniakeys/quant/median"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

// Encoder turns the bytes of one image into an optimized rendition.
type Encoder interface {
	Encode(src []byte) ([]byte, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(src []byte) ([]byte, error)

// Encode calls f.
func (f EncoderFunc) Encode(src []byte) ([]byte, error) { return f(src) }

// JPEGEncoder re-encodes a JPEG at a fixed quality.
type JPEGEncoder struct {
	Quality int
}

// Encode decodes and re-encodes src.
func (e JPEGEncoder) Encode(src []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// PNGEncoder quantizes opaque images to an adaptive palette. It starts at
// 256 colours and halves the palette while the estimated quality stays at
// or above MaxQuality. A 256 colour result below MinQuality is discarded and
// the image is re-encoded losslessly at best compression.
type PNGEncoder struct {
	MinQuality float64
	MaxQuality float64
}

// Encode optimizes src.
func (e PNGEncoder) Encode(src []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}

	out := img
	if _, already := img.(*image.Paletted); !already && !img.Bounds().Empty() && isOpaque(img) {
		if quantized := e.reduce(img); quantized != nil {
			out = quantized
		}
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// reduce returns the smallest palette rendition that meets MaxQuality, the
// 256 colour rendition when only MinQuality is met, or nil.
func (e PNGEncoder) reduce(img image.Image) *image.Paletted {
	best := quantize(img, maxColors)
	if best == nil {
		return nil
	}
	q := Quality(img, best)
	if q < e.MinQuality {
		return nil
	}

	target := math.Max(e.MaxQuality, e.MinQuality)
	for colors := maxColors / 2; colors >= minColors && q >= target; colors /= 2 {
		smaller := quantize(img, colors)
		if smaller == nil {
			break
		}
		if q = Quality(img, smaller); q < target {
			break
		}
		best = smaller
	}
	return best
}

// SVGEncoder minifies SVG markup.
type SVGEncoder struct {
	m *minify.M
}

// NewSVGEncoder creates an SVG minifier.
func NewSVGEncoder() *SVGEncoder {
	m := minify.New()
	m.AddFunc("image/svg+xml", svg.Minify)
	return &SVGEncoder{m: m}
}

// Encode minifies src.
func (e *SVGEncoder) Encode(src []byte) ([]byte, error) {
	out, err := e.m.Bytes("image/svg+xml", src)
	if err != nil {
		return nil, fmt.Errorf("minify svg: %w", err)
	}
	return out, nil
}

// Passthrough returns its input; used for formats without an encoder.
var Passthrough = EncoderFunc(func(src []byte) ([]byte, error) { return src, nil })

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

const (
	maxColors = 256
	minColors = 2
)

// quantize maps img onto a median cut palette of at most colors entries.
func quantize(img image.Image, colors int) *image.Paletted {
	pal := median.Quantizer(colors).Quantize(make(color.Palette, 0, colors), img)
	if len(pal) == 0 {
		return nil
	}
	b := img.Bounds()
	dst := image.NewPaletted(b, pal)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// Quality estimates how close b is to a on a 0..1 scale, using the same
// mean squared error to quality curve as common PNG quantizers.
func Quality(a, b image.Image) float64 {
	bounds := a.Bounds()
	n := bounds.Dx() * bounds.Dy()
	if n == 0 {
		return 1
	}

	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum += pixelError(a.At(x, y), b.At(x, y))
		}
	}
	return mseToQuality(sum / float64(n))
}

func pixelError(a, b color.Color) float64 {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	dr := (float64(ar) - float64(br)) / 0xffff
	dg := (float64(ag) - float64(bg)) / 0xffff
	db := (float64(ab) - float64(bb)) / 0xffff
	return (dr*dr + dg*dg + db*db) / 3
}

func qualityToMSE(q float64) float64 {
	if q <= 0 {
		return math.MaxFloat64
	}
	if q >= 100 {
		return 0
	}
	fudge := math.Max(0, 0.016/(0.001+q)-0.001)
	return fudge + 2.5/math.Pow(210+q, 1.2)*(100.1-q)/100
}

func mseToQuality(mse float64) float64 {
	for q := 100; q > 0; q-- {
		if mse <= qualityToMSE(float64(q))+1e-6 {
			return float64(q) / 100
		}
	}
	return 0
}
