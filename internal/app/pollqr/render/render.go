// Package render encodes a link as a QR code in two forms: a PNG data URI
// and inline SVG markup. Both always come from the same input.
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"
	"pollqr.local/internal/platform/metrics"
)

const (
	OpDataURL = "data URL"
	OpSVG     = "SVG"
)

var ErrTooDense = errors.New("symbol too dense for the configured width")

// RenderedQR is the JSON body returned to clients.
type RenderedQR struct {
	DataURL string `json:"dataUrl"`
	SVG     string `json:"svg"`
}

// RenderError carries the failing encoding.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return "render " + e.Op + ": " + e.Err.Error()
}

func (e *RenderError) Unwrap() error { return e.Err }

type Options struct {
	Width  int    // raster width and height in pixels
	Margin int    // quiet zone in modules
	Dark   string // #RRGGBB or #RRGGBBAA
	Light  string
	Level  qrcode.RecoveryLevel
}

func DefaultOptions() Options {
	return Options{
		Width:  256,
		Margin: 1,
		Dark:   "#000000",
		Light:  "#FFFFFF",
		Level:  qrcode.Low,
	}
}

// URLValidator rejects links that must not reach the encoder.
type URLValidator interface {
	Validate(raw string) error
}

type Renderer struct {
	opts      Options
	dark      color.NRGBA
	light     color.NRGBA
	validator URLValidator
}

// New checks the options once so Render never fails on configuration.
// validator may be nil.
func New(opts Options, validator URLValidator) (*Renderer, error) {
	if opts.Width <= 0 {
		return nil, fmt.Errorf("render: width must be positive, got %d", opts.Width)
	}
	if opts.Margin < 0 {
		return nil, fmt.Errorf("render: margin must not be negative, got %d", opts.Margin)
	}
	dark, err := parseHexColor(opts.Dark)
	if err != nil {
		return nil, fmt.Errorf("render: dark color: %w", err)
	}
	light, err := parseHexColor(opts.Light)
	if err != nil {
		return nil, fmt.Errorf("render: light color: %w", err)
	}
	return &Renderer{opts: opts, dark: dark, light: light, validator: validator}, nil
}

// Render validates link and produces both encodings concurrently. Either
// both are returned or neither.
func (r *Renderer) Render(ctx context.Context, link string) (RenderedQR, error) {
	if r.validator != nil {
		if err := r.validator.Validate(link); err != nil {
			return RenderedQR{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return RenderedQR{}, err
	}

	start := time.Now()
	var out RenderedQR
	var g errgroup.Group
	g.Go(func() error {
		s, err := r.dataURL(link)
		if err != nil {
			return &RenderError{Op: OpDataURL, Err: err}
		}
		out.DataURL = s
		return nil
	})
	g.Go(func() error {
		s, err := r.svg(link)
		if err != nil {
			return &RenderError{Op: OpSVG, Err: err}
		}
		out.SVG = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return RenderedQR{}, err
	}
	metrics.QRRenderDurationSeconds.Observe(time.Since(start).Seconds())
	return out, nil
}

// modules returns the symbol without quiet zone; true is dark.
func (r *Renderer) modules(content string) ([][]bool, error) {
	q, err := qrcode.New(content, r.opts.Level)
	if err != nil {
		return nil, err
	}
	q.DisableBorder = true
	return q.Bitmap(), nil
}

func (r *Renderer) dataURL(content string) (string, error) {
	bits, err := r.modules(content)
	if err != nil {
		return "", err
	}
	img, err := r.raster(bits)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// raster scales the symbol plus margin to exactly Width pixels. Module edges
// fall on floor boundaries, so modules may differ by one pixel.
func (r *Renderer) raster(bits [][]bool) (*image.Paletted, error) {
	n := len(bits)
	total := n + 2*r.opts.Margin
	width := r.opts.Width
	if width < total {
		return nil, fmt.Errorf("%w: %d modules into %dpx", ErrTooDense, total, width)
	}
	scale := float64(width) / float64(total)

	img := image.NewPaletted(image.Rect(0, 0, width, width), color.Palette{r.light, r.dark})
	for y := 0; y < width; y++ {
		my := int(float64(y)/scale) - r.opts.Margin
		if my < 0 || my >= n {
			continue
		}
		row := bits[my]
		for x := 0; x < width; x++ {
			mx := int(float64(x)/scale) - r.opts.Margin
			if mx >= 0 && mx < n && row[mx] {
				img.SetColorIndex(x, y, 1)
			}
		}
	}
	return img, nil
}

func (r *Renderer) svg(content string) (string, error) {
	bits, err := r.modules(content)
	if err != nil {
		return "", err
	}
	n := len(bits)
	m := r.opts.Margin
	total := strconv.Itoa(n + 2*m)

	var b strings.Builder
	b.Grow(64 + n*n/2)
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="`)
	b.WriteString(strconv.Itoa(r.opts.Width))
	b.WriteString(`" height="`)
	b.WriteString(strconv.Itoa(r.opts.Width))
	b.WriteString(`" viewBox="0 0 `)
	b.WriteString(total + " " + total)
	b.WriteString(`" shape-rendering="crispEdges">`)

	b.WriteString(`<path fill="`)
	b.WriteString(r.opts.Light)
	b.WriteString(`" d="M0 0h` + total + `v` + total + `H0z"/>`)

	b.WriteString(`<path fill="`)
	b.WriteString(r.opts.Dark)
	b.WriteString(`" d="`)
	for y, row := range bits {
		for x := 0; x < n; {
			if !row[x] {
				x++
				continue
			}
			run := 1
			for x+run < n && row[x+run] {
				run++
			}
			l := strconv.Itoa(run)
			b.WriteString("M" + strconv.Itoa(x+m) + " " + strconv.Itoa(y+m) + "h" + l + "v1h-" + l + "z")
			x += run
		}
	}
	b.WriteString(`"/></svg>`)
	return b.String(), nil
}

func parseHexColor(s string) (color.NRGBA, error) {
	hexStr, ok := strings.CutPrefix(s, "#")
	if !ok || (len(hexStr) != 6 && len(hexStr) != 8) {
		return color.NRGBA{}, fmt.Errorf("want #RRGGBB or #RRGGBBAA, got %q", s)
	}
	v, err := strconv.ParseUint(hexStr, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("want #RRGGBB or #RRGGBBAA, got %q", s)
	}
	if len(hexStr) == 6 {
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
