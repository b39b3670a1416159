package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/spherical/pdf-insight/internal/domain"
	"github.com/spherical/pdf-insight/internal/observability"
)

// Supported output encodings.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// DefaultDPI renders pages at the document's native resolution.
const DefaultDPI = 72

// Options configures page rendering
type Options struct {
	DPI         float64
	Format      string
	JPEGQuality int
	Preflight   bool // cross-check the page count with pdfcpu; advisory only
}

// DefaultOptions returns PNG output at native resolution with preflight on.
func DefaultOptions() Options {
	return Options{
		DPI:         DefaultDPI,
		Format:      FormatPNG,
		JPEGQuality: 85,
		Preflight:   true,
	}
}

// Rasterizer renders every page of a PDF to a base64 encoded image using go-fitz
type Rasterizer struct {
	opts      Options
	validator *Validator
	logger    *observability.Logger

	// OnPage, if set, is called after each page is encoded.
	OnPage func(done, total int)
}

// NewRasterizer creates a rasterizer after validating opts
func NewRasterizer(logger *observability.Logger, opts Options) (*Rasterizer, error) {
	validator := NewValidator()

	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	switch opts.Format {
	case "":
		opts.Format = FormatPNG
	case FormatPNG:
	case FormatJPEG, "jpg":
		opts.Format = FormatJPEG
		if err := validator.ValidateQuality(opts.JPEGQuality); err != nil {
			return nil, err
		}
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unsupported image format %q", opts.Format), nil)
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Rasterizer{
		opts:      opts,
		validator: validator,
		logger:    logger.WithOperation("rasterize"),
	}, nil
}

// MIMEType returns the MIME type of the images this rasterizer produces.
func (r *Rasterizer) MIMEType() string {
	if r.opts.Format == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Rasterize opens the PDF at path and encodes every page. It never returns a
// partial mapping: any failure discards the pages rendered so far.
func (r *Rasterizer) Rasterize(ctx context.Context, path string) (*domain.PageImages, error) {
	if err := r.validator.ValidatePDFPath(path); err != nil {
		return nil, err
	}

	preflightPages := -1
	if r.opts.Preflight {
		n, err := preflightPageCount(path)
		if err != nil {
			// MuPDF repairs many files pdfcpu refuses; the renderer decides.
			r.logger.Warn().Str("path", path).Err(err).Msg("Preflight failed")
		} else {
			preflightPages = n
		}
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, domain.DocumentOpenError("failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount <= 0 {
		return nil, domain.DocumentOpenError("PDF has no pages", nil)
	}
	if preflightPages >= 0 && preflightPages != pageCount {
		r.logger.Warn().
			Str("path", path).
			Int("preflight_pages", preflightPages).
			Int("pages", pageCount).
			Msg("Page count mismatch between preflight and renderer")
	}

	r.logger.Debug().
		Str("path", path).
		Int("pages", pageCount).
		Float64("dpi", r.opts.DPI).
		Msg("Rendering document")

	images := domain.NewPageImages(pageCount)
	for i := 0; i < pageCount; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		pageNumber := i + 1
		img, err := doc.ImageDPI(i, r.opts.DPI)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("failed to render page %d", pageNumber), err)
		}

		encoded, err := r.encode(img)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("failed to encode page %d", pageNumber), err)
		}

		bounds := img.Bounds()
		if err := images.Add(domain.EncodedImage{
			PageNumber: pageNumber,
			MIMEType:   r.MIMEType(),
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
			Data:       encoded,
		}); err != nil {
			return nil, err
		}

		if r.OnPage != nil {
			r.OnPage(pageNumber, pageCount)
		}
	}

	r.logger.Info().Str("path", path).Int("pages", images.Len()).Msg("Document rasterized")
	return images, nil
}

// preflightPageCount counts pages with pdfcpu. pdfcpu panics on some
// malformed files (no xref or trailer), so panics become DocumentOpenErrors.
func preflightPageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n = 0
			err = domain.DocumentOpenError(fmt.Sprintf("pdfcpu panicked: %v", r), nil)
		}
	}()

	n, err = api.PageCountFile(path)
	if err != nil {
		return 0, domain.DocumentOpenError("PDF failed structural check", err)
	}
	return n, nil
}

// encode compresses img and returns the bytes as standard base64 text
func (r *Rasterizer) encode(img image.Image) (string, error) {
	var buf bytes.Buffer
	switch r.opts.Format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.opts.JPEGQuality}); err != nil {
			return "", err
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
