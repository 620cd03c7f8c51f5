// Package assets moves generated images from the generation API into our
// own storage.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"mime"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	PreviewJpegQuality  = 80
	DefaultPreviewWidth = 1024

	// Translucent bands drawn across bonus previews.
	watermarkBandEvery = 6
	watermarkAlpha     = 110
)

// Downloader fetches a generated asset by URL.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// ObjectStore keeps clean originals private and previews public.
type ObjectStore interface {
	UploadPrivate(path string, data []byte, contentType string) (string, error)
	UploadPublic(path string, data []byte, contentType string) (string, error)
}

type Published struct {
	// URL is safe to show anyone.
	URL string
	// StoragePath locates the clean original in the private bucket.
	StoragePath string
}

type Publisher struct {
	downloader   Downloader
	store        ObjectStore
	previewWidth int
	logger       zerolog.Logger
}

func NewPublisher(downloader Downloader, store ObjectStore, previewWidth int, logger zerolog.Logger) *Publisher {
	if previewWidth <= 0 {
		previewWidth = DefaultPreviewWidth
	}
	return &Publisher{
		downloader:   downloader,
		store:        store,
		previewWidth: previewWidth,
		logger:       logger.With().Str("component", "asset_publisher").Logger(),
	}
}

// Publish stores the clean original privately and a public copy. Bonus
// images get a downscaled, watermarked public copy so the clean artwork is
// never reachable before payment.
func (p *Publisher) Publish(ctx context.Context, orderID uuid.UUID, theme string, bonus bool, sourceURL string) (Published, error) {
	data, contentType, err := p.downloader.Download(ctx, sourceURL)
	if err != nil {
		return Published{}, fmt.Errorf("failed to download generated image: %w", err)
	}
	if contentType == "" {
		contentType = "image/png"
	}

	id := uuid.New()
	privatePath := fmt.Sprintf("orders/%s/%s/%s%s", orderID, theme, id, extensionFor(contentType))
	storagePath, err := p.store.UploadPrivate(privatePath, data, contentType)
	if err != nil {
		return Published{}, fmt.Errorf("failed to store original: %w", err)
	}

	publicData, publicType, publicPath := data, contentType, privatePath
	if bonus {
		publicData, err = Watermark(data, p.previewWidth)
		if err != nil {
			return Published{}, fmt.Errorf("failed to build preview: %w", err)
		}
		publicType = "image/jpeg"
		publicPath = fmt.Sprintf("orders/%s/%s/preview-%s.jpg", orderID, theme, id)
	}

	url, err := p.store.UploadPublic(publicPath, publicData, publicType)
	if err != nil {
		return Published{}, fmt.Errorf("failed to store public copy: %w", err)
	}

	p.logger.Debug().
		Str("order_id", orderID.String()).
		Str("theme", theme).
		Bool("bonus", bonus).
		Str("storage_path", storagePath).
		Msg("published generated image")

	return Published{URL: url, StoragePath: storagePath}, nil
}

// Watermark decodes an image, shrinks it to at most maxWidth pixels wide,
// lays translucent bands across it and re-encodes it as JPEG.
func Watermark(data []byte, maxWidth int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	bandHeight := maxInt(1, h/(watermarkBandEvery*3))
	band := imaging.New(w, bandHeight, color.NRGBA{R: 255, G: 255, B: 255, A: watermarkAlpha})
	for y := h / watermarkBandEvery; y < h; y += h/watermarkBandEvery + 1 {
		out = imaging.Overlay(out, band, image.Pt(0, y), 1.0)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(PreviewJpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
