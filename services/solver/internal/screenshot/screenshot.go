// Package screenshot prepares captured screenshots for the vision models:
// it sniffs the format, downsizes anything larger than the configured edge
// and re-encodes formats the providers do not accept as PNG.
package screenshot

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/forge-ai/solver/services/solver/internal/provider"
	"github.com/rs/zerolog/log"
)

// DefaultMaxEdge keeps the longest side within what every provider accepts
// without server-side downscaling.
const DefaultMaxEdge = 1568

// formats the providers take as-is.
var passthrough = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

type Normalizer struct {
	maxEdge int
}

func New(maxEdge int) *Normalizer {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	return &Normalizer{maxEdge: maxEdge}
}

// Normalize returns data ready to send. Images within bounds in an accepted
// format are passed through untouched.
func (n *Normalizer) Normalize(data []byte) (provider.Image, error) {
	mediaType := http.DetectContentType(data)
	if len(data) == 0 || !strings.HasPrefix(mediaType, "image/") {
		return provider.Image{}, fmt.Errorf("not an image (detected %s)", mediaType)
	}

	if mediaType == "image/webp" {
		// imaging cannot decode webp; send it unchanged and let the provider size it.
		return provider.Image{Data: data, MediaType: mediaType}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return provider.Image{}, fmt.Errorf("decode screenshot: %w", err)
	}

	b := img.Bounds()
	if b.Dx() <= n.maxEdge && b.Dy() <= n.maxEdge && passthrough[mediaType] {
		return provider.Image{Data: data, MediaType: mediaType}, nil
	}

	if b.Dx() > n.maxEdge || b.Dy() > n.maxEdge {
		img = imaging.Fit(img, n.maxEdge, n.maxEdge, imaging.Lanczos)
		log.Debug().
			Int("from_w", b.Dx()).Int("from_h", b.Dy()).
			Int("to_w", img.Bounds().Dx()).Int("to_h", img.Bounds().Dy()).
			Msg("screenshot downscaled")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return provider.Image{}, fmt.Errorf("encode screenshot: %w", err)
	}
	return provider.Image{Data: buf.Bytes(), MediaType: "image/png"}, nil
}

// NormalizeAll normalizes every screenshot, keeping order.
func (n *Normalizer) NormalizeAll(shots [][]byte) ([]provider.Image, error) {
	out := make([]provider.Image, 0, len(shots))
	for i, data := range shots {
		img, err := n.Normalize(data)
		if err != nil {
			return nil, fmt.Errorf("screenshot %d: %w", i+1, err)
		}
		out = append(out, img)
	}
	return out, nil
}

// LoadFiles reads and normalizes screenshots from disk.
func (n *Normalizer) LoadFiles(paths []string) ([]provider.Image, error) {
	out := make([]provider.Image, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read screenshot: %w", err)
		}
		img, err := n.Normalize(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, img)
	}
	return out, nil
}
