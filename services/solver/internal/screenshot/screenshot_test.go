package screenshot

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestNormalize_SmallPNGPassesThrough(t *testing.T) {
	data := encodePNG(t, 200, 100)

	got, err := New(1568).Normalize(data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", got.MediaType)
	assert.Equal(t, data, got.Data)
}

func TestNormalize_DownscalesKeepingAspect(t *testing.T) {
	data := encodePNG(t, 3000, 1000)

	got, err := New(1500).Normalize(data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", got.MediaType)

	w, h := decodeSize(t, got.Data)
	assert.Equal(t, 1500, w)
	assert.Equal(t, 500, h)
}

func TestNormalize_LargeJPEGBecomesPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, imaging.New(400, 800, color.White), nil))

	got, err := New(200).Normalize(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/png", got.MediaType)

	w, h := decodeSize(t, got.Data)
	assert.Equal(t, 100, w)
	assert.Equal(t, 200, h)
}

func TestNormalize_RejectsNonImages(t *testing.T) {
	_, err := New(0).Normalize([]byte("definitely not an image"))
	assert.Error(t, err)

	_, err = New(0).Normalize(nil)
	assert.Error(t, err)
}

func TestNormalizeAll_ReportsIndex(t *testing.T) {
	_, err := New(0).NormalizeAll([][]byte{encodePNG(t, 10, 10), []byte("junk")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "screenshot 2")
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shot.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 50, 40), 0o644))

	imgs, err := New(0).LoadFiles([]string{path})
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.Equal(t, "image/png", imgs[0].MediaType)

	_, err = New(0).LoadFiles([]string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}
