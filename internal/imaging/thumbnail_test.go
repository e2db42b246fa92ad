// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package imaging_test

import (
	"image"
	"image/color"
	_ "image/jpeg" // decode thumbnails in assertions
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/oliverandrich/nanobanana/internal/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func decodeSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestCreateThumbnail_ScalesDown(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	dst := filepath.Join(dir, "thumb.jpg")
	writePNG(t, src, 1600, 800)

	require.NoError(t, imaging.CreateThumbnail(src, dst))

	width, height := decodeSize(t, dst)
	assert.Equal(t, 400, width)
	assert.Equal(t, 200, height)
}

func TestCreateThumbnail_NoUpscaling(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	dst := filepath.Join(dir, "thumb.jpg")
	writePNG(t, src, 100, 50)

	require.NoError(t, imaging.CreateThumbnail(src, dst))

	width, height := decodeSize(t, dst)
	assert.Equal(t, 100, width)
	assert.Equal(t, 50, height)
}

func TestCreateThumbnail_MissingSource(t *testing.T) {
	dir := t.TempDir()

	err := imaging.CreateThumbnail(filepath.Join(dir, "missing.png"), filepath.Join(dir, "thumb.jpg"))

	assert.Error(t, err)
}
