// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package imaging creates JPEG thumbnails for generated images.
package imaging

import (
	"fmt"

	img "github.com/disintegration/imaging"
)

const (
	// thumbnailSize is the maximum edge length of a thumbnail in pixels.
	thumbnailSize = 400
	// thumbnailQuality is the JPEG quality of thumbnails.
	thumbnailQuality = 60
)

// CreateThumbnail reads the image at srcPath and writes a JPEG thumbnail to
// dstPath. The image is scaled down so its longest edge is at most 400
// pixels; smaller images are re-encoded without upscaling.
func CreateThumbnail(srcPath, dstPath string) error {
	src, err := img.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	thumb := img.Fit(src, thumbnailSize, thumbnailSize, img.Lanczos)

	if err := img.Save(thumb, dstPath, img.JPEGQuality(thumbnailQuality)); err != nil {
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return nil
}
