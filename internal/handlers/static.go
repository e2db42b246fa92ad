// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
)

// allowedImageExtensions are the only file extensions served from the image
// directories.
var allowedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".ico":  true,
}

// StaticHandlers serves generated images and thumbnails.
type StaticHandlers struct {
	imagesDir     string
	thumbnailsDir string
}

// NewStatic creates a new StaticHandlers instance.
func NewStatic(imagesDir, thumbnailsDir string) *StaticHandlers {
	return &StaticHandlers{
		imagesDir:     imagesDir,
		thumbnailsDir: thumbnailsDir,
	}
}

// Image serves a generated or reference image.
func (h *StaticHandlers) Image(c echo.Context) error {
	return h.serve(c, h.imagesDir)
}

// Thumbnail serves a thumbnail.
func (h *StaticHandlers) Thumbnail(c echo.Context) error {
	return h.serve(c, h.thumbnailsDir)
}

// serve returns the named file from dir. The name must be a bare file name
// with an allowed image extension; anything that could escape the directory
// is rejected.
func (h *StaticHandlers) serve(c echo.Context, dir string) error {
	name := c.Param("name")

	clean := filepath.Clean(name)
	if clean != name || clean == "." ||
		strings.ContainsAny(clean, `/\`) || strings.Contains(clean, "..") {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_filename"})
	}
	if !allowedImageExtensions[strings.ToLower(filepath.Ext(clean))] {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_filename"})
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}
	path := filepath.Join(absDir, clean)
	if !strings.HasPrefix(path, absDir+string(filepath.Separator)) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_filename"})
	}

	if _, err := os.Stat(path); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "error_not_found"})
	}
	return c.File(path)
}
