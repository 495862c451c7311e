// Package models locates the layout detection model on disk.
package models

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"layout-translator/internal/logger"
	"layout-translator/internal/types"
)

const (
	// ModelFileName is the name of the model file (after decompression)
	ModelFileName = "doclayout_yolo.onnx"
	// CompressedSuffix marks a gzip-compressed model
	CompressedSuffix = ".gz"
)

// DefaultCacheDir returns the directory compressed models are extracted to.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "layout-translator", "models")
}

// Resolve returns the path of an uncompressed model for path. A model ending
// in ".gz" is extracted into cacheDir once; later calls reuse the extracted file.
func Resolve(path, cacheDir string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrFileNotFound, "layout model not found", path, err)
	}
	if !strings.HasSuffix(path, CompressedSuffix) {
		return path, nil
	}
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}

	name := strings.TrimSuffix(filepath.Base(path), CompressedSuffix)
	modelPath := filepath.Join(cacheDir, name)

	// Check if already extracted
	if info, err := os.Stat(modelPath); err == nil && info.Size() > 0 {
		return modelPath, nil
	}

	if err := extract(path, modelPath); err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrLayoutModel, "failed to extract layout model", path, err)
	}
	logger.Info("layout model extracted", logger.String("path", modelPath))
	return modelPath, nil
}

func extract(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	compressedFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open compressed model: %w", err)
	}
	defer compressedFile.Close()

	gzReader, err := gzip.NewReader(compressedFile)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	// Write to a temporary name so a partial file is never reused
	tmp := dst + ".part"
	dstFile, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	if _, err := io.Copy(dstFile, gzReader); err != nil {
		dstFile.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to extract model: %w", err)
	}
	if err := dstFile.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write model: %w", err)
	}
	return os.Rename(tmp, dst)
}
