package upload

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Suffix appended to the key of compressed uploads.
const zstdSuffix = ".zst"

// compressToTemp writes a zstd compressed copy of src to a new temporary file. The returned file
// is positioned at its start. Caller must close and remove it.
//
// Parameters:
//   - src: File to compress, read from its current offset
//
// Returns:
//   - tempFile: Compressed copy
//   - err: Error creating temp file, error compressing
func compressToTemp(src io.Reader) (*os.File, error) {
	tempFile, err := os.CreateTemp(os.TempDir(), "logroller-*.zst")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	cleanup := func() {
		_ = tempFile.Close()
		_ = os.Remove(tempFile.Name())
	}

	zstdWriter, err := zstd.NewWriter(tempFile)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}

	if _, err := io.Copy(zstdWriter, src); err != nil {
		_ = zstdWriter.Close()
		cleanup()
		return nil, fmt.Errorf("failed to compress: %w", err)
	}

	if err := zstdWriter.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to close zstd writer: %w", err)
	}

	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to seek temp file: %w", err)
	}

	return tempFile, nil
}
