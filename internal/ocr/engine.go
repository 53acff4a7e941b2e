// Package ocr defines the abstraction layer for plugging OCR engines into the
// volume pipeline. The interface is small and transport-agnostic so engines
// can be backed by local binaries, native libraries, or remote APIs without
// leaking provider-specific concerns into callers.
package ocr

import (
	"context"
	"fmt"

	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
	"github.com/FrederickIge/sentence-samurai-backend/internal/volume"
)

// Engine processes a whole volume in one call and leaves an aggregate output
// file next to (or inside) the volume directory.
type Engine interface {
	Name() string

	// Device reports what the engine will run on ("cuda", "cpu", or a GPU
	// name when one is detected).
	Device() string

	// Available verifies the engine's external dependency is usable.
	Available() error

	// ProcessVolume runs OCR over every page image in the volume. Progress is
	// observable only through the volume's _ocr cache directory.
	ProcessVolume(ctx context.Context, vol *volume.Volume) error

	// Warmup forces model weights into the local cache so the first real
	// request does not pay the cold-start download.
	Warmup(ctx context.Context) error
}

// New builds the configured engine.
func New(cfg models.OCRConfig) (Engine, error) {
	switch cfg.Engine {
	case "", "mokuro":
		return NewMokuroEngine(cfg), nil
	case "tesseract":
		return NewTesseractEngine(cfg.Language), nil
	default:
		return nil, fmt.Errorf("unsupported OCR engine: %s", cfg.Engine)
	}
}
