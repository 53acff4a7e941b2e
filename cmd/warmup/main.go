// Command warmup downloads the OCR model weights into the local cache. Run it
// during the container build so serving instances never download models at
// request time.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
	"github.com/FrederickIge/sentence-samurai-backend/internal/ocr"
)

func main() {
	cfg := models.OCRConfig{
		Engine:   os.Getenv("OCR_ENGINE"),
		Binary:   os.Getenv("MOKURO_BIN"),
		Language: os.Getenv("OCR_LANGUAGE"),
		CacheDir: os.Getenv("MODEL_CACHE_DIR"),
		ForceCPU: true, // build machines rarely have a GPU
	}

	engine, err := ocr.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create OCR engine: %v", err)
	}
	if err := engine.Available(); err != nil {
		log.Fatalf("OCR engine %s not usable: %v", engine.Name(), err)
	}

	log.Printf("Warming up %s (cache: %s)", engine.Name(), cfg.CacheDir)
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	if err := engine.Warmup(ctx); err != nil {
		log.Fatalf("Warmup failed: %v", err)
	}

	log.Printf("Warmup complete in %.1fs", time.Since(start).Seconds())
}
