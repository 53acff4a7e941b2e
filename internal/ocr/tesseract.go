package ocr

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/otiai10/gosseract/v2"

	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
	"github.com/FrederickIge/sentence-samurai-backend/internal/volume"
)

// TesseractEngine is the local fallback engine for deployments without the
// mokuro stack. It recognizes each page with libtesseract and synthesizes an
// aggregate file in the same schema, so downstream reassembly cannot tell
// the engines apart. Block geometry comes from tesseract's text lines; it
// does not detect vertical text orientation.
type TesseractEngine struct {
	language string
}

// NewTesseractEngine creates the fallback engine.
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "jpn"
	}
	return &TesseractEngine{language: language}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Device is always cpu; libtesseract has no GPU path.
func (e *TesseractEngine) Device() string { return "cpu" }

// Available verifies libtesseract can be initialized with the configured
// language.
func (e *TesseractEngine) Available() error {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.language); err != nil {
		return fmt.Errorf("tesseract language %q unavailable: %w", e.language, err)
	}
	return nil
}

// ProcessVolume recognizes every page and writes the aggregate to the
// expected parent-directory location.
func (e *TesseractEngine) ProcessVolume(ctx context.Context, vol *volume.Volume) error {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.language); err != nil {
		return fmt.Errorf("set language: %w", err)
	}

	cacheDir := vol.OCRCacheDir()
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("create ocr cache dir: %w", err)
	}

	agg := &volume.Aggregate{
		Version: "tesseract",
		Title:   vol.Title,
	}
	for _, pagePath := range vol.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := e.recognizePage(client, pagePath)
		if err != nil {
			return fmt.Errorf("recognize %s: %w", filepath.Base(pagePath), err)
		}
		agg.Pages = append(agg.Pages, page)

		// Mirror the primary engine's per-page cache so progress monitoring
		// works identically.
		marker := filepath.Join(cacheDir, strings.TrimSuffix(filepath.Base(pagePath), filepath.Ext(pagePath))+".json")
		os.WriteFile(marker, []byte("{}"), 0o644)
	}

	return vol.WriteAggregate(agg)
}

// Warmup initializes the client once; tesseract models ship with the system
// package, so there is nothing to download.
func (e *TesseractEngine) Warmup(ctx context.Context) error {
	return e.Available()
}

func (e *TesseractEngine) recognizePage(client *gosseract.Client, pagePath string) (volume.AggregatePage, error) {
	page := volume.AggregatePage{ImgPath: filepath.Base(pagePath)}

	if w, h, err := imageSize(pagePath); err == nil {
		page.ImgWidth, page.ImgHeight = w, h
	}

	if err := client.SetImage(pagePath); err != nil {
		return page, err
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return page, err
	}
	page.Blocks = blocksFromLines(boxes)
	return page, nil
}

// blocksFromLines converts per-line recognition results into text blocks, one
// block per line. Empty lines are dropped; an all-blank page yields an empty
// block list rather than a missing page entry.
func blocksFromLines(boxes []gosseract.BoundingBox) []models.TextBlock {
	blocks := make([]models.TextBlock, 0, len(boxes))
	for _, bb := range boxes {
		text := strings.TrimSpace(bb.Word)
		if text == "" {
			continue
		}
		x1 := float64(bb.Box.Min.X)
		y1 := float64(bb.Box.Min.Y)
		x2 := float64(bb.Box.Max.X)
		y2 := float64(bb.Box.Max.Y)
		blocks = append(blocks, models.TextBlock{
			Box:      []float64{x1, y1, x2, y2},
			FontSize: y2 - y1,
			LinesCoords: [][][2]float64{
				{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}},
			},
			Lines: []string{text},
		})
	}
	return blocks
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
