// Package pdfsplit turns an uploaded PDF into page-ordered image bytes for
// the volume pipeline. Manga PDFs carry one full-page raster per page, so
// extracting embedded images recovers the pages without rasterizing.
package pdfsplit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfcpu names extracted images <basename>_<page>_<resource>.<ext>.
var pageNumRe = regexp.MustCompile(`_(\d+)_[^_]+\.[A-Za-z]+$`)

// ExtractPages writes the PDF to a scratch directory, extracts its embedded
// page images and returns them in page order.
func ExtractPages(pdfData []byte) ([][]byte, error) {
	tempDir, err := os.MkdirTemp("", "pdfsplit-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	srcPath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(srcPath, pdfData, 0o644); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pageCount, err := api.PageCountFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	imgDir := filepath.Join(tempDir, "images")
	if err := os.MkdirAll(imgDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	if err := api.ExtractImagesFile(srcPath, imgDir, nil, conf); err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}

	paths, err := orderedImagePaths(imgDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("pdf contains no extractable page images")
	}

	pages := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read extracted image: %w", err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}

// orderedImagePaths sorts extracted image files by the page number embedded
// in their names. One image per page is kept; extra resources on the same
// page (decoration, soft masks) are skipped.
func orderedImagePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image dir: %w", err)
	}

	type pageImage struct {
		page int
		path string
	}
	var images []pageImage
	seen := make(map[int]bool)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		page, ok := pageNumber(name)
		if !ok || seen[page] {
			continue
		}
		seen[page] = true
		images = append(images, pageImage{page: page, path: filepath.Join(dir, name)})
	}

	sort.Slice(images, func(a, b int) bool { return images[a].page < images[b].page })

	paths := make([]string, 0, len(images))
	for _, img := range images {
		paths = append(paths, img.path)
	}
	return paths, nil
}

func pageNumber(name string) (int, bool) {
	m := pageNumRe.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
