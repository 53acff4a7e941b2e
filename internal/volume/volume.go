package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Volume is the wrapped engine's unit of batch input: a directory of page
// images plus a non-empty title. The engine refuses volumes without a title,
// so NewVolume always assigns one.
type Volume struct {
	Dir   string // directory holding page_NNNN.<ext> files
	Title string
	Pages []string // page image paths in request order
}

// PageFileName returns the canonical page file name for a request index.
// The zero-padded stem is what reassembly later parses the index back from.
func PageFileName(index int, ext string) string {
	if ext == "" {
		ext = ".jpg"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("page_%04d%s", index, ext)
}

// PageIndexFromName parses the request index back out of a page file name.
// Returns -1 for names that were not produced by PageFileName.
func PageIndexFromName(name string) int {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if !strings.HasPrefix(stem, "page_") {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(stem, "page_"))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// NewVolume creates a volume directory under parent and writes the decoded
// page images into it. startIndex offsets the page numbering so chunk volumes
// keep their global page indexes.
func NewVolume(parent, name, title string, startIndex int, images [][]byte) (*Volume, error) {
	if title == "" {
		title = "Manga " + name
	}
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create volume dir: %w", err)
	}

	v := &Volume{Dir: dir, Title: title}
	for i, data := range images {
		path := filepath.Join(dir, PageFileName(startIndex+i, ".jpg"))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write page %d: %w", startIndex+i, err)
		}
		v.Pages = append(v.Pages, path)
	}
	return v, nil
}

// OCRCacheDir is the per-page cache directory the engine fills while a volume
// is processing. Counting its files is the only progress signal available.
func (v *Volume) OCRCacheDir() string {
	return filepath.Join(v.Dir, "_ocr")
}

// ProcessedPageCount reports how many pages the engine has cached so far.
func (v *Volume) ProcessedPageCount() int {
	entries, err := os.ReadDir(v.OCRCacheDir())
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

// ExpectedAggregatePath is where the engine is supposed to write its single
// aggregate output: a file in the volume directory's PARENT, named after the
// volume directory itself with the ".mokuro" suffix.
func (v *Volume) ExpectedAggregatePath() string {
	return filepath.Join(filepath.Dir(v.Dir), filepath.Base(v.Dir)+".mokuro")
}

// LocateAggregate finds the aggregate output file. The location is an
// undocumented, version-fragile behavior of the wrapped engine, so the
// expected parent-directory path is tried first and both the parent and the
// volume directory are searched for any *.mokuro file before giving up.
func (v *Volume) LocateAggregate() (string, error) {
	expected := v.ExpectedAggregatePath()
	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}

	for _, dir := range []string{filepath.Dir(v.Dir), v.Dir} {
		matches, err := filepath.Glob(filepath.Join(dir, "*.mokuro"))
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("no aggregate output found for volume %s (expected %s)", v.Dir, expected)
}

// Cleanup removes the volume directory and the aggregate file if present.
func (v *Volume) Cleanup() {
	os.RemoveAll(v.Dir)
	if path, err := v.LocateAggregate(); err == nil {
		os.Remove(path)
	}
}
