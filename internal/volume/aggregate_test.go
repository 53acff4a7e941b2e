package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
)

func writeAggregateFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write aggregate: %v", err)
	}
}

func TestParseAggregateIgnoresUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.mokuro")
	writeAggregateFile(t, path, `{
		"version": "0.2.1",
		"title": "Test",
		"title_uuid": "abc",
		"volume_uuid": "def",
		"chars": 120,
		"pages": [
			{"img_path": "page_0000.jpg", "img_width": 800, "img_height": 1200,
			 "blocks": [{"box": [1, 2, 3, 4], "vertical": true, "font_size": 22.5,
			             "lines": ["こんにちは"]}]}
		]
	}`)

	agg, err := ParseAggregate(path)
	if err != nil {
		t.Fatalf("ParseAggregate() error = %v", err)
	}
	if agg.Version != "0.2.1" || len(agg.Pages) != 1 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	b := agg.Pages[0].Blocks[0]
	if !b.Vertical || b.FontSize != 22.5 || len(b.Lines) != 1 {
		t.Fatalf("unexpected block: %+v", b)
	}
}

func TestParseAggregateGarbled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.mokuro")
	writeAggregateFile(t, path, `{"pages": [{"img_path": 12`)
	if _, err := ParseAggregate(path); err == nil {
		t.Fatalf("expected a parse error for truncated output")
	}
}

func TestReassembleOrdersByRequestIndex(t *testing.T) {
	// Aggregate lists pages out of order; results must come back 0..N-1.
	agg := &Aggregate{Pages: []AggregatePage{
		{ImgPath: "page_0002.jpg", Blocks: []models.TextBlock{{Lines: []string{"three"}}}},
		{ImgPath: "page_0000.jpg", Blocks: []models.TextBlock{{Lines: []string{"one"}}}},
		{ImgPath: "page_0001.jpg", Blocks: []models.TextBlock{{Lines: []string{"two"}}}},
	}}

	results, missing := Reassemble(agg, 0, 3)
	if len(missing) != 0 {
		t.Fatalf("unexpected missing pages: %v", missing)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"one", "two", "three"} {
		if results[i].PageIndex != i {
			t.Fatalf("result %d has index %d", i, results[i].PageIndex)
		}
		if got := results[i].TextBlocks[0].Lines[0]; got != want {
			t.Fatalf("result %d text = %q, want %q", i, got, want)
		}
	}
}

func TestReassembleFillsDroppedPages(t *testing.T) {
	// A page the engine silently dropped must still appear, empty, at its
	// index; the batch must not shrink or shift.
	agg := &Aggregate{Pages: []AggregatePage{
		{ImgPath: "page_0000.jpg", Blocks: []models.TextBlock{{Lines: []string{"a"}}}},
		{ImgPath: "page_0002.jpg", Blocks: []models.TextBlock{{Lines: []string{"c"}}}},
	}}

	results, missing := Reassemble(agg, 0, 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if len(missing) != 1 || missing[0] != 1 {
		t.Fatalf("missing = %v, want [1]", missing)
	}
	if len(results[1].TextBlocks) != 0 {
		t.Fatalf("dropped page should have no blocks, got %+v", results[1].TextBlocks)
	}
	if results[2].TextBlocks[0].Lines[0] != "c" {
		t.Fatalf("page 2 shifted: %+v", results[2])
	}
}

func TestReassembleIgnoresForeignEntries(t *testing.T) {
	agg := &Aggregate{Pages: []AggregatePage{
		{ImgPath: "cover.jpg", Blocks: []models.TextBlock{{Lines: []string{"junk"}}}},
		{ImgPath: "page_0000.jpg", Blocks: []models.TextBlock{{Lines: []string{"a"}}}},
		{ImgPath: "page_0099.jpg", Blocks: []models.TextBlock{{Lines: []string{"out of range"}}}},
	}}

	results, _ := Reassemble(agg, 0, 1)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].TextBlocks[0].Lines[0] != "a" {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestReassembleChunkOffsets(t *testing.T) {
	agg := &Aggregate{Pages: []AggregatePage{
		{ImgPath: "page_0011.jpg", Blocks: []models.TextBlock{{Lines: []string{"twelve"}}}},
		{ImgPath: "page_0010.jpg", Blocks: []models.TextBlock{{Lines: []string{"eleven"}}}},
	}}

	results, missing := Reassemble(agg, 10, 2)
	if len(missing) != 0 {
		t.Fatalf("unexpected missing pages: %v", missing)
	}
	if results[0].PageIndex != 10 || results[1].PageIndex != 11 {
		t.Fatalf("unexpected indexes: %d, %d", results[0].PageIndex, results[1].PageIndex)
	}
}

func TestCollectResultsEndToEnd(t *testing.T) {
	v, err := NewVolume(t.TempDir(), "vol", "t", 0, [][]byte{[]byte("a"), []byte("b")})
	if err != nil {
		t.Fatalf("NewVolume() error = %v", err)
	}
	writeAggregateFile(t, v.ExpectedAggregatePath(), `{
		"pages": [
			{"img_path": "page_0001.jpg", "blocks": [{"box": [0,0,1,1], "lines": ["b"]}]},
			{"img_path": "page_0000.jpg", "blocks": [{"box": [0,0,1,1], "lines": ["a"]}]}
		]
	}`)

	results, missing, err := v.CollectResults(0)
	if err != nil {
		t.Fatalf("CollectResults() error = %v", err)
	}
	if len(missing) != 0 || len(results) != 2 {
		t.Fatalf("unexpected results: %+v missing=%v", results, missing)
	}
	if results[0].TextBlocks[0].Lines[0] != "a" || results[1].TextBlocks[0].Lines[0] != "b" {
		t.Fatalf("results not request-ordered: %+v", results)
	}
}
