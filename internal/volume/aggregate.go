package volume

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
)

// Aggregate is the engine's single output file for a volume. The schema is an
// unstable external contract: unknown fields are ignored and only the parts
// the service relays are decoded.
type Aggregate struct {
	Version string          `json:"version"`
	Title   string          `json:"title"`
	Pages   []AggregatePage `json:"pages"`
}

// AggregatePage is one page entry inside the aggregate, keyed by the image
// file name the engine saw, not by request order.
type AggregatePage struct {
	ImgPath   string             `json:"img_path"`
	ImgWidth  int                `json:"img_width"`
	ImgHeight int                `json:"img_height"`
	Blocks    []models.TextBlock `json:"blocks"`
}

// ParseAggregate reads and decodes an aggregate file.
func ParseAggregate(path string) (*Aggregate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aggregate: %w", err)
	}
	var agg Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return nil, fmt.Errorf("parse aggregate %s: %w", path, err)
	}
	return &agg, nil
}

// Reassemble re-keys aggregate pages by request index. The engine lists pages
// in its own order (and may omit pages entirely); the result always has
// exactly totalPages entries, index-ordered firstIndex..firstIndex+totalPages-1,
// with an empty block list standing in for any page the engine dropped. The
// second return value lists those dropped indexes.
func Reassemble(agg *Aggregate, firstIndex, totalPages int) ([]models.PageResult, []int) {
	byIndex := make(map[int][]models.TextBlock, len(agg.Pages))
	for _, page := range agg.Pages {
		idx := PageIndexFromName(page.ImgPath)
		if idx < firstIndex || idx >= firstIndex+totalPages {
			continue
		}
		blocks := page.Blocks
		if blocks == nil {
			blocks = []models.TextBlock{}
		}
		byIndex[idx] = blocks
	}

	results := make([]models.PageResult, 0, totalPages)
	var missing []int
	for i := firstIndex; i < firstIndex+totalPages; i++ {
		blocks, ok := byIndex[i]
		if !ok {
			blocks = []models.TextBlock{}
			missing = append(missing, i)
		}
		results = append(results, models.PageResult{PageIndex: i, TextBlocks: blocks})
	}
	sort.Slice(results, func(a, b int) bool { return results[a].PageIndex < results[b].PageIndex })
	return results, missing
}

// CollectResults locates, parses and reassembles a processed volume's output
// in one step.
func (v *Volume) CollectResults(firstIndex int) ([]models.PageResult, []int, error) {
	path, err := v.LocateAggregate()
	if err != nil {
		return nil, nil, err
	}
	agg, err := ParseAggregate(path)
	if err != nil {
		return nil, nil, err
	}
	results, missing := Reassemble(agg, firstIndex, len(v.Pages))
	return results, missing, nil
}

// WriteAggregate serializes an aggregate to the expected parent-directory
// location. Used by engines that synthesize output themselves.
func (v *Volume) WriteAggregate(agg *Aggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode aggregate: %w", err)
	}
	return os.WriteFile(v.ExpectedAggregatePath(), data, 0o644)
}
