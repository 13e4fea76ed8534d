package timeline

import (
	"context"
	"log"
	"math"

	"github.com/mondo989/MemeSync/internal/models"
)

// epsilon absorbs float drift in duration math so a boundary remainder is
// classified the same way every run.
const epsilon = 1e-9

// AssetPicker supplies one additional asset for a keyword, avoiding the
// excluded URLs when the pool allows it.
type AssetPicker interface {
	PickAsset(ctx context.Context, keyword string, exclude []string) (string, error)
}

// Expander splits matched assignments into display slots bounded by the
// configured durations. All duration math in the pipeline lives here.
type Expander struct {
	maxSlot float64
	minSlot float64
	picker  AssetPicker
}

func New(maxSlot, minSlot float64, picker AssetPicker) *Expander {
	return &Expander{
		maxSlot: maxSlot,
		minSlot: minSlot,
		picker:  picker,
	}
}

// Expand converts matched assets into the final ordered slot list. A slot
// never exceeds maxSlot; when a range is split, a remainder shorter than
// minSlot is absorbed into the preceding slot and a remainder of at least
// minSlot becomes its own slot. Slots after the first in a split group get a
// distinct filler asset where the pool allows; shortfall repeats the group's
// original asset.
func (e *Expander) Expand(ctx context.Context, assets []models.MatchedAsset) []models.VisualSlot {
	// Seed the exclusion set with every already-matched URL so fillers do
	// not repeat an asset some other segment is showing.
	seen := make(map[string]bool, len(assets))
	exclude := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.AssetURL != "" && !seen[a.AssetURL] {
			seen[a.AssetURL] = true
			exclude = append(exclude, a.AssetURL)
		}
	}

	var slots []models.VisualSlot
	for _, asset := range assets {
		d := asset.Segment.Duration()
		if d <= epsilon {
			log.Printf("[Timeline] Skipping invalid range %.2f-%.2f for keyword %q",
				asset.Segment.Start, asset.Segment.End, asset.Keyword)
			continue
		}

		count := e.slotCount(d)
		for i := 0; i < count; i++ {
			start := asset.Segment.Start + float64(i)*e.maxSlot
			end := start + e.maxSlot
			if i == count-1 {
				end = asset.Segment.End
			}

			url := asset.AssetURL
			if i > 0 {
				url = e.pickFiller(ctx, asset, seen, &exclude)
			}

			slots = append(slots, models.VisualSlot{
				Start:         start,
				End:           end,
				AssetURL:      url,
				SegmentIndex:  i + 1,
				TotalSegments: count,
			})
		}
	}

	log.Printf("[Timeline] Expanded %d assignments into %d slots", len(assets), len(slots))
	return slots
}

// slotCount applies the split rule to one duration.
func (e *Expander) slotCount(d float64) int {
	if d <= e.maxSlot+epsilon {
		return 1
	}

	n := int(math.Floor(d/e.maxSlot + epsilon))
	remainder := d - float64(n)*e.maxSlot

	switch {
	case remainder <= epsilon:
		// Exact multiple of maxSlot.
		return n
	case remainder >= e.minSlot-epsilon:
		// Long enough to stand alone.
		return n + 1
	default:
		// Too short for its own slot; the final slot absorbs it.
		return n
	}
}

// pickFiller asks the picker for one more distinct asset, falling back to the
// group's original URL when the pool is exhausted or the picker errors.
func (e *Expander) pickFiller(ctx context.Context, asset models.MatchedAsset, seen map[string]bool, exclude *[]string) string {
	if e.picker == nil {
		return asset.AssetURL
	}

	url, err := e.picker.PickAsset(ctx, asset.Keyword, *exclude)
	if err != nil || url == "" {
		if err != nil {
			log.Printf("[Timeline] Filler lookup for %q failed, reusing original asset: %v", asset.Keyword, err)
		}
		return asset.AssetURL
	}

	if !seen[url] {
		seen[url] = true
		*exclude = append(*exclude, url)
	}
	return url
}
