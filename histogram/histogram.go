// Package histogram bins duration samples for display.
package histogram

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jsphweid/midinotesduration/model"
	"github.com/jsphweid/midinotesduration/util"
)

// Build spreads samples over bins equal-width bins between their min and
// max. The bin containing the last sample is marked Latest.
func Build(samples []float64, bins int) model.Histogram {
	h := model.Histogram{Bins: []model.Bin{}, Total: len(samples)}
	if len(samples) == 0 || bins <= 0 {
		return h
	}

	latest := samples[len(samples)-1]
	h.Latest = &latest

	lo, hi := util.Min(samples), util.Max(samples)
	if lo == hi {
		h.Bins = append(h.Bins, model.Bin{Start: lo, End: hi, Count: len(samples), Latest: true})
		return h
	}

	width := (hi - lo) / float64(bins)
	h.Bins = make([]model.Bin, bins)
	for i := range h.Bins {
		h.Bins[i].Start = lo + float64(i)*width
		h.Bins[i].End = lo + float64(i+1)*width
	}
	h.Bins[bins-1].End = hi

	for _, v := range samples {
		h.Bins[index(v, lo, width, bins)].Count++
	}
	h.Bins[index(latest, lo, width, bins)].Latest = true
	return h
}

func index(v, lo, width float64, bins int) int {
	i := int(math.Floor((v - lo) / width))
	if i >= bins {
		// max lands on the closing edge
		i = bins - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// Merge folds adjacent bins together so that at most n remain.
func Merge(h model.Histogram, n int) model.Histogram {
	if n <= 0 || len(h.Bins) <= n {
		return h
	}
	per := int(math.Ceil(float64(len(h.Bins)) / float64(n)))
	merged := model.Histogram{Total: h.Total, Latest: h.Latest}
	for i := 0; i < len(h.Bins); i += per {
		end := i + per
		if end > len(h.Bins) {
			end = len(h.Bins)
		}
		b := model.Bin{Start: h.Bins[i].Start, End: h.Bins[end-1].End}
		for _, src := range h.Bins[i:end] {
			b.Count += src.Count
			b.Latest = b.Latest || src.Latest
		}
		merged.Bins = append(merged.Bins, b)
	}
	return merged
}

// Render draws one row per bin with bars scaled to width. The bin holding
// the latest sample is marked with '*'.
func Render(w io.Writer, h model.Histogram, width int) error {
	if len(h.Bins) == 0 {
		_, err := fmt.Fprintln(w, "no notes recorded yet")
		return err
	}

	peak := 0
	for _, b := range h.Bins {
		if b.Count > peak {
			peak = b.Count
		}
	}

	for _, b := range h.Bins {
		bar := 0
		if peak > 0 {
			bar = int(math.Round(float64(b.Count) / float64(peak) * float64(width)))
		}
		mark := " "
		if b.Latest {
			mark = "*"
		}
		_, err := fmt.Fprintf(w, "%8.1f - %8.1f ms %s|%s %d\n", b.Start, b.End, mark, strings.Repeat("#", bar), b.Count)
		if err != nil {
			return err
		}
	}
	return nil
}
