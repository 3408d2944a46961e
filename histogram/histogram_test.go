package histogram

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jsphweid/midinotesduration/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func total(h model.Histogram) int {
	var n int
	for _, b := range h.Bins {
		n += b.Count
	}
	return n
}

func latestBins(h model.Histogram) []model.Bin {
	var res []model.Bin
	for _, b := range h.Bins {
		if b.Latest {
			res = append(res, b)
		}
	}
	return res
}

func TestBuildEmpty(t *testing.T) {
	h := Build(nil, 200)

	assert.Empty(t, h.Bins)
	assert.NotNil(t, h.Bins)
	assert.Nil(t, h.Latest)
	assert.Equal(t, 0, h.Total)
}

func TestBuildCountsEverySample(t *testing.T) {
	samples := []float64{100, 120, 130, 180, 250, 400, 90, 110}
	h := Build(samples, 200)

	require.Len(t, h.Bins, 200)
	assert.Equal(t, len(samples), total(h))
	assert.Equal(t, len(samples), h.Total)
	assert.Equal(t, 90.0, h.Bins[0].Start)
	assert.Equal(t, 400.0, h.Bins[199].End)
	// max sits in the last bin, min in the first
	assert.Equal(t, 1, h.Bins[199].Count)
	assert.Equal(t, 1, h.Bins[0].Count)
}

func TestBuildMarksLatestBin(t *testing.T) {
	h := Build([]float64{0, 10, 20, 30, 40, 15}, 4)

	latest := latestBins(h)
	require.Len(t, latest, 1)
	assert.Equal(t, 10.0, latest[0].Start)
	assert.Equal(t, 20.0, latest[0].End)
	require.NotNil(t, h.Latest)
	assert.Equal(t, 15.0, *h.Latest)
}

func TestBuildAllEqual(t *testing.T) {
	h := Build([]float64{42, 42, 42}, 200)

	require.Len(t, h.Bins, 1)
	assert.Equal(t, model.Bin{Start: 42, End: 42, Count: 3, Latest: true}, h.Bins[0])
}

func TestMerge(t *testing.T) {
	h := Build([]float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 99}, 10)
	merged := Merge(h, 3)

	require.Len(t, merged.Bins, 3)
	assert.Equal(t, 10, total(merged))
	assert.Equal(t, 0.0, merged.Bins[0].Start)
	assert.Equal(t, 99.0, merged.Bins[2].End)
	require.Len(t, latestBins(merged), 1)
	assert.True(t, merged.Bins[2].Latest)

	assert.Equal(t, h, Merge(h, 50))
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build([]float64{100, 100, 200}, 2), 10))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], strings.Repeat("#", 10)+" 2")
	assert.Contains(t, lines[1], "*|#####")
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(nil, 10), 10))
	assert.Equal(t, "no notes recorded yet\n", buf.String())
}
