package recorder

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/jsphweid/midinotesduration/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordPairs(r *Recorder, durations []float64) {
	var now float64
	for i, d := range durations {
		note := fmt.Sprintf("n%d", i)
		r.RecordStart(note, now)
		r.RecordEnd(note, now+d)
		now += d + 10
	}
}

func TestDefaults(t *testing.T) {
	r := New()

	assert := assert.New(t)
	assert.Equal(100, r.WindowSize())
	assert.Equal(6.0, r.OutlierThreshold())
	assert.Empty(r.Raw())
	assert.Empty(r.Filtered())
	assert.NotNil(r.Filtered())
}

func TestStartEndRecordsDuration(t *testing.T) {
	r := New()
	r.RecordStart("C4", 0)
	d, ok := r.RecordEnd("C4", 250)

	assert := assert.New(t)
	assert.True(ok)
	assert.Equal(250.0, d)
	assert.Equal([]float64{250}, r.Raw())

	// no pending start anymore
	_, ok = r.RecordEnd("C4", 300)
	assert.False(ok)
	assert.Equal([]float64{250}, r.Raw())
}

func TestUnmatchedEndIsIgnored(t *testing.T) {
	r := New()
	_, ok := r.RecordEnd("D4", 10)

	assert.False(t, ok)
	assert.Empty(t, r.Raw())
}

func TestLastStartWins(t *testing.T) {
	r := New()
	r.RecordStart("E4", 100)
	r.RecordStart("E4", 150)
	d, ok := r.RecordEnd("E4", 200)

	assert := assert.New(t)
	assert.True(ok)
	assert.Equal(50.0, d)
	assert.Equal(0, r.PendingCount())
}

func TestOverlappingNotes(t *testing.T) {
	r := New()
	r.RecordStart("C4", 0)
	r.RecordStart("E4", 10)
	r.RecordStart("G4", 20)
	assert.Equal(t, []string{"C4", "E4", "G4"}, r.Pending())

	r.RecordEnd("E4", 110)
	r.RecordEnd("C4", 300)
	r.RecordEnd("G4", 70)

	assert.Equal(t, []float64{100, 300, 50}, r.Raw())
	assert.Empty(t, r.Pending())
}

func TestNegativeDurationIsPassedThrough(t *testing.T) {
	r := New()
	r.RecordStart("A0", 500)
	d, ok := r.RecordEnd("A0", 400)

	assert.True(t, ok)
	assert.Equal(t, -100.0, d)
	assert.Equal(t, []float64{-100}, r.Raw())
}

func TestWindowKeepsMostRecent(t *testing.T) {
	r := New(WithWindowSize(3))
	recordPairs(r, []float64{10, 20, 30, 40})

	assert.Equal(t, []float64{20, 30, 40}, r.Raw())
}

func TestLengthIsMinOfPairsAndWindow(t *testing.T) {
	for _, window := range []int{1, 5, 50} {
		for _, pairs := range []int{0, 3, 10, 75} {
			t.Run(fmt.Sprintf("window %d pairs %d", window, pairs), func(t *testing.T) {
				r := New(WithWindowSize(window))
				durations := make([]float64, pairs)
				for i := range durations {
					durations[i] = float64(i + 1)
				}
				recordPairs(r, durations)

				expected := pairs
				if window < expected {
					expected = window
				}
				raw := r.Raw()
				require.Len(t, raw, expected)
				if expected > 0 {
					assert.Equal(t, float64(pairs), raw[len(raw)-1])
				}
			})
		}
	}
}

func TestShrinkingWindowDropsOldest(t *testing.T) {
	r := New()
	recordPairs(r, []float64{1, 2, 3, 4, 5, 6})

	require.NoError(t, r.SetWindowSize(4))
	assert.Equal(t, []float64{3, 4, 5, 6}, r.Raw())

	require.NoError(t, r.SetWindowSize(2))
	assert.Equal(t, []float64{5, 6}, r.Raw())
}

func TestGrowingWindowKeepsSamples(t *testing.T) {
	r := New(WithWindowSize(2))
	recordPairs(r, []float64{1, 2, 3})
	require.NoError(t, r.SetWindowSize(10))

	assert.Equal(t, []float64{2, 3}, r.Raw())
	recordPairs(r, []float64{4, 5})
	assert.Equal(t, []float64{2, 3, 4, 5}, r.Raw())
}

func TestInvalidWindowSizeIsRejected(t *testing.T) {
	r := New(WithWindowSize(3))
	recordPairs(r, []float64{1, 2, 3})

	for _, n := range []int{0, -3} {
		err := r.SetWindowSize(n)
		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr), "expected ConfigError for %d", n)
		assert.Equal(t, "window size", cfgErr.Field)
	}
	assert.Equal(t, 3, r.WindowSize())
	assert.Equal(t, []float64{1, 2, 3}, r.Raw())
}

func TestInvalidOutlierThresholdIsRejected(t *testing.T) {
	r := New()
	for _, k := range []float64{-1, math.NaN(), math.Inf(1), 100000} {
		err := r.SetOutlierThreshold(k)
		var cfgErr *ConfigError
		assert.True(t, errors.As(err, &cfgErr))
	}
	assert.Equal(t, 6.0, r.OutlierThreshold())
}

func TestFilteredRejectsHighOutlier(t *testing.T) {
	r := New()
	require.NoError(t, r.SetOutlierThreshold(1))
	for _, v := range []float64{5, 5, 5, 5, 100} {
		r.AddSample(v)
	}

	assert.Equal(t, []float64{5, 5, 5, 5}, r.Filtered())
	// still in the buffer
	assert.Equal(t, []float64{5, 5, 5, 5, 100}, r.Raw())
}

func TestFilteredNeverRejectsLowValues(t *testing.T) {
	r := New()
	require.NoError(t, r.SetOutlierThreshold(0))
	for _, v := range []float64{1, 100, 100, 100} {
		r.AddSample(v)
	}

	// mean 75.25, everything at or below it survives
	assert.Equal(t, []float64{1}, r.Filtered())
}

func TestFilteredDisabledBySentinel(t *testing.T) {
	r := New()
	require.NoError(t, r.SetOutlierThreshold(0))
	for _, v := range []float64{5, 5, 5, 5, 100} {
		r.AddSample(v)
	}
	require.NoError(t, r.SetOutlierThreshold(constants.DisableOutlierFilter))

	assert.Equal(t, r.Raw(), r.Filtered())
}

func TestFilteredAllEqualReturnsEverything(t *testing.T) {
	r := New()
	require.NoError(t, r.SetOutlierThreshold(0))
	for i := 0; i < 5; i++ {
		r.AddSample(42)
	}

	assert.Equal(t, r.Raw(), r.Filtered())
}

func TestFilteredIsOrderedSubsequenceOfRaw(t *testing.T) {
	r := New(WithWindowSize(20))
	require.NoError(t, r.SetOutlierThreshold(0.5))
	for _, v := range []float64{120, 80, 3000, 95, 101, 60, 2500, 110, 90, 40} {
		r.AddSample(v)
	}

	raw := r.Raw()
	filtered := r.Filtered()
	require.NotEmpty(t, filtered)

	i := 0
	for _, v := range raw {
		if i < len(filtered) && filtered[i] == v {
			i++
		}
	}
	assert.Equal(t, len(filtered), i, "filtered view must be a subsequence of raw")
}

func TestFilteringIsReevaluatedOnEveryCall(t *testing.T) {
	r := New()
	require.NoError(t, r.SetOutlierThreshold(1))
	for _, v := range []float64{5, 5, 5, 5, 100} {
		r.AddSample(v)
	}
	assert.NotContains(t, r.Filtered(), 100.0)

	// enough large samples make 100 look normal again
	for i := 0; i < 10; i++ {
		r.AddSample(100)
	}
	assert.Contains(t, r.Filtered(), 100.0)
}

func TestThresholdChangeDoesNotMutateSamples(t *testing.T) {
	r := New()
	for _, v := range []float64{5, 5, 5, 5, 100} {
		r.AddSample(v)
	}
	require.NoError(t, r.SetOutlierThreshold(1))
	require.NoError(t, r.SetOutlierThreshold(6))

	assert.Equal(t, []float64{5, 5, 5, 5, 100}, r.Filtered())
}

func TestClear(t *testing.T) {
	r := New()
	recordPairs(r, []float64{10, 20})
	r.RecordStart("C4", 0)
	r.Clear()

	assert := assert.New(t)
	assert.Empty(r.Raw())
	assert.Empty(r.Filtered())
	assert.Equal(0, r.PendingCount())

	_, ok := r.RecordEnd("C4", 100)
	assert.False(ok)
	assert.Empty(r.Raw())
}

func TestRawReturnsCopy(t *testing.T) {
	r := New()
	r.AddSample(1)
	raw := r.Raw()
	raw[0] = 99

	assert.Equal(t, []float64{1}, r.Raw())
}

func TestStats(t *testing.T) {
	r := New()
	for _, v := range []float64{5, 5, 5, 5, 100} {
		r.AddSample(v)
	}
	r.RecordStart("C4", 0)

	assert.Equal(t, Stats{Count: 5, Pending: 1, Mean: 24, StdDev: 38, Min: 5, Max: 100}, r.Stats())
}

func TestConcurrentUse(t *testing.T) {
	r := New(WithWindowSize(50))
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				note := fmt.Sprintf("g%d-%d", g, i%7)
				r.RecordStart(note, float64(i))
				r.RecordEnd(note, float64(i+5))
				_ = r.Filtered()
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}

	assert.Len(t, r.Raw(), 50)
}

func TestSnapshot(t *testing.T) {
	r := New(WithWindowSize(10), WithOutlierThreshold(1))
	for _, v := range []float64{5, 5, 5, 5, 100} {
		r.AddSample(v)
	}
	r.RecordStart("G4", 3)

	snap := r.Snapshot()
	assert := assert.New(t)
	assert.Equal(10, snap.WindowSize)
	assert.Equal(1.0, snap.OutlierThreshold)
	assert.Equal([]float64{5, 5, 5, 5, 100}, snap.Raw)
	assert.Equal([]float64{5, 5, 5, 5}, snap.Filtered)
	assert.Equal(5, snap.Stats.Count)
	assert.Equal([]string{"G4"}, snap.Pending)
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	r := New(WithWindowSize(0), WithOutlierThreshold(-2))
	assert.Equal(t, 100, r.WindowSize())
	assert.Equal(t, 6.0, r.OutlierThreshold())
}

func TestRecordEndIfDropsRejectedDuration(t *testing.T) {
	r := New()
	r.AddSample(5)
	r.AddSample(100)
	r.RecordStart("C4", -1e308)

	finite := func(d float64) bool { return !math.IsInf(d, 0) && !math.IsNaN(d) }
	d, ok := r.RecordEndIf("C4", 1e308, finite)

	assert := assert.New(t)
	assert.True(ok)
	assert.True(math.IsInf(d, 1))
	assert.Equal([]float64{5, 100}, r.Raw())
	assert.Equal([]float64{5, 100}, r.Filtered())
	assert.Equal(0, r.PendingCount())

	_, ok = r.RecordEndIf("C4", 10, finite)
	assert.False(ok)
}

func TestConfigureAppliesBothOrNeither(t *testing.T) {
	r := New()
	recordPairs(r, []float64{10, 20, 30, 40})

	require.NoError(t, r.Configure(intPtr(3), floatPtr(1)))
	snap := r.Snapshot()
	assert.Equal(t, 3, snap.WindowSize)
	assert.Equal(t, 1.0, snap.OutlierThreshold)
	assert.Equal(t, []float64{20, 30, 40}, snap.Raw)

	err := r.Configure(intPtr(2), floatPtr(constants.DisableOutlierFilter+1))
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 3, r.WindowSize())
	assert.Equal(t, 1.0, r.OutlierThreshold())

	require.NoError(t, r.Configure(nil, floatPtr(2)))
	assert.Equal(t, 3, r.WindowSize())
	assert.Equal(t, 2.0, r.OutlierThreshold())
}

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }
