// Package recorder pairs note start/end events into hold durations and keeps
// a sliding window of the most recent ones.
package recorder

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/jsphweid/midinotesduration/constants"
	"github.com/jsphweid/midinotesduration/util"
)

// ConfigError reports a rejected window size or outlier threshold. The
// recorder is left unchanged when one is returned.
type ConfigError struct {
	Field string
	Value any
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Msg)
}

// Snapshot is a consistent view of the recorder taken under one lock.
type Snapshot struct {
	WindowSize       int
	OutlierThreshold float64
	Raw              []float64
	Filtered         []float64
	Stats            Stats
	Pending          []string
}

// Stats summarizes the retained samples, unfiltered.
type Stats struct {
	Count   int     `json:"count"`
	Pending int     `json:"pending"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Recorder is safe for concurrent use. Every operation takes the same lock.
type Recorder struct {
	mu sync.Mutex

	pending    map[string]float64
	samples    []float64
	windowSize int
	maxStd     float64
}

// Option configures a Recorder in New.
type Option func(*Recorder)

// WithWindowSize sets the initial window. Non-positive values are ignored.
func WithWindowSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.windowSize = n
		}
	}
}

func WithOutlierThreshold(k float64) Option {
	return func(r *Recorder) {
		if validThreshold(k) {
			r.maxStd = k
		}
	}
}

// New returns an empty recorder with the default window and threshold.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		pending:    make(map[string]float64),
		windowSize: constants.DefaultWindowSize,
		maxStd:     constants.DefaultOutlierThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordStart marks note as held from ts. A second start before the
// matching end overwrites the first.
func (r *Recorder) RecordStart(note string, ts float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[note] = ts
}

// RecordEnd closes the pending start for note and records ts minus the
// start as a sample. Ends without a pending start are ignored and report
// false. Negative durations are recorded as is.
func (r *Recorder) RecordEnd(note string, ts float64) (float64, bool) {
	return r.RecordEndIf(note, ts, nil)
}

// RecordEndIf is RecordEnd, except the duration is only kept when keep
// returns true. The pending start is consumed either way. A nil keep keeps
// everything.
func (r *Recorder) RecordEndIf(note string, ts float64, keep func(duration float64) bool) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start, ok := r.pending[note]
	if !ok {
		return 0, false
	}
	delete(r.pending, note)
	duration := ts - start
	if keep == nil || keep(duration) {
		r.add(duration)
	}
	return duration, true
}

// AddSample appends a duration directly, bypassing start/end pairing.
func (r *Recorder) AddSample(value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(value)
}

func (r *Recorder) add(value float64) {
	r.samples = append(r.samples, value)
	r.enforceLimit()
}

func (r *Recorder) enforceLimit() {
	if len(r.samples) <= r.windowSize {
		return
	}
	// copy so the dropped prefix doesn't pin the old backing array
	kept := make([]float64, r.windowSize)
	copy(kept, r.samples[len(r.samples)-r.windowSize:])
	r.samples = kept
}

func ValidateWindowSize(n int) error {
	if n <= 0 {
		return &ConfigError{Field: "window size", Value: n, Msg: "must be a positive integer"}
	}
	return nil
}

func ValidateOutlierThreshold(k float64) error {
	if !validThreshold(k) {
		return &ConfigError{Field: "outlier threshold", Value: k, Msg: "must be between 0 and 99999"}
	}
	return nil
}

func (r *Recorder) SetWindowSize(n int) error {
	if err := ValidateWindowSize(n); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windowSize = n
	r.enforceLimit()
	return nil
}

// SetOutlierThreshold only affects later calls to Filtered.
func (r *Recorder) SetOutlierThreshold(k float64) error {
	if err := ValidateOutlierThreshold(k); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxStd = k
	return nil
}

// Configure validates both values, then applies the non-nil ones under one
// lock. Nothing changes when either is invalid.
func (r *Recorder) Configure(windowSize *int, threshold *float64) error {
	var errs []error
	if windowSize != nil {
		errs = append(errs, ValidateWindowSize(*windowSize))
	}
	if threshold != nil {
		errs = append(errs, ValidateOutlierThreshold(*threshold))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if windowSize != nil {
		r.windowSize = *windowSize
		r.enforceLimit()
	}
	if threshold != nil {
		r.maxStd = *threshold
	}
	return nil
}

// the disable sentinel is the largest accepted threshold
func validThreshold(k float64) bool {
	return k >= 0 && k <= constants.DisableOutlierFilter && !math.IsNaN(k)
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
	r.pending = make(map[string]float64)
}

func (r *Recorder) WindowSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windowSize
}

func (r *Recorder) OutlierThreshold() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxStd
}

// Len is the number of retained samples.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *Recorder) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Pending returns the identifiers of notes currently held, sorted.
func (r *Recorder) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return util.SortedKeys(r.pending)
}

// Raw returns a copy of the retained samples, oldest first.
func (r *Recorder) Raw() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copySamples()
}

func (r *Recorder) copySamples() []float64 {
	res := make([]float64, len(r.samples))
	copy(res, r.samples)
	return res
}

// Filtered returns the retained samples that are at most k standard
// deviations above the mean, in their original order. Only large values are
// rejected. Nothing is filtered when the threshold is the disable sentinel
// or every sample is equal. Mean and deviation are recomputed on every call.
func (r *Recorder) Filtered() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filtered()
}

func (r *Recorder) filtered() []float64 {
	if len(r.samples) == 0 {
		return []float64{}
	}
	if r.maxStd == constants.DisableOutlierFilter {
		return r.copySamples()
	}

	mean := util.Mean(r.samples)
	stdDev := util.PopulationStdDev(r.samples, mean)
	if stdDev == 0 {
		return r.copySamples()
	}

	threshold := r.maxStd*stdDev + mean
	res := make([]float64, 0, len(r.samples))
	for _, x := range r.samples {
		if x <= threshold {
			res = append(res, x)
		}
	}
	return res
}

func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats()
}

func (r *Recorder) stats() Stats {
	mean := util.Mean(r.samples)
	return Stats{
		Count:   len(r.samples),
		Pending: len(r.pending),
		Mean:    mean,
		StdDev:  util.PopulationStdDev(r.samples, mean),
		Min:     util.Min(r.samples),
		Max:     util.Max(r.samples),
	}
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		WindowSize:       r.windowSize,
		OutlierThreshold: r.maxStd,
		Raw:              r.copySamples(),
		Filtered:         r.filtered(),
		Stats:            r.stats(),
		Pending:          util.SortedKeys(r.pending),
	}
}
