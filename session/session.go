// Package session wires event sources, renderers and configuration surfaces
// to a single recorder.
package session

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"github.com/jsphweid/midinotesduration/metrics"
	"github.com/jsphweid/midinotesduration/model"
	"github.com/jsphweid/midinotesduration/recorder"
	"github.com/rs/zerolog/log"
)

const DefaultDebounce = 30 * time.Millisecond

type Session struct {
	rec     *recorder.Recorder
	metrics *metrics.Metrics

	mu      sync.Mutex
	id      string
	subs    map[int]chan model.DurationsResponse
	nextSub int
	notify  func()
}

type Option func(*Session)

// WithDebounce sets how long change notifications are coalesced. Zero
// delivers them synchronously.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) {
		if d <= 0 {
			s.notify = s.broadcast
			return
		}
		debounced := debounce.New(d)
		s.notify = func() { debounced(s.broadcast) }
	}
}

func New(rec *recorder.Recorder, m *metrics.Metrics, opts ...Option) *Session {
	s := &Session{
		rec:     rec,
		metrics: m,
		id:      uuid.New().String(),
		subs:    make(map[int]chan model.DurationsResponse),
	}
	WithDebounce(DefaultDebounce)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.observe()
	return s
}

func (s *Session) Recorder() *recorder.Recorder {
	return s.rec
}

func (s *Session) Metrics() *metrics.Metrics {
	return s.metrics
}

// ID changes every time the session is cleared.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Ingest feeds one event to the recorder. It reports whether a duration
// sample was recorded. Events with a non-finite timestamp, and durations that
// overflow to infinity, are dropped.
func (s *Session) Ingest(ev model.NoteEvent) bool {
	s.metrics.Events.WithLabelValues(ev.Kind.String()).Inc()

	if !finite(ev.Timestamp) {
		s.metrics.NonFinite.Inc()
		log.Warn().Str("note", ev.Note).Float64("ts", ev.Timestamp).Msg("event timestamp is not finite, ignored")
		return false
	}

	switch ev.Kind {
	case model.Start:
		s.rec.RecordStart(ev.Note, ev.Timestamp)
		log.Debug().Str("note", ev.Note).Float64("ts", ev.Timestamp).Msg("note start")
		s.observe()
		return false
	case model.End:
		duration, ok := s.rec.RecordEndIf(ev.Note, ev.Timestamp, finite)
		if !ok {
			s.metrics.UnmatchedEnds.Inc()
			log.Debug().Str("note", ev.Note).Msg("note end without start, ignored")
			return false
		}
		if !finite(duration) {
			s.metrics.NonFinite.Inc()
			log.Warn().Str("note", ev.Note).Float64("duration_ms", duration).Msg("duration is not finite, dropped")
			s.observe()
			return false
		}
		s.metrics.SamplesRecorded.Inc()
		s.metrics.HoldDuration.Observe(duration)
		if duration < 0 {
			s.metrics.NegativeDurations.Inc()
			log.Warn().Str("note", ev.Note).Float64("duration_ms", duration).Msg("note ended before it started")
		}
		log.Debug().Str("note", ev.Note).Float64("duration_ms", duration).Msg("note recorded")
		s.observe()
		s.notify()
		return true
	}
	log.Warn().Stringer("kind", ev.Kind).Msg("unknown event kind, ignored")
	return false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Configure validates every field of req, then applies them together so no
// snapshot sees one change without the other.
func (s *Session) Configure(req model.ConfigRequest) error {
	var errs []error
	if req.WindowSize != nil {
		if err := recorder.ValidateWindowSize(*req.WindowSize); err != nil {
			s.metrics.ConfigRejected.WithLabelValues("window_size").Inc()
			errs = append(errs, err)
		}
	}
	if req.OutlierThreshold != nil {
		if err := recorder.ValidateOutlierThreshold(*req.OutlierThreshold); err != nil {
			s.metrics.ConfigRejected.WithLabelValues("outlier_threshold").Inc()
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("configuration rejected")
		return err
	}

	if err := s.rec.Configure(req.WindowSize, req.OutlierThreshold); err != nil {
		return err
	}
	log.Info().
		Int("window_size", s.rec.WindowSize()).
		Float64("outlier_threshold", s.rec.OutlierThreshold()).
		Msg("configuration updated")
	s.observe()
	s.notify()
	return nil
}

func (s *Session) Clear() {
	s.rec.Clear()
	s.mu.Lock()
	s.id = uuid.New().String()
	id := s.id
	s.mu.Unlock()

	s.metrics.Clears.Inc()
	log.Info().Str("session", id).Msg("recorder cleared")
	s.observe()
	s.notify()
}

func (s *Session) Snapshot() model.DurationsResponse {
	snap := s.rec.Snapshot()
	return model.DurationsResponse{
		Session:          s.ID(),
		WindowSize:       snap.WindowSize,
		OutlierThreshold: snap.OutlierThreshold,
		Raw:              snap.Raw,
		Filtered:         snap.Filtered,
		Stats:            snap.Stats,
		Pending:          snap.Pending,
	}
}

// Subscribe returns a channel receiving a snapshot after every change.
// A subscriber that falls behind only sees the newest snapshot. Call the
// returned func to unsubscribe.
func (s *Session) Subscribe() (<-chan model.DurationsResponse, func()) {
	ch := make(chan model.DurationsResponse, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Session) broadcast() {
	snap := s.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Session) observe() {
	s.metrics.BufferSize.Set(float64(s.rec.Len()))
	s.metrics.PendingNotes.Set(float64(s.rec.PendingCount()))
	s.metrics.WindowSize.Set(float64(s.rec.WindowSize()))
}
