package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jsphweid/midinotesduration/constants"
	"github.com/jsphweid/midinotesduration/histogram"
	"github.com/jsphweid/midinotesduration/model"
	"github.com/jsphweid/midinotesduration/recorder"
	"github.com/jsphweid/midinotesduration/session"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

const writeWait = 5 * time.Second

// DeviceLister is satisfied by *midi.Watcher.
type DeviceLister interface {
	Inputs() ([]model.DeviceInfo, error)
}

type Server struct {
	sess     *session.Session
	devices  DeviceLister
	bins     int
	upgrader websocket.Upgrader
}

type Option func(*Server)

// WithDevices enables /devices. Without it the endpoint returns an empty list.
func WithDevices(d DeviceLister) Option {
	return func(s *Server) { s.devices = d }
}

func WithHistogramBins(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.bins = n
		}
	}
}

func NewServer(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		sess: sess,
		bins: constants.DefaultHistogramBins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origins are enforced by the CORS layer
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/durations", s.HandleDurations).Methods(http.MethodGet)
	router.HandleFunc("/histogram", s.HandleHistogram).Methods(http.MethodGet)
	router.HandleFunc("/config", s.HandleConfig).Methods(http.MethodPut, http.MethodPost)
	router.HandleFunc("/clear", s.HandleClear).Methods(http.MethodPost)
	router.HandleFunc("/events", s.HandleEvents).Methods(http.MethodPost)
	router.HandleFunc("/devices", s.HandleDevices).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.HandleStream).Methods(http.MethodGet)
	router.Handle("/metrics", s.sess.Metrics().Handler()).Methods(http.MethodGet)
	return router
}

func (s *Server) HandleDurations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) HandleHistogram(w http.ResponseWriter, r *http.Request) {
	bins := s.bins
	if v := r.URL.Query().Get("bins"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bins must be a positive integer, got %q", v))
			return
		}
		bins = n
	}

	samples := s.sess.Recorder().Filtered()
	if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); raw {
		samples = s.sess.Recorder().Raw()
	}
	writeJSON(w, http.StatusOK, histogram.Build(samples, bins))
}

func (s *Server) HandleConfig(w http.ResponseWriter, r *http.Request) {
	var req model.ConfigRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.sess.Configure(req); err != nil {
		var cfgErr *recorder.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) HandleClear(w http.ResponseWriter, r *http.Request) {
	s.sess.Clear()
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

// HandleEvents lets a remote client, such as a browser using WebMIDI, act
// as the event source.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var req model.EventRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for i, ev := range req.Events {
		if ev.Note == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("event %d has no note", i))
			return
		}
		if math.IsNaN(ev.Timestamp) || math.IsInf(ev.Timestamp, 0) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("event %d has a non-finite timestamp", i))
			return
		}
	}

	var res model.EventResponse
	for _, ev := range req.Events {
		res.Accepted++
		if s.sess.Ingest(ev) {
			res.Recorded++
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) HandleDevices(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeJSON(w, http.StatusOK, []model.DeviceInfo{})
		return
	}
	devices, err := s.devices.Inputs()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("listing midi inputs: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// HandleStream pushes the current snapshot on connect and again after
// every change until the client goes away.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.sess.Subscribe()
	defer unsubscribe()

	// the client never sends anything useful; reading detects it leaving
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(snap model.DurationsResponse) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(snap)
	}

	if err := send(s.sess.Snapshot()); err != nil {
		return
	}
	log.Debug().Str("remote", r.RemoteAddr).Msg("stream client connected")
	for {
		select {
		case <-gone:
			log.Debug().Str("remote", r.RemoteAddr).Msg("stream client left")
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := send(snap); err != nil {
				log.Debug().Err(err).Msg("stream write failed")
				return
			}
		}
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("could not decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("could not encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, model.ErrorResponse{Error: err.Error()})
}
