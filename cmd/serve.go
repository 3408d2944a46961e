package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jsphweid/midinotesduration/api"
	"github.com/jsphweid/midinotesduration/histogram"
	"github.com/jsphweid/midinotesduration/metrics"
	"github.com/jsphweid/midinotesduration/midi"
	"github.com/jsphweid/midinotesduration/model"
	"github.com/jsphweid/midinotesduration/recorder"
	"github.com/jsphweid/midinotesduration/session"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	addr        string
	device      string
	noMidi      bool
	printRender bool
	origins     []string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&device, "device", "", "exact MIDI input name to connect to")
	serveCmd.Flags().BoolVar(&noMidi, "no-midi", false, "don't open a MIDI input, only accept events over HTTP")
	serveCmd.Flags().BoolVar(&printRender, "print", false, "draw the histogram to stderr after every change")
	serveCmd.Flags().StringSliceVar(&origins, "cors-origin", []string{"*"}, "allowed CORS origins")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Records held-note durations and serves them over HTTP",
	Long: `Connects to a MIDI input (hot-plug aware), records note hold durations
and serves them as JSON, a histogram, a WebSocket stream and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr != "" {
			cfg.Addr = addr
		}
		if device != "" {
			cfg.Device = device
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	rec := recorder.New(cfg.RecorderOptions()...)
	sess := session.New(rec, metrics.New())
	opts := []api.Option{api.WithHistogramBins(cfg.HistogramBins)}

	if !noMidi {
		watcher, err := midi.NewWatcher(midi.WatcherOptions{
			Device:    cfg.Device,
			Preferred: cfg.PreferredDevices,
			Channel:   cfg.MidiChannel(),
			OnEvent:   func(ev model.NoteEvent) { sess.Ingest(ev) },
			OnDisconnect: func(name string) {
				log.Warn().Str("device", name).Msg("midi input lost, waiting for it to come back")
			},
		})
		if err != nil {
			return fmt.Errorf("could not start midi: %w", err)
		}
		defer watcher.Close()
		opts = append(opts, api.WithDevices(watcher))
		go watch(ctx, watcher)
	}

	if printRender {
		go printLoop(ctx, sess, cfg.HistogramBins)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(api.NewServer(sess, opts...).Router())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().
		Str("addr", cfg.Addr).
		Int("window_size", rec.WindowSize()).
		Float64("outlier_threshold", rec.OutlierThreshold()).
		Str("channel", cfg.MidiChannel().String()).
		Bool("midi", !noMidi).
		Msg("serving")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("stopped")
	return nil
}

func watch(ctx context.Context, watcher *midi.Watcher) {
	watcher.Tick()
	ticker := time.NewTicker(midi.RescanInterval / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			watcher.Tick()
		}
	}
}

func printLoop(ctx context.Context, sess *session.Session, bins int) {
	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			printSnapshot(snap, bins, snap.Filtered)
		}
	}
}

func printSnapshot(snap model.DurationsResponse, bins int, samples []float64) {
	h := histogram.Merge(histogram.Build(samples, bins), 24)
	fmt.Fprintf(os.Stderr, "\n%d notes (%d shown), mean %.1f ms, std dev %.1f ms\n",
		snap.Stats.Count, len(samples), snap.Stats.Mean, snap.Stats.StdDev)
	if err := histogram.Render(os.Stderr, h, 50); err != nil {
		log.Error().Err(err).Msg("render failed")
	}
}
