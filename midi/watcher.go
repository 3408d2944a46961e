package midi

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jsphweid/midinotesduration/model"
	"github.com/jsphweid/midinotesduration/note"
	"github.com/rs/zerolog/log"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// ExcludedPatterns match virtual/system ports that are never auto-connected.
var ExcludedPatterns = []string{"Midi Through", "Through Port", "Dummy"}

const RescanInterval = time.Second

type WatcherOptions struct {
	// Device is an exact input name. When empty, the first input matching
	// Preferred is used, otherwise the first input.
	Device    string
	Preferred []string
	Channel   note.Channel

	OnEvent func(model.NoteEvent)
	// OnDisconnect runs on its own goroutine when the connected input goes
	// away.
	OnDisconnect func(device string)
}

// Watcher keeps a connection to one MIDI input, reconnecting on hot-plug,
// and turns its note messages into NoteEvents stamped with a monotonic
// millisecond clock.
type Watcher struct {
	mu           sync.Mutex
	drv          drivers.Driver
	inPort       drivers.In
	stopFn       func()
	connected    bool
	selectedName string
	lastRescanAt time.Time
	epoch        time.Time

	opts WatcherOptions
}

func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return newWatcher(drv, opts), nil
}

func newWatcher(drv drivers.Driver, opts WatcherOptions) *Watcher {
	return &Watcher{
		drv:   drv,
		epoch: time.Now(),
		opts:  opts,
	}
}

func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeConn()
	w.drv.Close()
}

// Connected returns the name of the connected input, if any.
func (w *Watcher) Connected() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedName, w.connected
}

// Inputs lists every input the driver reports, excluded ones included.
func (w *Watcher) Inputs() ([]model.DeviceInfo, error) {
	ins, err := w.drv.Ins()
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	res := make([]model.DeviceInfo, 0, len(ins))
	for _, in := range ins {
		name := in.String()
		res = append(res, model.DeviceInfo{
			Name:      name,
			Connected: w.connected && name == w.selectedName,
		})
	}
	return res, nil
}

// Tick rescans inputs at most once per RescanInterval, connects to a
// candidate when idle and notices when the connected input disappears.
func (w *Watcher) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if !w.lastRescanAt.IsZero() && now.Sub(w.lastRescanAt) < RescanInterval {
		return
	}
	w.lastRescanAt = now

	inputs := w.listInputs()

	if w.connected {
		for _, n := range inputs {
			if n == w.selectedName {
				return
			}
		}
		log.Warn().Str("device", w.selectedName).Msg("midi: device disappeared")
		w.disconnected()
		return
	}

	if len(inputs) == 0 {
		return
	}
	cand, ok := PickInput(inputs, w.opts.Device, w.opts.Preferred)
	if !ok {
		log.Debug().Str("device", w.opts.Device).Strs("available", inputs).Msg("midi: configured input not present")
		return
	}
	if err := w.openByName(cand); err != nil {
		log.Error().Err(err).Str("device", cand).Msg("midi: connect failed")
	}
}

// Now is the watcher's clock in milliseconds.
func (w *Watcher) Now() float64 {
	return float64(time.Since(w.epoch).Microseconds()) / 1000
}

func (w *Watcher) listInputs() []string {
	ins, err := w.drv.Ins()
	if err != nil {
		log.Error().Err(err).Msg("midi: list inputs failed")
		return nil
	}
	var names []string
	for _, in := range ins {
		name := in.String()
		if Excluded(name) {
			log.Debug().Str("device", name).Msg("midi: input excluded")
			continue
		}
		names = append(names, name)
	}
	return names
}

// Excluded reports whether name looks like a virtual or system port.
func Excluded(name string) bool {
	for _, pat := range ExcludedPatterns {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

// PickInput chooses which of inputs to connect to: the exact device if
// given, else the first preferred match, else the first input. A named
// device that is missing picks nothing.
func PickInput(inputs []string, device string, preferred []string) (string, bool) {
	if device != "" {
		for _, name := range inputs {
			if name == device {
				return name, true
			}
		}
		return "", false
	}
	for _, pat := range preferred {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) > 0 {
		return inputs[0], true
	}
	return "", false
}

func (w *Watcher) closeConn() {
	if w.stopFn != nil {
		w.stopFn()
		w.stopFn = nil
	}
	if w.inPort != nil {
		_ = w.inPort.Close()
		w.inPort = nil
	}
	w.connected = false
	w.selectedName = ""
}

// disconnected must be called with mu held.
func (w *Watcher) disconnected() {
	name := w.selectedName
	w.closeConn()
	w.lastRescanAt = time.Time{}
	if w.opts.OnDisconnect != nil {
		go w.opts.OnDisconnect(name)
	}
}

func (w *Watcher) openByName(name string) error {
	ins, err := w.drv.Ins()
	if err != nil {
		return err
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return fmt.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	stop, err := gomidi.ListenTo(found, func(msg gomidi.Message, _ int32) {
		w.handle(msg)
	}, gomidi.HandleError(func(listenErr error) {
		log.Warn().Err(listenErr).Str("device", name).Msg("midi: listener error")
		// closeConn calls stopFn, which must not run on the listener goroutine
		go func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.connected && w.selectedName == name {
				w.disconnected()
			}
		}()
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	w.inPort = found
	w.stopFn = stop
	w.connected = true
	w.selectedName = name
	log.Info().Str("device", name).Str("channel", w.opts.Channel.String()).Msg("midi: connected")
	return nil
}

func (w *Watcher) handle(msg gomidi.Message) {
	ev, ok := toEvent(msg, w.opts.Channel, w.Now())
	if !ok {
		log.Trace().Str("msg", msg.String()).Msg("midi: unhandled message")
		return
	}
	if w.opts.OnEvent != nil {
		w.opts.OnEvent(ev)
	}
}

func toEvent(msg gomidi.Message, ch note.Channel, ts float64) (model.NoteEvent, bool) {
	var channel, key, velocity uint8
	kind, ok := noteKind(msg, &channel, &key, &velocity)
	if !ok || !ch.Accepts(channel) {
		return model.NoteEvent{}, false
	}
	return model.NoteEvent{Note: note.Identifier(key), Kind: kind, Timestamp: ts}, true
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
