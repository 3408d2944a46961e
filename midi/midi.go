package midi

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/jsphweid/midinotesduration/model"
	"github.com/jsphweid/midinotesduration/note"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func ReadMidiFile(filepath string) (s *smf.SMF, e error) {
	// handle panics
	// https://github.com/gomidi/midi/issues/20
	defer func() {
		if r := recover(); r != nil {
			s = nil
			e = fmt.Errorf("parsing midi file %s panicked: %v", filepath, r)
		}
	}()

	dat, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("error reading midi file: %w", err)
	}

	res, err := smf.ReadFrom(bytes.NewReader(dat))
	if err != nil {
		return nil, fmt.Errorf("error parsing midi file: %w", err)
	}
	if res.TimeFormat == nil {
		return nil, errors.New("error parsing midi file: missing time format")
	}

	return res, nil
}

// FileEvents flattens every track of s into note start/end events with
// absolute timestamps in milliseconds. Events are ordered by time and, at
// equal times, ends come before starts so a repeated key closes before it
// reopens.
func FileEvents(s *smf.SMF, ch note.Channel) []model.NoteEvent {
	var events []model.NoteEvent

	for _, track := range s.Tracks {
		var absTicks int64
		for _, event := range track {
			absTicks += int64(event.Delta)
			var channel, key, velocity uint8
			kind, ok := noteKind(gomidi.Message(event.Message), &channel, &key, &velocity)
			if !ok || !ch.Accepts(channel) {
				continue
			}
			events = append(events, model.NoteEvent{
				Note: note.Identifier(key),
				Kind: kind,
				// TimeAt is in microseconds
				Timestamp: float64(s.TimeAt(absTicks)) / 1000,
			})
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].Kind == model.End && events[j].Kind == model.Start
	})
	return events
}

// noteKind treats a note-on with velocity 0 as an end.
func noteKind(msg gomidi.Message, channel, key, velocity *uint8) (model.EventKind, bool) {
	switch {
	case msg.GetNoteStart(channel, key, velocity):
		return model.Start, true
	case msg.GetNoteEnd(channel, key):
		return model.End, true
	}
	return 0, false
}
