package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

type EventKind uint8

const (
	Start EventKind = iota
	End
)

func (k EventKind) String() string {
	switch k {
	case Start:
		return "start"
	case End:
		return "end"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToLower(s) {
	case "start", "on", "noteon":
		return Start, nil
	case "end", "off", "noteoff":
		return End, nil
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *EventKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEventKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// NoteEvent is one start or end of a held note. Timestamp is in
// milliseconds since an arbitrary epoch shared by a start and its end.
type NoteEvent struct {
	Note      string    `json:"note"`
	Kind      EventKind `json:"kind"`
	Timestamp float64   `json:"timestamp"`
}
