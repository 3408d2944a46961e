package note

import (
	"fmt"
	"strconv"
	"strings"
)

var names = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Identifier names a MIDI key in scientific pitch notation, 60 being "C4".
// Keys on different channels share an identifier.
func Identifier(key uint8) string {
	return fmt.Sprintf("%s%d", names[key%12], int(key)/12-1)
}

// Channel filters incoming events by MIDI channel. AllChannels accepts
// every channel, otherwise only the 0-based channel it holds.
type Channel int

const AllChannels Channel = -1

// ParseChannel accepts "all" or a 1-based channel number as shown to users.
func ParseChannel(s string) (Channel, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "all" {
		return AllChannels, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return AllChannels, fmt.Errorf("channel %q is not a number or \"all\"", s)
	}
	if n < 1 || n > 16 {
		return AllChannels, fmt.Errorf("channel %d out of range 1-16", n)
	}
	return Channel(n - 1), nil
}

func (c Channel) Accepts(ch uint8) bool {
	return c == AllChannels || int(c) == int(ch)
}

func (c Channel) String() string {
	if c == AllChannels {
		return "all"
	}
	return strconv.Itoa(int(c) + 1)
}
