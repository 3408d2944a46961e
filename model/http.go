package model

import "github.com/jsphweid/midinotesduration/recorder"

type DurationsResponse struct {
	Session          string         `json:"session"`
	WindowSize       int            `json:"window_size"`
	OutlierThreshold float64        `json:"outlier_threshold"`
	Raw              []float64      `json:"raw"`
	Filtered         []float64      `json:"filtered"`
	Stats            recorder.Stats `json:"stats"`
	Pending          []string       `json:"pending"`
}

// ConfigRequest fields left out are not changed.
type ConfigRequest struct {
	WindowSize       *int     `json:"window_size,omitempty"`
	OutlierThreshold *float64 `json:"outlier_threshold,omitempty"`
}

type EventRequest struct {
	Events []NoteEvent `json:"events"`
}

type EventResponse struct {
	Accepted int `json:"accepted"`
	Recorded int `json:"recorded"`
}

type Bin struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Count  int     `json:"count"`
	Latest bool    `json:"latest,omitempty"`
}

type Histogram struct {
	Bins   []Bin    `json:"bins"`
	Total  int      `json:"total"`
	Latest *float64 `json:"latest,omitempty"`
}

type DeviceInfo struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

type ErrorResponse struct {
	Error string `json:"detail"`
}
