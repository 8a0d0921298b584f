package defs

import "time"

// StreamInfo is the externally-visible description of a live stream.
type StreamInfo struct {
	ID         string    `json:"id"`
	ProducerID string    `json:"producerId"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	CustomName string    `json:"customName,omitempty"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	FPS        int       `json:"fps"`
	Bitrate    uint64    `json:"bitrate"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DisplayName returns the operator-assigned name when present,
// the device name otherwise.
func (s StreamInfo) DisplayName() string {
	if s.CustomName != "" {
		return s.CustomName
	}
	return s.DeviceName
}

// EventType labels a lifecycle broadcast.
type EventType string

// Lifecycle broadcasts.
const (
	EventDeviceConnected        EventType = "device-connected"
	EventDeviceDisconnected     EventType = "device-disconnected"
	EventDeviceRemoved          EventType = "device-removed"
	EventDeviceStreamingChanged EventType = "device-streaming-changed"
	EventStreamStarted          EventType = "stream-started"
	EventStreamUpdated          EventType = "stream-updated"
	EventStreamEnded            EventType = "stream-ended"
	EventStreamNameUpdated      EventType = "stream-name-updated"
)

// Event is a lifecycle broadcast delivered to signaling observers.
type Event struct {
	Type EventType `json:"type"`

	DeviceID    string      `json:"deviceId,omitempty"`
	DeviceName  string      `json:"deviceName,omitempty"`
	IsStreaming *bool       `json:"isStreaming,omitempty"`
	StreamID    string      `json:"streamId,omitempty"`
	Name        string      `json:"name,omitempty"`
	Stream      *StreamInfo `json:"stream,omitempty"`
}
