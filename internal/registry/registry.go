// Package registry contains the device and stream registry.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/camroute/camroute/internal/defs"
	"github.com/camroute/camroute/internal/eventbus"
	"github.com/camroute/camroute/internal/logger"
)

// Device is the externally-visible state of a known device.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	SessionID string    `json:"-"`
	Connected bool      `json:"connected"`
	Streaming bool      `json:"streaming"`
	StreamID  string    `json:"streamId,omitempty"`
	LastSeen  time.Time `json:"lastSeen"`
}

type device struct {
	Device

	removalTimer *time.Timer
	removalGen   uint64
}

// Registry is the authoritative mapping between device identities,
// sessions and streams.
//
// All event bus publications happen while the registry lock is held,
// so observers see the events of one device in commit order.
type Registry struct {
	RemovalGrace time.Duration
	Bus          *eventbus.Bus
	Parent       logger.Writer

	mutex      sync.Mutex
	devices    map[string]*device
	streams    map[string]*defs.StreamInfo
	byProducer map[string]string
	closed     bool
}

// Initialize initializes the registry.
func (r *Registry) Initialize() {
	r.devices = make(map[string]*device)
	r.streams = make(map[string]*defs.StreamInfo)
	r.byProducer = make(map[string]string)

	r.Log(logger.Debug, "registry initialized (removal grace: %v)",
		r.RemovalGrace)
}

// Close stops all pending removal timers.
func (r *Registry) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.closed = true

	for _, dev := range r.devices {
		if dev.removalTimer != nil {
			dev.removalTimer.Stop()
			dev.removalTimer = nil
		}
	}
}

// Log implements logger.Writer.
func (r *Registry) Log(level logger.Level, format string, args ...interface{}) {
	r.Parent.Log(level, "[registry] "+format, args...)
}

func (r *Registry) cancelRemoval(dev *device) {
	if dev.removalTimer != nil {
		dev.removalTimer.Stop()
		dev.removalTimer = nil
	}
	dev.removalGen++
}

// Upsert binds a session to a device, creating the device if needed.
// A pending removal is cancelled. An empty name preserves the previous one.
func (r *Registry) Upsert(deviceID string, name string, sessionID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		dev = &device{Device: Device{ID: deviceID}}
		r.devices[deviceID] = dev
	}

	r.cancelRemoval(dev)

	wasConnected := dev.Connected

	if name != "" {
		dev.Name = name
	}
	dev.SessionID = sessionID
	dev.Connected = true
	dev.LastSeen = time.Now()

	// a re-register or a session takeover of a connected device must
	// not announce the device a second time
	if wasConnected {
		r.Log(logger.Debug, "device %s rebound (session %s)", deviceID, sessionID)
		return
	}

	r.Log(logger.Info, "device %s connected (session %s)", deviceID, sessionID)

	r.Bus.Publish(defs.Event{
		Type:       defs.EventDeviceConnected,
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
	})
}

// MarkDisconnected flags a device as disconnected and schedules its
// removal after the grace window. A later Upsert or CancelRemoval
// within the window keeps the device alive.
func (r *Registry) MarkDisconnected(deviceID string, sessionID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return
	}

	// a newer session took over the device; nothing to do
	if dev.SessionID != sessionID {
		return
	}

	dev.Connected = false
	dev.SessionID = ""
	dev.LastSeen = time.Now()

	r.Log(logger.Info, "device %s disconnected, removal in %v", deviceID, r.RemovalGrace)

	r.Bus.Publish(defs.Event{
		Type:     defs.EventDeviceDisconnected,
		DeviceID: dev.ID,
	})

	if r.closed {
		return
	}

	r.cancelRemoval(dev)
	gen := dev.removalGen
	dev.removalTimer = time.AfterFunc(r.RemovalGrace, func() {
		r.removeDevice(deviceID, gen)
	})
}

func (r *Registry) removeDevice(deviceID string, gen uint64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok || dev.removalGen != gen || dev.Connected {
		return
	}

	delete(r.devices, deviceID)

	r.Log(logger.Info, "device %s removed", deviceID)

	r.Bus.Publish(defs.Event{
		Type:     defs.EventDeviceRemoved,
		DeviceID: deviceID,
	})
}

// CancelRemoval cancels a pending removal without rebinding a session.
// Used when a producer shows up for the device during the grace window.
func (r *Registry) CancelRemoval(deviceID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if dev, ok := r.devices[deviceID]; ok {
		r.cancelRemoval(dev)
	}
}

// SetStreaming updates the streaming flag of a device.
func (r *Registry) SetStreaming(deviceID string, streaming bool, streamID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return
	}

	if dev.Streaming == streaming && dev.StreamID == streamID {
		return
	}

	dev.Streaming = streaming
	dev.StreamID = streamID
	dev.LastSeen = time.Now()

	isStreaming := streaming
	r.Bus.Publish(defs.Event{
		Type:        defs.EventDeviceStreamingChanged,
		DeviceID:    dev.ID,
		IsStreaming: &isStreaming,
		StreamID:    streamID,
	})
}

// PutStream inserts or replaces a stream record.
// A record with a known ID is updated in place, preserving an
// operator-assigned name, and announced as updated instead of started.
func (r *Registry) PutStream(info defs.StreamInfo) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev, exists := r.streams[info.ID]
	if exists {
		delete(r.byProducer, prev.ProducerID)
		if info.CustomName == "" {
			info.CustomName = prev.CustomName
		}
	}

	stored := info
	r.streams[info.ID] = &stored
	r.byProducer[info.ProducerID] = info.ID

	if exists {
		r.Log(logger.Info, "stream %s updated (producer %s)", info.ID, info.ProducerID)
		r.Bus.Publish(defs.Event{
			Type:     defs.EventStreamUpdated,
			DeviceID: info.DeviceID,
			StreamID: info.ID,
			Stream:   &stored,
		})
		return
	}

	r.Log(logger.Info, "stream %s started (device %s)", info.ID, info.DeviceID)
	r.Bus.Publish(defs.Event{
		Type:     defs.EventStreamStarted,
		DeviceID: info.DeviceID,
		StreamID: info.ID,
		Stream:   &stored,
	})
}

// RemoveStream deletes a stream record.
func (r *Registry) RemoveStream(streamID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	info, ok := r.streams[streamID]
	if !ok {
		return
	}

	delete(r.streams, streamID)
	delete(r.byProducer, info.ProducerID)

	if dev, ok := r.devices[info.DeviceID]; ok && dev.StreamID == streamID {
		dev.StreamID = ""
	}

	r.Log(logger.Info, "stream %s ended", streamID)

	r.Bus.Publish(defs.Event{
		Type:     defs.EventStreamEnded,
		DeviceID: info.DeviceID,
		StreamID: streamID,
	})
}

// RenameStream sets the operator-assigned name of a stream.
func (r *Registry) RenameStream(streamID string, name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	info, ok := r.streams[streamID]
	if !ok {
		return defs.NewError(defs.ErrUnknownStream, "unknown stream: %s", streamID)
	}

	info.CustomName = name
	stored := *info

	r.Bus.Publish(defs.Event{
		Type:     defs.EventStreamNameUpdated,
		DeviceID: info.DeviceID,
		StreamID: streamID,
		Name:     name,
		Stream:   &stored,
	})

	return nil
}

// Stream returns a snapshot of one stream.
func (r *Registry) Stream(streamID string) (defs.StreamInfo, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	info, ok := r.streams[streamID]
	if !ok {
		return defs.StreamInfo{}, false
	}
	return *info, true
}

// StreamByProducer returns a snapshot of the stream of a producer.
func (r *Registry) StreamByProducer(producerID string) (defs.StreamInfo, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	streamID, ok := r.byProducer[producerID]
	if !ok {
		return defs.StreamInfo{}, false
	}
	return *r.streams[streamID], true
}

// Streams returns a snapshot of all streams, oldest first.
func (r *Registry) Streams() []defs.StreamInfo {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]defs.StreamInfo, 0, len(r.streams))
	for _, info := range r.streams {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Devices returns a snapshot of all devices.
func (r *Registry) Devices() []Device {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, dev.Device)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Device returns a snapshot of one device.
func (r *Registry) Device(deviceID string) (Device, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	return dev.Device, true
}
