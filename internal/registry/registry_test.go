package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/camroute/camroute/internal/defs"
	"github.com/camroute/camroute/internal/eventbus"
	"github.com/camroute/camroute/internal/logger"
)

type nilLogger struct{}

func (nilLogger) Log(_ logger.Level, _ string, _ ...interface{}) {
}

func setup(t *testing.T, grace time.Duration) (*Registry, *eventbus.Bus) {
	t.Helper()

	bus := &eventbus.Bus{}
	bus.Initialize()
	t.Cleanup(bus.Close)

	r := &Registry{
		RemovalGrace: grace,
		Bus:          bus,
		Parent:       nilLogger{},
	}
	r.Initialize()
	t.Cleanup(r.Close)

	return r, bus
}

func waitEvent(t *testing.T, sub *eventbus.Subscription, typ defs.EventType) defs.Event {
	t.Helper()
	for {
		select {
		case evt := <-sub.C:
			if evt.Type == typ {
				return evt
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestUpsertAndSnapshot(t *testing.T) {
	r, bus := setup(t, time.Second)
	sub := bus.Subscribe()
	defer sub.Close()

	r.Upsert("dev1", "Phone A", "sess1")

	evt := waitEvent(t, sub, defs.EventDeviceConnected)
	require.Equal(t, "dev1", evt.DeviceID)
	require.Equal(t, "Phone A", evt.DeviceName)

	dev, ok := r.Device("dev1")
	require.True(t, ok)
	require.True(t, dev.Connected)
	require.Equal(t, "sess1", dev.SessionID)

	// rebinding without a name preserves the previous one
	r.Upsert("dev1", "", "sess2")
	dev, _ = r.Device("dev1")
	require.Equal(t, "Phone A", dev.Name)
	require.Equal(t, "sess2", dev.SessionID)
}

func TestUpsertConnectedOnlyOnTransition(t *testing.T) {
	r, bus := setup(t, time.Second)
	sub := bus.Subscribe()
	defer sub.Close()

	r.Upsert("dev1", "Phone A", "sess1")
	r.Upsert("dev1", "", "sess1")
	r.Upsert("dev1", "", "sess2")

	waitEvent(t, sub, defs.EventDeviceConnected)

	// a re-register or a session takeover of a connected device is
	// not announced again
	time.Sleep(100 * time.Millisecond)
	for done := false; !done; {
		select {
		case evt := <-sub.C:
			require.NotEqual(t, defs.EventDeviceConnected, evt.Type)
		default:
			done = true
		}
	}

	// a reconnect after a disconnect is announced again
	r.MarkDisconnected("dev1", "sess2")
	waitEvent(t, sub, defs.EventDeviceDisconnected)

	r.Upsert("dev1", "", "sess3")
	waitEvent(t, sub, defs.EventDeviceConnected)
}

func TestRemovalAfterGrace(t *testing.T) {
	r, bus := setup(t, 50*time.Millisecond)
	sub := bus.Subscribe()
	defer sub.Close()

	r.Upsert("dev1", "Phone A", "sess1")
	r.MarkDisconnected("dev1", "sess1")

	waitEvent(t, sub, defs.EventDeviceDisconnected)
	waitEvent(t, sub, defs.EventDeviceRemoved)

	_, ok := r.Device("dev1")
	require.False(t, ok)
}

func TestReconnectCancelsRemoval(t *testing.T) {
	r, bus := setup(t, 100*time.Millisecond)
	sub := bus.Subscribe()
	defer sub.Close()

	r.Upsert("dev1", "Phone A", "sess1")
	r.MarkDisconnected("dev1", "sess1")
	r.Upsert("dev1", "", "sess2")

	time.Sleep(200 * time.Millisecond)

	dev, ok := r.Device("dev1")
	require.True(t, ok)
	require.True(t, dev.Connected)

	// no device-removed was published
	for {
		select {
		case evt := <-sub.C:
			require.NotEqual(t, defs.EventDeviceRemoved, evt.Type)
		default:
			return
		}
	}
}

func TestDisconnectOfStaleSessionIgnored(t *testing.T) {
	r, _ := setup(t, 50*time.Millisecond)

	r.Upsert("dev1", "Phone A", "sess1")
	r.Upsert("dev1", "", "sess2")

	// the old session closing must not disconnect the device
	r.MarkDisconnected("dev1", "sess1")

	dev, ok := r.Device("dev1")
	require.True(t, ok)
	require.True(t, dev.Connected)
}

func TestStreamLifecycle(t *testing.T) {
	r, bus := setup(t, time.Second)
	sub := bus.Subscribe()
	defer sub.Close()

	info := defs.StreamInfo{
		ID:         "stream-t1-100",
		ProducerID: "prod1",
		DeviceID:   "dev1",
		DeviceName: "Phone A",
		Width:      1280,
		Height:     720,
		FPS:        30,
		CreatedAt:  time.Now(),
	}
	r.PutStream(info)

	evt := waitEvent(t, sub, defs.EventStreamStarted)
	require.Equal(t, "stream-t1-100", evt.StreamID)
	require.Equal(t, 1280, evt.Stream.Width)

	got, ok := r.StreamByProducer("prod1")
	require.True(t, ok)
	require.Equal(t, "stream-t1-100", got.ID)

	r.RemoveStream("stream-t1-100")
	waitEvent(t, sub, defs.EventStreamEnded)

	_, ok = r.Stream("stream-t1-100")
	require.False(t, ok)
	_, ok = r.StreamByProducer("prod1")
	require.False(t, ok)
}

func TestStreamUpdatePreservesCustomName(t *testing.T) {
	r, bus := setup(t, time.Second)
	sub := bus.Subscribe()
	defer sub.Close()

	r.PutStream(defs.StreamInfo{
		ID:         "stream-t1-100",
		ProducerID: "prod1",
		DeviceID:   "dev1",
		CreatedAt:  time.Now(),
	})
	waitEvent(t, sub, defs.EventStreamStarted)

	err := r.RenameStream("stream-t1-100", "Stage Left")
	require.NoError(t, err)
	evt := waitEvent(t, sub, defs.EventStreamNameUpdated)
	require.Equal(t, "Stage Left", evt.Name)

	// producer replacement on the same transport keeps id and name
	r.PutStream(defs.StreamInfo{
		ID:         "stream-t1-100",
		ProducerID: "prod2",
		DeviceID:   "dev1",
		CreatedAt:  time.Now(),
	})

	evt = waitEvent(t, sub, defs.EventStreamUpdated)
	require.Equal(t, "prod2", evt.Stream.ProducerID)
	require.Equal(t, "Stage Left", evt.Stream.CustomName)

	_, ok := r.StreamByProducer("prod1")
	require.False(t, ok)
	got, ok := r.StreamByProducer("prod2")
	require.True(t, ok)
	require.Equal(t, "Stage Left", got.CustomName)
}

func TestRenameUnknownStream(t *testing.T) {
	r, _ := setup(t, time.Second)

	err := r.RenameStream("nope", "x")
	require.Error(t, err)
	kind, ok := defs.KindOf(err)
	require.True(t, ok)
	require.Equal(t, defs.ErrUnknownStream, kind)
}

func TestSetStreaming(t *testing.T) {
	r, bus := setup(t, time.Second)
	sub := bus.Subscribe()
	defer sub.Close()

	r.Upsert("dev1", "Phone A", "sess1")
	r.SetStreaming("dev1", true, "stream-t1-100")

	evt := waitEvent(t, sub, defs.EventDeviceStreamingChanged)
	require.NotNil(t, evt.IsStreaming)
	require.True(t, *evt.IsStreaming)
	require.Equal(t, "stream-t1-100", evt.StreamID)

	// no duplicate emission for an unchanged flag
	r.SetStreaming("dev1", true, "stream-t1-100")
	r.SetStreaming("dev1", false, "")

	evt = waitEvent(t, sub, defs.EventDeviceStreamingChanged)
	require.False(t, *evt.IsStreaming)
}
