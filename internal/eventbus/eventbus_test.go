package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/camroute/camroute/internal/defs"
)

func TestBusPublish(t *testing.T) {
	b := &Bus{}
	b.Initialize()
	defer b.Close()

	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(defs.Event{Type: defs.EventDeviceConnected, DeviceID: "dev1"})

	select {
	case evt := <-sub.C:
		require.Equal(t, defs.EventDeviceConnected, evt.Type)
		require.Equal(t, "dev1", evt.DeviceID)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestBusOrdering(t *testing.T) {
	b := &Bus{}
	b.Initialize()
	defer b.Close()

	sub := b.Subscribe()
	defer sub.Close()

	types := []defs.EventType{
		defs.EventDeviceConnected,
		defs.EventStreamStarted,
		defs.EventStreamEnded,
		defs.EventDeviceDisconnected,
	}

	for _, typ := range types {
		b.Publish(defs.Event{Type: typ, DeviceID: "dev1"})
	}

	for _, typ := range types {
		select {
		case evt := <-sub.C:
			require.Equal(t, typ, evt.Type)
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	b := &Bus{}
	b.Initialize()
	defer b.Close()

	sub := b.Subscribe()
	sub.Close()

	select {
	case _, ok := <-sub.C:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}

	// publishing after unsubscribe must not block
	b.Publish(defs.Event{Type: defs.EventStreamStarted})
}

func TestBusClose(t *testing.T) {
	b := &Bus{}
	b.Initialize()

	sub := b.Subscribe()
	b.Close()

	_, ok := <-sub.C
	require.False(t, ok)
}
