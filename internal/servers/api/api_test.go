package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/camroute/camroute/internal/defs"
	"github.com/camroute/camroute/internal/eventbus"
	"github.com/camroute/camroute/internal/logger"
	"github.com/camroute/camroute/internal/portpool"
	"github.com/camroute/camroute/internal/registry"
	"github.com/camroute/camroute/internal/router"
	"github.com/camroute/camroute/internal/rtpdesc"
)

type nilLogger struct{}

func (nilLogger) Log(_ logger.Level, _ string, _ ...interface{}) {
}

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()

	bus := &eventbus.Bus{}
	bus.Initialize()
	t.Cleanup(bus.Close)

	reg := &registry.Registry{
		RemovalGrace: time.Second,
		Bus:          bus,
		Parent:       nilLogger{},
	}
	reg.Initialize()
	t.Cleanup(reg.Close)

	pool := &portpool.Pool{
		ListenIP: "127.0.0.1",
		MinPort:  21400,
		MaxPort:  21420,
	}
	require.NoError(t, pool.Initialize())

	rtr := &router.Router{
		AnnouncedIP:      "127.0.0.1",
		WebRTCMinPort:    44000,
		WebRTCMaxPort:    44100,
		Codecs:           []string{"opus", "vp8"},
		HandshakeTimeout: 10 * time.Second,
		Pool:             pool,
		Registry:         reg,
		Parent:           nilLogger{},
	}
	require.NoError(t, rtr.Initialize())
	t.Cleanup(rtr.Close)

	s := &Server{
		Address:     "127.0.0.1:0",
		ReadTimeout: 10 * time.Second,
		Router:      rtr,
		Registry:    reg,
		Parent:      nilLogger{},
	}
	require.NoError(t, s.Initialize())
	t.Cleanup(s.Close)

	return s, reg
}

func get(t *testing.T, s *Server, path string, out interface{}) int {
	t.Helper()

	res, err := http.Get("http://" + s.httpServer.ListenerAddr().String() + path)
	require.NoError(t, err)
	defer res.Body.Close()

	if out != nil && res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestCapabilities(t *testing.T) {
	s, _ := newTestServer(t)

	var caps rtpdesc.Capabilities
	status := get(t, s, "/v1/capabilities", &caps)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, caps.Codecs, 2)
}

func TestStreams(t *testing.T) {
	s, reg := newTestServer(t)

	var reply struct {
		Items []defs.StreamInfo `json:"items"`
	}
	status := get(t, s, "/v1/streams", &reply)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, reply.Items)

	reg.PutStream(defs.StreamInfo{
		ID:         "stream-t1-100",
		ProducerID: "prod1",
		DeviceID:   "dev1",
		Width:      1280,
		Height:     720,
		FPS:        30,
		CreatedAt:  time.Now(),
	})

	status = get(t, s, "/v1/streams", &reply)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, reply.Items, 1)
	require.Equal(t, "stream-t1-100", reply.Items[0].ID)

	var info defs.StreamInfo
	status = get(t, s, "/v1/streams/stream-t1-100", &info)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "prod1", info.ProducerID)

	status = get(t, s, "/v1/streams/nope", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestDevices(t *testing.T) {
	s, reg := newTestServer(t)

	reg.Upsert("dev1", "Phone A", "sess1")

	var reply struct {
		Items []registry.Device `json:"items"`
	}
	status := get(t, s, "/v1/devices", &reply)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, reply.Items, 1)
	require.Equal(t, "dev1", reply.Items[0].ID)
	require.True(t, reply.Items[0].Connected)
}

func TestEgressEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	var reply struct {
		Items []router.EgressBindingInfo `json:"items"`
	}
	status := get(t, s, "/v1/egress", &reply)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, reply.Items)
}
