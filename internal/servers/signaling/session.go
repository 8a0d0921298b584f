package signaling

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/camroute/camroute/internal/defs"
	"github.com/camroute/camroute/internal/logger"
	"github.com/camroute/camroute/internal/rtpdesc"
	"github.com/camroute/camroute/internal/websocket"
)

// session states. Requests arriving outside the legal order are
// rejected with ProtocolOrder.
type sessionState int

const (
	stateOpened sessionState = iota
	stateRegistered
	stateTransportCreated
	stateTransportConnected
	stateProducing
)

type session struct {
	server *Server
	conn   *websocket.ServerConn

	id    string
	state sessionState

	deviceID        string
	sendTransportID string
	recvTransports  map[string]struct{}
	producers       map[string]struct{}

	closeOnce sync.Once
}

func (sx *session) initialize() {
	sx.id = uuid.NewString()
	sx.recvTransports = make(map[string]struct{})
	sx.producers = make(map[string]struct{})
}

// Log implements logger.Writer.
func (sx *session) Log(level logger.Level, format string, args ...interface{}) {
	sx.server.Log(level, "[session %s] "+format, append([]interface{}{sx.id}, args...)...)
}

func (sx *session) close() {
	sx.closeOnce.Do(func() {
		sx.conn.Close()
	})
}

func (sx *session) pushEncoded(byts []byte) {
	sx.conn.WriteEncoded(byts) //nolint:errcheck
}

func (sx *session) run() {
	sx.Log(logger.Info, "opened (%s)", sx.conn.RemoteAddr())

	for {
		var msg message
		err := sx.conn.ReadJSON(&msg)
		if err != nil {
			break
		}

		reply := sx.handleRequest(&msg)
		if reply != nil {
			err = sx.conn.WriteJSON(reply)
			if err != nil {
				break
			}
		}
	}

	sx.cleanup()
	sx.close()

	sx.Log(logger.Info, "closed")
}

// cleanup cascades the session teardown: producers close first (which
// ends their streams and egress bindings), then transports, then the
// device presence is released and its removal scheduled.
func (sx *session) cleanup() {
	for producerID := range sx.producers {
		sx.server.Router.CloseProducer(producerID)
	}

	if sx.sendTransportID != "" {
		sx.server.Router.CloseTransport(sx.sendTransportID)
	}
	for transportID := range sx.recvTransports {
		sx.server.Router.CloseTransport(transportID)
	}

	if sx.deviceID != "" {
		sx.server.Registry.SetStreaming(sx.deviceID, false, "")
		sx.server.Registry.MarkDisconnected(sx.deviceID, sx.id)
	}
}

func errorReply(id uint64, err error) *message {
	kind, ok := defs.KindOf(err)
	if !ok {
		kind = defs.ErrInternal
	}

	return &message{
		ID:      id,
		Type:    "error",
		Error:   string(kind),
		Message: err.Error(),
	}
}

func (sx *session) handleRequest(msg *message) *message {
	res, err := sx.dispatch(msg)
	if err != nil {
		sx.Log(logger.Warn, "request %s failed: %s", msg.Type, err)
		return errorReply(msg.ID, err)
	}

	reply, err := okReply(msg.ID, res)
	if err != nil {
		return errorReply(msg.ID, err)
	}
	return reply
}

func (sx *session) protocolOrder(op string) error {
	return defs.NewError(defs.ErrProtocolOrder,
		"%s is not allowed in the current session state", op)
}

func (sx *session) dispatch(msg *message) (interface{}, error) {
	switch msg.Type {
	case "register-device":
		return sx.onRegisterDevice(msg.Data)

	case "get-rtp-capabilities":
		if sx.state < stateRegistered {
			return nil, sx.protocolOrder(msg.Type)
		}
		return sx.server.Router.Capabilities()

	case "create-transport":
		return sx.onCreateTransport(msg)

	case "connect-transport":
		return sx.onConnectTransport(msg)

	case "produce":
		return sx.onProduce(msg)

	case "create-recv-transport":
		if sx.state < stateProducing {
			return nil, sx.protocolOrder(msg.Type)
		}
		info, err := sx.server.Router.CreateClientTransport(sx.deviceID)
		if err != nil {
			return nil, err
		}
		sx.recvTransports[info.ID] = struct{}{}
		return info, nil

	case "connect-recv-transport":
		return sx.onConnectRecvTransport(msg)

	case "consume-stream":
		return sx.onConsumeStream(msg)

	case "resume-consumer":
		return sx.onResumeConsumer(msg)

	case "stop-stream":
		return sx.onStopStream()

	case "disconnect-stream":
		return sx.onDisconnectStream(msg.Data)

	case "update-stream-name":
		return sx.onUpdateStreamName(msg.Data)

	case "get-active-streams":
		return map[string]interface{}{
			"streams": sx.server.Registry.Streams(),
		}, nil

	case "ndi-bridge-request-streams":
		return map[string]interface{}{
			"success": true,
			"streams": sx.server.Registry.Streams(),
		}, nil

	case "ndi-bridge-consume-stream":
		return sx.onNDIBridgeConsumeStream(msg.Data)

	default:
		return nil, defs.NewError(defs.ErrProtocolOrder, "unknown request: %s", msg.Type)
	}
}

func (sx *session) onRegisterDevice(data json.RawMessage) (interface{}, error) {
	var req struct {
		DeviceID   string `json:"deviceId"`
		DeviceName string `json:"deviceName"`
	}
	json.Unmarshal(data, &req) //nolint:errcheck

	if req.DeviceID == "" {
		return nil, defs.NewError(defs.ErrMissingDeviceID, "deviceId is required")
	}

	sx.deviceID = req.DeviceID
	if sx.state < stateRegistered {
		sx.state = stateRegistered
	}

	sx.server.Registry.Upsert(req.DeviceID, req.DeviceName, sx.id)

	sx.Log(logger.Info, "registered as device %s", req.DeviceID)

	return map[string]interface{}{"registered": true}, nil
}

func (sx *session) onCreateTransport(msg *message) (interface{}, error) {
	if sx.state != stateRegistered {
		return nil, sx.protocolOrder(msg.Type)
	}

	info, err := sx.server.Router.CreateClientTransport(sx.deviceID)
	if err != nil {
		return nil, err
	}

	sx.sendTransportID = info.ID
	sx.state = stateTransportCreated

	return info, nil
}

type connectTransportReq struct {
	TransportID    string                `json:"transportId"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
	ICEParameters  webrtc.ICEParameters  `json:"iceParameters"`
	ICECandidates  []webrtc.ICECandidate `json:"iceCandidates"`
}

func (sx *session) onConnectTransport(msg *message) (interface{}, error) {
	if sx.state != stateTransportCreated {
		return nil, sx.protocolOrder(msg.Type)
	}

	var req connectTransportReq
	json.Unmarshal(msg.Data, &req) //nolint:errcheck

	if req.TransportID != sx.sendTransportID {
		return nil, defs.NewError(defs.ErrUnknownTransport,
			"unknown transport: %s", req.TransportID)
	}

	err := sx.server.Router.ConnectClientTransport(req.TransportID,
		req.ICEParameters, req.ICECandidates, req.DTLSParameters)
	if err != nil {
		return nil, err
	}

	sx.state = stateTransportConnected

	return map[string]interface{}{"connected": true}, nil
}

func (sx *session) onConnectRecvTransport(msg *message) (interface{}, error) {
	var req connectTransportReq
	json.Unmarshal(msg.Data, &req) //nolint:errcheck

	if _, ok := sx.recvTransports[req.TransportID]; !ok {
		return nil, defs.NewError(defs.ErrUnknownTransport,
			"unknown transport: %s", req.TransportID)
	}

	err := sx.server.Router.ConnectClientTransport(req.TransportID,
		req.ICEParameters, req.ICECandidates, req.DTLSParameters)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"connected": true}, nil
}

func (sx *session) onProduce(msg *message) (interface{}, error) {
	if sx.state != stateTransportConnected && sx.state != stateProducing {
		return nil, sx.protocolOrder(msg.Type)
	}

	var req struct {
		TransportID   string             `json:"transportId"`
		Kind          string             `json:"kind"`
		RTPParameters rtpdesc.Parameters `json:"rtpParameters"`
	}
	json.Unmarshal(msg.Data, &req) //nolint:errcheck

	if req.TransportID != sx.sendTransportID {
		return nil, defs.NewError(defs.ErrUnknownTransport,
			"unknown transport: %s", req.TransportID)
	}

	// a producer during the grace window keeps the device alive
	sx.server.Registry.CancelRemoval(sx.deviceID)

	info, err := sx.server.Router.BindProducer(req.TransportID, req.Kind,
		req.RTPParameters, sx.deviceID)
	if err != nil {
		return nil, err
	}

	sx.producers[info.ID] = struct{}{}
	sx.state = stateProducing

	if info.Stream != nil {
		sx.server.Registry.SetStreaming(sx.deviceID, true, info.Stream.ID)
	}

	return info, nil
}

func (sx *session) onConsumeStream(msg *message) (interface{}, error) {
	if sx.state < stateProducing {
		return nil, sx.protocolOrder(msg.Type)
	}

	var req struct {
		TransportID     string               `json:"transportId"`
		ProducerID      string               `json:"producerId"`
		RTPCapabilities rtpdesc.Capabilities `json:"rtpCapabilities"`
	}
	json.Unmarshal(msg.Data, &req) //nolint:errcheck

	if _, ok := sx.recvTransports[req.TransportID]; !ok {
		return nil, defs.NewError(defs.ErrUnknownTransport,
			"unknown transport: %s", req.TransportID)
	}

	return sx.server.Router.BindConsumer(req.TransportID, req.ProducerID,
		req.RTPCapabilities)
}

func (sx *session) onResumeConsumer(msg *message) (interface{}, error) {
	if sx.state < stateProducing {
		return nil, sx.protocolOrder(msg.Type)
	}

	var req struct {
		ConsumerID string `json:"consumerId"`
	}
	json.Unmarshal(msg.Data, &req) //nolint:errcheck

	err := sx.server.Router.ResumeConsumer(req.ConsumerID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"resumed": true}, nil
}

// onStopStream marks the device as not streaming without closing the
// producer; media keeps flowing until the transport closes.
func (sx *session) onStopStream() (interface{}, error) {
	if sx.deviceID == "" {
		return nil, sx.protocolOrder("stop-stream")
	}

	sx.server.Registry.SetStreaming(sx.deviceID, false, "")

	return map[string]interface{}{"stopped": true}, nil
}

func (sx *session) onDisconnectStream(data json.RawMessage) (interface{}, error) {
	var req struct {
		StreamID string `json:"streamId"`
	}
	json.Unmarshal(data, &req) //nolint:errcheck

	info, ok := sx.server.Registry.Stream(req.StreamID)
	if !ok {
		return nil, defs.NewError(defs.ErrUnknownStream, "unknown stream: %s", req.StreamID)
	}

	sx.server.Router.CloseProducer(info.ProducerID)
	delete(sx.producers, info.ProducerID)

	return map[string]interface{}{"disconnected": true}, nil
}

func (sx *session) onUpdateStreamName(data json.RawMessage) (interface{}, error) {
	var req struct {
		StreamID string `json:"streamId"`
		Name     string `json:"name"`
	}
	json.Unmarshal(data, &req) //nolint:errcheck

	err := sx.server.Registry.RenameStream(req.StreamID, req.Name)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"updated": true}, nil
}

// ndiBridgeTransport is the tuple the sink reads RTP from.
type ndiBridgeTransport struct {
	ID       string `json:"id"`
	IP       string `json:"ip"`
	Port     uint16 `json:"port"`
	RTCPPort uint16 `json:"rtcp_port"`
	Protocol string `json:"protocol"`
}

type ndiBridgeStreamMetadata struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FPS        int    `json:"fps"`
	DeviceName string `json:"device_name"`
}

func (sx *session) onNDIBridgeConsumeStream(data json.RawMessage) (interface{}, error) {
	var req struct {
		StreamID        string               `json:"stream_id"`
		ProducerID      string               `json:"producer_id"`
		RTPCapabilities rtpdesc.Capabilities `json:"rtp_capabilities"`
	}
	json.Unmarshal(data, &req) //nolint:errcheck

	producerID := req.ProducerID
	if producerID == "" && req.StreamID != "" {
		info, ok := sx.server.Registry.Stream(req.StreamID)
		if !ok {
			return nil, defs.NewError(defs.ErrUnknownStream, "unknown stream: %s", req.StreamID)
		}
		producerID = info.ProducerID
	}

	caps := req.RTPCapabilities
	if len(caps.Codecs) == 0 {
		// the sink uses the router's capabilities verbatim
		var err error
		caps, err = sx.server.Router.Capabilities()
		if err != nil {
			return nil, err
		}
	}

	binding, err := sx.server.Router.BindEgress(producerID, caps)
	if err != nil {
		return nil, err
	}

	sx.Log(logger.Info, "egress bound for stream %s (rtp port %d)",
		binding.Stream.ID, binding.Port)

	return map[string]interface{}{
		"success":     true,
		"consumer_id": binding.ConsumerID,
		"transport": ndiBridgeTransport{
			ID:       binding.TransportID,
			IP:       binding.IP,
			Port:     binding.Port,
			RTCPPort: binding.RTCPPort,
			Protocol: binding.Protocol,
		},
		"rtp_parameters": binding.RTPParameters,
		"stream_metadata": ndiBridgeStreamMetadata{
			Width:      binding.Stream.Width,
			Height:     binding.Stream.Height,
			FPS:        binding.Stream.FPS,
			DeviceName: binding.Stream.DisplayName(),
		},
	}, nil
}
