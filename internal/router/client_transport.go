package router

import (
	"github.com/pion/webrtc/v4"

	"github.com/camroute/camroute/internal/defs"
	"github.com/camroute/camroute/internal/logger"
)

// ClientTransportInfo is the wire description of a client transport.
type ClientTransportInfo struct {
	ID             string                `json:"id"`
	ICEParameters  webrtc.ICEParameters  `json:"iceParameters"`
	ICECandidates  []webrtc.ICECandidate `json:"iceCandidates"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
}

type clientTransport struct {
	id       string
	deviceID string

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	connected bool
	streamID  string
	producers map[string]*producer
	consumers map[string]*consumer
}

// CreateClientTransport creates an ICE/DTLS transport and gathers its
// local candidates. deviceID may be empty when the session has not
// registered yet; it is bound lazily on the first BindProducer call.
func (r *Router) CreateClientTransport(deviceID string) (*ClientTransportInfo, error) {
	r.mutex.Lock()
	if err := r.checkInitialized(); err != nil {
		r.mutex.Unlock()
		return nil, err
	}
	r.mutex.Unlock()

	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, err
	}

	ice := r.api.NewICETransport(gatherer)

	dtls, err := r.api.NewDTLSTransport(ice, nil)
	if err != nil {
		return nil, err
	}

	gatherFinished := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gatherFinished)
		}
	})

	err = gatherer.Gather()
	if err != nil {
		gatherer.Close()
		return nil, err
	}
	<-gatherFinished

	iceCandidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		gatherer.Close()
		return nil, err
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		gatherer.Close()
		return nil, err
	}

	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		gatherer.Close()
		return nil, err
	}

	ct := &clientTransport{
		id:        newID("transport"),
		deviceID:  deviceID,
		gatherer:  gatherer,
		ice:       ice,
		dtls:      dtls,
		producers: make(map[string]*producer),
		consumers: make(map[string]*consumer),
	}

	ice.OnConnectionStateChange(func(state webrtc.ICETransportState) {
		switch state {
		case webrtc.ICETransportStateFailed, webrtc.ICETransportStateDisconnected:
			r.Log(logger.Warn, "transport %s: ICE state %s", ct.id, state)
			go r.CloseTransport(ct.id)
		default:
		}
	})

	r.mutex.Lock()
	r.clientTransports[ct.id] = ct
	r.mutex.Unlock()

	r.Log(logger.Debug, "transport %s created (device %q)", ct.id, deviceID)

	return &ClientTransportInfo{
		ID:             ct.id,
		ICEParameters:  iceParams,
		ICECandidates:  iceCandidates,
		DTLSParameters: dtlsParams,
	}, nil
}

// ConnectClientTransport starts ICE and DTLS with the remote parameters.
// The router always takes the controlled ICE role.
func (r *Router) ConnectClientTransport(
	transportID string,
	iceParams webrtc.ICEParameters,
	iceCandidates []webrtc.ICECandidate,
	dtlsParams webrtc.DTLSParameters,
) error {
	r.mutex.Lock()
	ct, ok := r.clientTransports[transportID]
	r.mutex.Unlock()
	if !ok {
		return defs.NewError(defs.ErrUnknownTransport, "unknown transport: %s", transportID)
	}

	err := ct.ice.SetRemoteCandidates(iceCandidates)
	if err != nil {
		return err
	}

	iceRole := webrtc.ICERoleControlled
	err = ct.ice.Start(nil, iceParams, &iceRole)
	if err != nil {
		return err
	}

	err = ct.dtls.Start(dtlsParams)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	ct.connected = true
	r.mutex.Unlock()

	r.Log(logger.Info, "transport %s connected", transportID)

	return nil
}

// CloseTransport closes a client transport, cascading to its producers
// and consumers. It is idempotent.
func (r *Router) CloseTransport(transportID string) {
	r.mutex.Lock()
	ct, ok := r.clientTransports[transportID]
	if !ok {
		r.mutex.Unlock()
		return
	}
	delete(r.clientTransports, transportID)

	producers := make([]*producer, 0, len(ct.producers))
	for _, prod := range ct.producers {
		producers = append(producers, prod)
	}
	consumers := make([]*consumer, 0, len(ct.consumers))
	for _, cons := range ct.consumers {
		consumers = append(consumers, cons)
	}
	r.mutex.Unlock()

	for _, prod := range producers {
		r.CloseProducer(prod.id)
	}
	for _, cons := range consumers {
		r.closeConsumer(cons)
	}

	ct.dtls.Stop()
	ct.ice.Stop()
	ct.gatherer.Close()

	r.Log(logger.Info, "transport %s closed", transportID)
}
