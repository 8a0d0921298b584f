package router

import (
	"net"
	"sync"

	"github.com/pion/rtp"

	"github.com/camroute/camroute/internal/defs"
	"github.com/camroute/camroute/internal/logger"
	"github.com/camroute/camroute/internal/portpool"
	"github.com/camroute/camroute/internal/rtpdesc"
)

// EgressBindingInfo is the wire description of an egress binding,
// returned to the sink that requested it.
type EgressBindingInfo struct {
	ConsumerID    string             `json:"consumerId"`
	TransportID   string             `json:"transportId"`
	IP            string             `json:"ip"`
	Port          uint16             `json:"port"`
	RTCPPort      uint16             `json:"rtcpPort"`
	Protocol      string             `json:"protocol"`
	RTPParameters rtpdesc.Parameters `json:"rtpParameters"`
	Stream        defs.StreamInfo    `json:"stream"`
}

// egressBinding re-emits one producer's RTP as plain UDP towards the
// sink. The remote tuple is learned from the first datagram the sink
// sends back on either socket (comedia).
type egressBinding struct {
	id         string
	consumerID string
	producer   *producer
	pair       *portpool.Pair
	info       EgressBindingInfo

	mutex      sync.Mutex
	remoteRTP  net.Addr
	remoteRTCP net.Addr
	closeOnce  sync.Once
}

func (b *egressBinding) setRemoteRTP(addr net.Addr) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.remoteRTP == nil {
		b.remoteRTP = addr
	}
}

func (b *egressBinding) write(pkt *rtp.Packet) {
	b.mutex.Lock()
	remote := b.remoteRTP
	b.mutex.Unlock()

	if remote == nil {
		return
	}

	byts, err := pkt.Marshal()
	if err != nil {
		return
	}

	b.pair.RTPConn.WriteTo(byts, remote) //nolint:errcheck
}

// BindEgress attaches a plain RTP egress to a producer, allocating a
// dedicated UDP port pair. A producer already bound keeps its original
// tuple; the call is idempotent.
func (r *Router) BindEgress(producerID string, caps rtpdesc.Capabilities) (*EgressBindingInfo, error) {
	r.mutex.Lock()
	if err := r.checkInitialized(); err != nil {
		r.mutex.Unlock()
		return nil, err
	}

	prod, ok := r.producers[producerID]
	if !ok {
		r.mutex.Unlock()
		return nil, defs.NewError(defs.ErrUnknownProducer, "unknown producer: %s", producerID)
	}

	if existing, ok := r.egressByProducer[producerID]; ok {
		info := existing.info
		r.mutex.Unlock()

		// the tuple stays fixed, but the stream record may have been
		// renamed since the binding was made
		if stream, ok := r.Registry.StreamByProducer(producerID); ok {
			info.Stream = stream
		}
		return &info, nil
	}
	r.mutex.Unlock()

	pair, err := r.Pool.Allocate()
	if err != nil {
		return nil, defs.NewError(defs.ErrEgressPortsExhausted, "%s", err)
	}

	params, err := rtpdesc.SynthesizeEgress(prod.params, caps)
	if err != nil {
		r.Pool.Release(pair)
		return nil, defs.NewError(defs.ErrUnsupportedCapabilities, "%s", err)
	}

	var stream defs.StreamInfo
	if info, ok := r.Registry.StreamByProducer(producerID); ok {
		stream = info
	}

	binding := &egressBinding{
		id:         newID("egress"),
		consumerID: newID("consumer"),
		producer:   prod,
		pair:       pair,
	}
	binding.info = EgressBindingInfo{
		ConsumerID:    binding.consumerID,
		TransportID:   binding.id,
		IP:            r.AnnouncedIP,
		Port:          pair.RTPPort,
		RTCPPort:      pair.RTCPPort,
		Protocol:      "udp",
		RTPParameters: params,
		Stream:        stream,
	}

	r.mutex.Lock()
	// the producer may have closed while the port pair was being bound
	if prod.closed {
		r.mutex.Unlock()
		r.Pool.Release(pair)
		return nil, defs.NewError(defs.ErrProducerClosed, "producer closed: %s", producerID)
	}
	r.egressByProducer[producerID] = binding
	r.mutex.Unlock()

	go egressComediaLoop(pair.RTPConn, binding.setRemoteRTP)
	go egressComediaLoop(pair.RTCPConn, func(addr net.Addr) {
		binding.mutex.Lock()
		binding.remoteRTCP = addr
		binding.mutex.Unlock()
	})

	prod.addReader(binding.consumerID, binding.write)

	r.Log(logger.Info, "egress %s bound (producer %s, rtp %d, rtcp %d)",
		binding.id, producerID, pair.RTPPort, pair.RTCPPort)

	info := binding.info
	return &info, nil
}

// egressComediaLoop drains a socket, remembering the source address of
// the first datagram as the remote tuple.
func egressComediaLoop(conn net.PacketConn, learn func(net.Addr)) {
	buf := make([]byte, 1500)
	for {
		_, addr, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}
		learn(addr)
	}
}

func (r *Router) closeEgressBinding(binding *egressBinding) {
	binding.closeOnce.Do(func() {
		binding.producer.removeReader(binding.consumerID)
		r.Pool.Release(binding.pair)

		r.Log(logger.Info, "egress %s closed", binding.id)
	})
}

// EgressBindings returns a snapshot of the active egress bindings.
func (r *Router) EgressBindings() []EgressBindingInfo {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]EgressBindingInfo, 0, len(r.egressByProducer))
	for _, binding := range r.egressByProducer {
		out = append(out, binding.info)
	}
	return out
}
