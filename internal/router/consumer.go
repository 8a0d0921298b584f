package router

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/camroute/camroute/internal/defs"
	"github.com/camroute/camroute/internal/logger"
	"github.com/camroute/camroute/internal/rtpdesc"
)

// ConsumerInfo is the wire description of a consumer.
type ConsumerInfo struct {
	ID            string             `json:"id"`
	ProducerID    string             `json:"producerId"`
	Kind          string             `json:"kind"`
	RTPParameters rtpdesc.Parameters `json:"rtpParameters"`
}

type consumer struct {
	id        string
	kind      string
	producer  *producer
	transport *clientTransport
	track     *webrtc.TrackLocalStaticRTP
	sender    *webrtc.RTPSender
	paused    int32
}

func (c *consumer) write(pkt *rtp.Packet) {
	if atomic.LoadInt32(&c.paused) != 0 {
		return
	}
	c.track.WriteRTP(pkt) //nolint:errcheck
}

// BindConsumer attaches an outbound forwarding of a producer to a
// client transport. The consumer starts paused and begins flowing
// after ResumeConsumer.
func (r *Router) BindConsumer(
	transportID string,
	producerID string,
	caps rtpdesc.Capabilities,
) (*ConsumerInfo, error) {
	r.mutex.Lock()
	if err := r.checkInitialized(); err != nil {
		r.mutex.Unlock()
		return nil, err
	}

	ct, ok := r.clientTransports[transportID]
	if !ok {
		r.mutex.Unlock()
		return nil, defs.NewError(defs.ErrUnknownTransport, "unknown transport: %s", transportID)
	}

	prod, ok := r.producers[producerID]
	if !ok || prod.closed {
		r.mutex.Unlock()
		return nil, defs.NewError(defs.ErrUnknownProducer, "unknown producer: %s", producerID)
	}
	r.mutex.Unlock()

	params, err := rtpdesc.SynthesizeEgress(prod.params, caps)
	if err != nil {
		return nil, defs.NewError(defs.ErrUnsupportedCapabilities, "%s", err)
	}

	codec := prod.params.Codecs[0]
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:  codec.MimeType,
		ClockRate: codec.ClockRate,
		Channels:  codec.Channels,
	}, prod.kind, prod.streamID)
	if err != nil {
		return nil, err
	}

	sender, err := r.api.NewRTPSender(track, ct.dtls)
	if err != nil {
		return nil, err
	}

	err = sender.Send(sender.GetParameters())
	if err != nil {
		return nil, err
	}

	cons := &consumer{
		id:        newID("consumer"),
		kind:      prod.kind,
		producer:  prod,
		transport: ct,
		track:     track,
		sender:    sender,
		paused:    1,
	}

	r.mutex.Lock()
	r.consumers[cons.id] = cons
	ct.consumers[cons.id] = cons
	r.mutex.Unlock()

	prod.addReader(cons.id, cons.write)

	// discard outgoing RTCP to keep the sender's interceptors running
	go func() {
		buf := make([]byte, 1500)
		for {
			_, _, err := sender.Read(buf)
			if err != nil {
				return
			}
		}
	}()

	r.Log(logger.Info, "consumer %s created (producer %s, transport %s)",
		cons.id, producerID, transportID)

	return &ConsumerInfo{
		ID:            cons.id,
		ProducerID:    producerID,
		Kind:          cons.kind,
		RTPParameters: params,
	}, nil
}

// ResumeConsumer unpauses a consumer.
func (r *Router) ResumeConsumer(consumerID string) error {
	r.mutex.Lock()
	cons, ok := r.consumers[consumerID]
	r.mutex.Unlock()
	if !ok {
		return defs.NewError(defs.ErrUnknownProducer, "unknown consumer: %s", consumerID)
	}

	atomic.StoreInt32(&cons.paused, 0)
	return nil
}

func (r *Router) closeConsumer(cons *consumer) {
	cons.producer.removeReader(cons.id)
	cons.sender.Stop()

	r.mutex.Lock()
	delete(r.consumers, cons.id)
	delete(cons.transport.consumers, cons.id)
	r.mutex.Unlock()
}
