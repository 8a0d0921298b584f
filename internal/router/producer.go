package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/camroute/camroute/internal/defs"
	"github.com/camroute/camroute/internal/logger"
	"github.com/camroute/camroute/internal/rtpdesc"
)

const keyFrameInterval = 2 * time.Second

// ProducerInfo is the wire description of a producer.
type ProducerInfo struct {
	ID     string           `json:"id"`
	Kind   string           `json:"kind"`
	Stream *defs.StreamInfo `json:"stream,omitempty"`
}

type producer struct {
	id        string
	kind      string
	deviceID  string
	transport *clientTransport
	params    rtpdesc.Parameters
	streamID  string
	receiver  *webrtc.RTPReceiver
	done      chan struct{}

	mutex   sync.Mutex
	readers map[string]func(*rtp.Packet)
	closed  bool
}

func (p *producer) addReader(id string, cb func(*rtp.Packet)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.readers[id] = cb
}

func (p *producer) removeReader(id string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.readers, id)
}

func (p *producer) forward(pkt *rtp.Packet) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, cb := range p.readers {
		cb(pkt)
	}
}

// defaults of a stream record before RTP parameters refine it.
const (
	defaultStreamWidth   = 1280
	defaultStreamHeight  = 720
	defaultStreamFPS     = 30
	defaultStreamBitrate = 1_000_000
)

func synthesizeStream(
	transportID string,
	existingStreamID string,
	producerID string,
	deviceID string,
	deviceName string,
	params rtpdesc.Parameters,
	nominalBitrate uint64,
) defs.StreamInfo {
	if nominalBitrate == 0 {
		nominalBitrate = defaultStreamBitrate
	}

	info := defs.StreamInfo{
		ProducerID: producerID,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		Width:      defaultStreamWidth,
		Height:     defaultStreamHeight,
		FPS:        defaultStreamFPS,
		Bitrate:    nominalBitrate,
		CreatedAt:  time.Now(),
	}

	if existingStreamID != "" {
		info.ID = existingStreamID
	} else {
		info.ID = fmt.Sprintf("stream-%s-%d", transportID, timeNowMilli())
	}

	if len(params.Encodings) > 0 {
		enc := params.Encodings[0]
		if enc.ScaleResolutionDownBy > 1 {
			info.Width = int(float64(info.Width) / enc.ScaleResolutionDownBy)
			info.Height = int(float64(info.Height) / enc.ScaleResolutionDownBy)
		}
		if enc.MaxBitrate != 0 {
			info.Bitrate = enc.MaxBitrate
		}
	}

	return info
}

// BindProducer attaches an inbound media track to a client transport.
// For video producers a stream record is synthesized; a second video
// producer on the same transport replaces the first and keeps the
// stream identity.
func (r *Router) BindProducer(
	transportID string,
	kind string,
	params rtpdesc.Parameters,
	deviceID string,
) (*ProducerInfo, error) {
	r.mutex.Lock()
	if err := r.checkInitialized(); err != nil {
		r.mutex.Unlock()
		return nil, err
	}

	ct, ok := r.clientTransports[transportID]
	if !ok {
		// an egress transport exists but cannot ingest media
		for _, binding := range r.egressByProducer {
			if binding.id == transportID {
				r.mutex.Unlock()
				return nil, defs.NewError(defs.ErrInvalidTransport,
					"transport %s cannot produce", transportID)
			}
		}
		r.mutex.Unlock()
		return nil, defs.NewError(defs.ErrUnknownTransport, "unknown transport: %s", transportID)
	}
	r.mutex.Unlock()

	if kind != "audio" && kind != "video" {
		return nil, defs.NewError(defs.ErrProduceFailed, "invalid kind: %s", kind)
	}

	err := rtpdesc.ValidateProduce(params, r.capabilities)
	if err != nil {
		return nil, defs.NewError(defs.ErrProduceFailed, "%s", err)
	}

	codecType := webrtc.RTPCodecTypeVideo
	if kind == "audio" {
		codecType = webrtc.RTPCodecTypeAudio
	}

	receiver, err := r.api.NewRTPReceiver(codecType, ct.dtls)
	if err != nil {
		return nil, defs.NewError(defs.ErrProduceFailed, "%s", err)
	}

	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(params.FirstSSRC()),
				PayloadType: webrtc.PayloadType(params.Codecs[0].PayloadType),
			},
		}},
	})
	if err != nil {
		return nil, defs.NewError(defs.ErrProduceFailed, "%s", err)
	}

	prod := &producer{
		id:        newID("producer"),
		kind:      kind,
		deviceID:  deviceID,
		transport: ct,
		params:    params,
		receiver:  receiver,
		done:      make(chan struct{}),
		readers:   make(map[string]func(*rtp.Packet)),
	}

	var replaced *producer

	r.mutex.Lock()
	// late device binding: the transport adopts the device of the
	// first producer when it was created before registration
	if ct.deviceID == "" {
		ct.deviceID = deviceID
	}

	if kind == "video" {
		for _, other := range ct.producers {
			if other.kind == "video" {
				replaced = other
			}
		}
	}
	ct.producers[prod.id] = prod
	r.producers[prod.id] = prod
	r.mutex.Unlock()

	if replaced != nil {
		r.closeProducer(replaced, false)
	}

	var streamInfo *defs.StreamInfo
	if kind == "video" {
		deviceName := ""
		if dev, ok := r.Registry.Device(deviceID); ok {
			deviceName = dev.Name
		}

		info := synthesizeStream(ct.id, ct.streamID, prod.id, deviceID, deviceName,
			params, r.InitialOutgoingBitrate)

		r.mutex.Lock()
		ct.streamID = info.ID
		prod.streamID = info.ID
		r.mutex.Unlock()

		r.Registry.PutStream(info)
		streamInfo = &info
	}

	r.runProducer(prod)

	r.Log(logger.Info, "producer %s created (%s, transport %s, ssrc %d)",
		prod.id, kind, transportID, params.FirstSSRC())

	return &ProducerInfo{
		ID:     prod.id,
		Kind:   kind,
		Stream: streamInfo,
	}, nil
}

func (r *Router) runProducer(prod *producer) {
	// incoming RTCP packets must always be read to make interceptors work
	go func() {
		buf := make([]byte, 1500)
		for {
			_, _, err := prod.receiver.Read(buf)
			if err != nil {
				return
			}
		}
	}()

	// periodic key frame requests, plus the incoming bitrate ceiling
	if prod.kind == "video" {
		go func() {
			keyframeTicker := time.NewTicker(keyFrameInterval)
			defer keyframeTicker.Stop()

			for {
				select {
				case <-keyframeTicker.C:
					pkts := []rtcp.Packet{
						&rtcp.PictureLossIndication{
							MediaSSRC: prod.params.FirstSSRC(),
						},
					}
					if r.MaxIncomingBitrate > 0 {
						pkts = append(pkts, &rtcp.ReceiverEstimatedMaximumBitrate{
							Bitrate: float32(r.MaxIncomingBitrate),
							SSRCs:   []uint32{prod.params.FirstSSRC()},
						})
					}

					_, err := prod.transport.dtls.WriteRTCP(pkts)
					if err != nil {
						return
					}

				case <-prod.done:
					return
				}
			}
		}()
	}

	go func() {
		track := prod.receiver.Track()
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				return
			}

			if len(pkt.Payload) == 0 {
				continue
			}

			prod.forward(pkt)
		}
	}()
}

// CloseProducer closes a producer and everything hanging off it.
// It is idempotent.
func (r *Router) CloseProducer(producerID string) {
	r.mutex.Lock()
	prod, ok := r.producers[producerID]
	r.mutex.Unlock()
	if !ok {
		return
	}

	r.closeProducer(prod, true)
}

func (r *Router) closeProducer(prod *producer, removeStream bool) {
	r.mutex.Lock()
	if prod.closed {
		r.mutex.Unlock()
		return
	}
	prod.closed = true

	delete(r.producers, prod.id)
	delete(prod.transport.producers, prod.id)

	binding := r.egressByProducer[prod.id]
	delete(r.egressByProducer, prod.id)
	r.mutex.Unlock()

	close(prod.done)
	prod.receiver.Stop()

	if binding != nil {
		r.closeEgressBinding(binding)
	}

	if removeStream && prod.streamID != "" {
		r.mutex.Lock()
		if prod.transport.streamID == prod.streamID {
			prod.transport.streamID = ""
		}
		r.mutex.Unlock()

		r.Registry.RemoveStream(prod.streamID)
	}

	r.Log(logger.Info, "producer %s closed", prod.id)
}

// Producer returns the stream ID and device ID of a producer.
func (r *Router) Producer(producerID string) (streamID string, deviceID string, ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prod, ok := r.producers[producerID]
	if !ok {
		return "", "", false
	}
	return prod.streamID, prod.deviceID, true
}
