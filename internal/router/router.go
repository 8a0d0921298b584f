// Package router contains the media router.
//
// The router owns the WebRTC ingest side (ICE / DTLS / SRTP via pion's
// ORTC API), the producer and consumer registry of the media plane, and
// the plain RTP egress side used by the NDI bridge sink.
package router

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/camroute/camroute/internal/defs"
	"github.com/camroute/camroute/internal/logger"
	"github.com/camroute/camroute/internal/portpool"
	"github.com/camroute/camroute/internal/registry"
	"github.com/camroute/camroute/internal/rtpdesc"
)

func codecParameters(c rtpdesc.CodecCapability) webrtc.RTPCodecParameters {
	fb := make([]webrtc.RTCPFeedback, len(c.RTCPFeedback))
	for i, f := range c.RTCPFeedback {
		fb[i] = webrtc.RTCPFeedback{Type: f}
	}

	fmtp := ""
	for k, v := range c.Parameters {
		if fmtp != "" {
			fmtp += ";"
		}
		fmtp += k + "=" + v
	}

	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     c.MimeType,
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			SDPFmtpLine:  fmtp,
			RTCPFeedback: fb,
		},
		PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
	}
}

// Router is the media router.
type Router struct {
	AnnouncedIP            string
	WebRTCMinPort          uint16
	WebRTCMaxPort          uint16
	Codecs                 []string
	InitialOutgoingBitrate uint64
	MaxIncomingBitrate     uint64
	HandshakeTimeout       time.Duration
	Pool                   *portpool.Pool
	Registry               *registry.Registry
	Parent                 logger.Writer

	api          *webrtc.API
	capabilities rtpdesc.Capabilities

	mutex            sync.Mutex
	initialized      bool
	clientTransports map[string]*clientTransport
	producers        map[string]*producer
	consumers        map[string]*consumer
	egressByProducer map[string]*egressBinding
}

// Initialize initializes the router.
func (r *Router) Initialize() error {
	caps, err := rtpdesc.BuildCapabilities(r.Codecs)
	if err != nil {
		return err
	}
	r.capabilities = caps

	mediaEngine := &webrtc.MediaEngine{}
	for _, c := range caps.Codecs {
		typ := webrtc.RTPCodecTypeVideo
		if c.Kind == "audio" {
			typ = webrtc.RTPCodecTypeAudio
		}
		err = mediaEngine.RegisterCodec(codecParameters(c), typ)
		if err != nil {
			return err
		}
	}

	interceptorRegistry := &interceptor.Registry{}
	err = webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry)
	if err != nil {
		return err
	}

	settingsEngine := webrtc.SettingEngine{
		LoggerFactory: &pionLoggerFactory{parent: r},
	}
	err = settingsEngine.SetEphemeralUDPPortRange(r.WebRTCMinPort, r.WebRTCMaxPort)
	if err != nil {
		return err
	}
	settingsEngine.SetICETimeouts(r.HandshakeTimeout, r.HandshakeTimeout, 2*time.Second)
	if r.AnnouncedIP != "" {
		settingsEngine.SetNAT1To1IPs([]string{r.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	r.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(settingsEngine),
	)

	r.clientTransports = make(map[string]*clientTransport)
	r.producers = make(map[string]*producer)
	r.consumers = make(map[string]*consumer)
	r.egressByProducer = make(map[string]*egressBinding)

	r.mutex.Lock()
	r.initialized = true
	r.mutex.Unlock()

	r.Log(logger.Info, "router initialized (codecs: %v)", r.Codecs)

	return nil
}

// Close closes the router and every transport it owns.
func (r *Router) Close() {
	r.mutex.Lock()
	transports := make([]*clientTransport, 0, len(r.clientTransports))
	for _, ct := range r.clientTransports {
		transports = append(transports, ct)
	}
	r.initialized = false
	r.mutex.Unlock()

	for _, ct := range transports {
		r.CloseTransport(ct.id)
	}
}

// Log implements logger.Writer.
func (r *Router) Log(level logger.Level, format string, args ...interface{}) {
	r.Parent.Log(level, "[router] "+format, args...)
}

func (r *Router) checkInitialized() error {
	if !r.initialized {
		return defs.NewError(defs.ErrNotInitialized, "router is not initialized")
	}
	return nil
}

// Capabilities returns the RTP capability descriptor of the router.
func (r *Router) Capabilities() (rtpdesc.Capabilities, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.checkInitialized(); err != nil {
		return rtpdesc.Capabilities{}, err
	}
	return r.capabilities, nil
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

var timeNowMilli = func() int64 {
	return time.Now().UnixMilli()
}
