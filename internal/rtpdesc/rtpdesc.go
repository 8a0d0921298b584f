// Package rtpdesc contains RTP capability and parameter descriptors.
//
// Descriptors travel over the signaling channel as JSON and follow the
// shape mobile producers and the NDI bridge already speak: a capability
// set advertises decodable codecs, parameters describe one concrete
// RTP flow (codecs, payload types, encodings with SSRCs).
package rtpdesc

import (
	"fmt"
	"strings"
)

// CodecCapability is one decodable codec in a capability set.
type CodecCapability struct {
	Kind                 string            `json:"kind"`
	MimeType             string            `json:"mimeType"`
	PreferredPayloadType uint8             `json:"preferredPayloadType"`
	ClockRate            uint32            `json:"clockRate"`
	Channels             uint16            `json:"channels,omitempty"`
	Parameters           map[string]string `json:"parameters,omitempty"`
	RTCPFeedback         []string          `json:"rtcpFeedback,omitempty"`
}

// Capabilities is the set of codecs an endpoint can decode.
type Capabilities struct {
	Codecs []CodecCapability `json:"codecs"`
}

// Codec is one negotiated codec inside Parameters.
type Codec struct {
	MimeType    string            `json:"mimeType"`
	PayloadType uint8             `json:"payloadType"`
	ClockRate   uint32            `json:"clockRate"`
	Channels    uint16            `json:"channels,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// Encoding is one RTP encoding inside Parameters.
type Encoding struct {
	SSRC                  uint32  `json:"ssrc,omitempty"`
	RID                   string  `json:"rid,omitempty"`
	ScaleResolutionDownBy float64 `json:"scaleResolutionDownBy,omitempty"`
	MaxBitrate            uint64  `json:"maxBitrate,omitempty"`
}

// RTCP carries the RTCP settings of Parameters.
type RTCP struct {
	CNAME       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize,omitempty"`
}

// Parameters describes one concrete RTP flow.
type Parameters struct {
	MID       string     `json:"mid,omitempty"`
	Codecs    []Codec    `json:"codecs"`
	Encodings []Encoding `json:"encodings,omitempty"`
	RTCP      RTCP       `json:"rtcp,omitempty"`
}

// Kind returns "audio" or "video" based on the first codec,
// or "" when parameters are empty.
func (p Parameters) Kind() string {
	if len(p.Codecs) == 0 {
		return ""
	}
	mt := strings.ToLower(p.Codecs[0].MimeType)
	switch {
	case strings.HasPrefix(mt, "audio/"):
		return "audio"
	case strings.HasPrefix(mt, "video/"):
		return "video"
	}
	return ""
}

// FirstSSRC returns the SSRC of the first encoding.
func (p Parameters) FirstSSRC() uint32 {
	if len(p.Encodings) == 0 {
		return 0
	}
	return p.Encodings[0].SSRC
}

var codecTemplates = map[string]CodecCapability{
	"opus": {
		Kind:                 "audio",
		MimeType:             "audio/opus",
		PreferredPayloadType: 111,
		ClockRate:            48000,
		Channels:             2,
		Parameters:           map[string]string{"minptime": "10", "useinbandfec": "1"},
	},
	"vp8": {
		Kind:                 "video",
		MimeType:             "video/VP8",
		PreferredPayloadType: 96,
		ClockRate:            90000,
		RTCPFeedback:         []string{"nack", "nack pli", "ccm fir", "goog-remb"},
	},
	"vp9": {
		Kind:                 "video",
		MimeType:             "video/VP9",
		PreferredPayloadType: 98,
		ClockRate:            90000,
		Parameters:           map[string]string{"profile-id": "0"},
		RTCPFeedback:         []string{"nack", "nack pli", "ccm fir", "goog-remb"},
	},
	"h264": {
		Kind:                 "video",
		MimeType:             "video/H264",
		PreferredPayloadType: 102,
		ClockRate:            90000,
		Parameters: map[string]string{
			"level-asymmetry-allowed": "1",
			"packetization-mode":      "1",
			"profile-level-id":        "42e01f",
		},
		RTCPFeedback: []string{"nack", "nack pli", "ccm fir", "goog-remb"},
	},
}

// BuildCapabilities synthesizes a capability set from configured codec names.
func BuildCapabilities(codecs []string) (Capabilities, error) {
	var caps Capabilities

	for _, name := range codecs {
		tmpl, ok := codecTemplates[strings.ToLower(name)]
		if !ok {
			return Capabilities{}, fmt.Errorf("unsupported codec: %s", name)
		}
		caps.Codecs = append(caps.Codecs, tmpl)
	}

	return caps, nil
}

func capabilityFor(caps Capabilities, mimeType string, clockRate uint32) (CodecCapability, bool) {
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, mimeType) && c.ClockRate == clockRate {
			return c, true
		}
	}
	return CodecCapability{}, false
}

// ValidateProduce checks that producer parameters are decodable with the
// router capability set.
func ValidateProduce(params Parameters, caps Capabilities) error {
	if len(params.Codecs) == 0 {
		return fmt.Errorf("no codecs declared")
	}

	if len(params.Encodings) == 0 || params.Encodings[0].SSRC == 0 {
		return fmt.Errorf("an encoding with a SSRC is required")
	}

	for _, codec := range params.Codecs {
		if _, ok := capabilityFor(caps, codec.MimeType, codec.ClockRate); !ok {
			return fmt.Errorf("codec %s/%d is not supported by the router",
				codec.MimeType, codec.ClockRate)
		}
	}

	return nil
}

// SynthesizeEgress computes the RTP parameters of a close-to-identity
// forwarding of producerParams towards a sink with the given capability set.
// Payload types, clock rates and the SSRC of the producer are preserved
// byte-for-byte, so the emitted RTP can be decoded without renegotiation.
func SynthesizeEgress(producerParams Parameters, sink Capabilities) (Parameters, error) {
	if len(producerParams.Codecs) == 0 {
		return Parameters{}, fmt.Errorf("producer declares no codecs")
	}

	var out Parameters

	for _, codec := range producerParams.Codecs {
		if _, ok := capabilityFor(sink, codec.MimeType, codec.ClockRate); !ok {
			return Parameters{}, fmt.Errorf("sink cannot decode %s/%d",
				codec.MimeType, codec.ClockRate)
		}

		out.Codecs = append(out.Codecs, Codec{
			MimeType:    codec.MimeType,
			PayloadType: codec.PayloadType,
			ClockRate:   codec.ClockRate,
			Channels:    codec.Channels,
			Parameters:  codec.Parameters,
		})
	}

	for _, enc := range producerParams.Encodings {
		out.Encodings = append(out.Encodings, Encoding{
			SSRC:       enc.SSRC,
			MaxBitrate: enc.MaxBitrate,
		})
	}

	out.RTCP = RTCP{
		CNAME:       producerParams.RTCP.CNAME,
		ReducedSize: true,
	}

	return out, nil
}
