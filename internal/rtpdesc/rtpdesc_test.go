package rtpdesc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildCapabilities(t *testing.T) {
	caps, err := BuildCapabilities([]string{"opus", "VP8"})
	require.NoError(t, err)
	require.Len(t, caps.Codecs, 2)
	require.Equal(t, "audio/opus", caps.Codecs[0].MimeType)
	require.Equal(t, uint8(111), caps.Codecs[0].PreferredPayloadType)
	require.Equal(t, "video/VP8", caps.Codecs[1].MimeType)

	_, err = BuildCapabilities([]string{"av1"})
	require.Error(t, err)
}

func TestValidateProduce(t *testing.T) {
	caps, err := BuildCapabilities([]string{"opus", "vp8"})
	require.NoError(t, err)

	params := Parameters{
		Codecs: []Codec{{
			MimeType:    "video/VP8",
			PayloadType: 96,
			ClockRate:   90000,
		}},
		Encodings: []Encoding{{SSRC: 123456}},
	}
	require.NoError(t, ValidateProduce(params, caps))

	t.Run("unknown codec", func(t *testing.T) {
		bad := params
		bad.Codecs = []Codec{{MimeType: "video/AV1", PayloadType: 45, ClockRate: 90000}}
		require.Error(t, ValidateProduce(bad, caps))
	})

	t.Run("missing ssrc", func(t *testing.T) {
		bad := params
		bad.Encodings = nil
		require.Error(t, ValidateProduce(bad, caps))
	})
}

func TestSynthesizeEgress(t *testing.T) {
	producer := Parameters{
		MID: "0",
		Codecs: []Codec{{
			MimeType:    "video/H264",
			PayloadType: 102,
			ClockRate:   90000,
			Parameters:  map[string]string{"packetization-mode": "1"},
		}},
		Encodings: []Encoding{{
			SSRC:                  987654321,
			ScaleResolutionDownBy: 2,
			MaxBitrate:            800_000,
		}},
		RTCP: RTCP{CNAME: "producer-cname"},
	}

	sink, err := BuildCapabilities([]string{"h264", "opus"})
	require.NoError(t, err)

	out, err := SynthesizeEgress(producer, sink)
	require.NoError(t, err)

	// payload type, clock rate and SSRC of the producer are preserved
	require.Equal(t, uint8(102), out.Codecs[0].PayloadType)
	require.Equal(t, uint32(90000), out.Codecs[0].ClockRate)
	require.Equal(t, uint32(987654321), out.Encodings[0].SSRC)
	require.Equal(t, uint64(800_000), out.Encodings[0].MaxBitrate)
	require.Equal(t, "producer-cname", out.RTCP.CNAME)
	require.True(t, out.RTCP.ReducedSize)

	t.Run("sink cannot decode", func(t *testing.T) {
		vp9only, err := BuildCapabilities([]string{"vp9"})
		require.NoError(t, err)
		_, err = SynthesizeEgress(producer, vp9only)
		require.Error(t, err)
	})
}

func TestParametersKind(t *testing.T) {
	require.Equal(t, "audio", Parameters{
		Codecs: []Codec{{MimeType: "audio/opus"}},
	}.Kind())
	require.Equal(t, "video", Parameters{
		Codecs: []Codec{{MimeType: "video/VP8"}},
	}.Kind())
	require.Equal(t, "", Parameters{}.Kind())
}
