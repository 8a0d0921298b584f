package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/camroute/camroute/internal/logger"
)

func writeTempConf(t *testing.T, content string) string {
	t.Helper()
	fpath := filepath.Join(t.TempDir(), "camroute.yml")
	err := os.WriteFile(fpath, []byte(content), 0o644)
	require.NoError(t, err)
	return fpath
}

func TestLoadDefaults(t *testing.T) {
	conf, found, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	require.NoError(t, err)
	require.False(t, found)

	require.Equal(t, LogLevel(logger.Info), conf.LogLevel)
	require.Equal(t, ":4443", conf.SignalingAddress)
	require.Equal(t, uint16(20000), conf.EgressMinPort)
	require.Equal(t, uint16(20100), conf.EgressMaxPort)
	require.Equal(t, Duration(30*time.Second), conf.RemovalGrace)
	require.Equal(t, []string{"opus", "vp8", "vp9", "h264"}, conf.Codecs)
}

func TestLoadFile(t *testing.T) {
	fpath := writeTempConf(t, "logLevel: debug\n"+
		"announcedIP: 192.168.0.10\n"+
		"egressMinPort: 30000\n"+
		"egressMaxPort: 30010\n"+
		"removalGrace: 10s\n")

	conf, found, err := Load(fpath)
	require.NoError(t, err)
	require.True(t, found)

	require.Equal(t, LogLevel(logger.Debug), conf.LogLevel)
	require.Equal(t, "192.168.0.10", conf.AnnouncedIP)
	require.Equal(t, uint16(30000), conf.EgressMinPort)
	require.Equal(t, Duration(10*time.Second), conf.RemovalGrace)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CAMROUTE_ANNOUNCEDIP", "10.0.0.5")
	t.Setenv("CAMROUTE_REMOVALGRACE", "5s")
	t.Setenv("CAMROUTE_CODECS", "opus,vp8")

	conf, _, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	require.NoError(t, err)

	require.Equal(t, "10.0.0.5", conf.AnnouncedIP)
	require.Equal(t, Duration(5*time.Second), conf.RemovalGrace)
	require.Equal(t, []string{"opus", "vp8"}, conf.Codecs)
}

func TestValidateErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		conf string
		err  string
	}{
		{
			"overlapping ranges",
			"webrtcMinPort: 20000\nwebrtcMaxPort: 20050\n",
			"overlaps",
		},
		{
			"odd egress start",
			"egressMinPort: 20001\negressMaxPort: 20101\n",
			"even port",
		},
		{
			"bad codec",
			"codecs: [av1]\n",
			"unsupported codec",
		},
		{
			"inverted range",
			"egressMinPort: 20100\negressMaxPort: 20000\n",
			"invalid egress port range",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			fpath := writeTempConf(t, ca.conf)
			_, _, err := Load(fpath)
			require.Error(t, err)
			require.Contains(t, err.Error(), ca.err)
		})
	}
}
