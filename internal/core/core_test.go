package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConf(t *testing.T, content string) string {
	t.Helper()
	fpath := filepath.Join(t.TempDir(), "camroute.yml")
	err := os.WriteFile(fpath, []byte(content), 0o644)
	require.NoError(t, err)
	return fpath
}

func TestCoreStartStop(t *testing.T) {
	fpath := writeTempConf(t,
		"signalingAddress: 127.0.0.1:0\n"+
			"apiAddress: 127.0.0.1:0\n"+
			"egressListenIP: 127.0.0.1\n")

	p, ok := New([]string{fpath})
	require.True(t, ok)
	p.Close()
}

func TestCoreInvalidConf(t *testing.T) {
	fpath := writeTempConf(t, "codecs: [av1]\n")

	_, ok := New([]string{fpath})
	require.False(t, ok)
}

func TestCoreAPIDisabled(t *testing.T) {
	fpath := writeTempConf(t,
		"signalingAddress: 127.0.0.1:0\n"+
			"api: false\n"+
			"egressListenIP: 127.0.0.1\n")

	p, ok := New([]string{fpath})
	require.True(t, ok)
	require.Nil(t, p.apiServer)
	p.Close()
}
