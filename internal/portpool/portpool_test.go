package portpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolAllocate(t *testing.T) {
	p := &Pool{
		ListenIP: "127.0.0.1",
		MinPort:  21000,
		MaxPort:  21008,
	}
	err := p.Initialize()
	require.NoError(t, err)

	pair1, err := p.Allocate()
	require.NoError(t, err)
	defer p.Release(pair1)

	require.Equal(t, uint16(0), pair1.RTPPort%2)
	require.Equal(t, pair1.RTPPort+1, pair1.RTCPPort)

	pair2, err := p.Allocate()
	require.NoError(t, err)
	defer p.Release(pair2)

	require.NotEqual(t, pair1.RTPPort, pair2.RTPPort)
}

func TestPoolExhaustion(t *testing.T) {
	p := &Pool{
		ListenIP: "127.0.0.1",
		MinPort:  21100,
		MaxPort:  21104,
	}
	err := p.Initialize()
	require.NoError(t, err)

	pair1, err := p.Allocate()
	require.NoError(t, err)

	pair2, err := p.Allocate()
	require.NoError(t, err)

	_, err = p.Allocate()
	require.Error(t, err)

	// releasing a pair makes its ports allocatable again
	p.Release(pair1)

	pair3, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, pair1.RTPPort, pair3.RTPPort)

	p.Release(pair2)
	p.Release(pair3)
}

func TestPoolInvalidRange(t *testing.T) {
	p := &Pool{ListenIP: "127.0.0.1", MinPort: 21001, MaxPort: 21011}
	require.Error(t, p.Initialize())

	p = &Pool{ListenIP: "127.0.0.1", MinPort: 21010, MaxPort: 21000}
	require.Error(t, p.Initialize())
}
