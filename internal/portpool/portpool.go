// Package portpool allocates UDP port pairs for plain RTP egress.
package portpool

import (
	"fmt"
	"net"
	"sync"

	"github.com/camroute/camroute/internal/restrictnetwork"
)

// Pair is an allocated (RTP, RTCP) UDP socket pair.
// The RTP socket sits on an even port, the RTCP socket on the following odd one.
type Pair struct {
	RTPPort  uint16
	RTCPPort uint16
	RTPConn  net.PacketConn
	RTCPConn net.PacketConn
}

// Close releases both sockets.
func (p *Pair) Close() {
	p.RTPConn.Close()
	p.RTCPConn.Close()
}

// Pool hands out bound UDP port pairs from a fixed range.
// Allocation is all-or-nothing: a pair is returned only with
// both sockets bound, otherwise nothing is leaked.
type Pool struct {
	ListenIP string
	MinPort  uint16
	MaxPort  uint16

	mutex sync.Mutex
	used  map[uint16]struct{}
}

// Initialize initializes the pool.
func (p *Pool) Initialize() error {
	if (p.MinPort % 2) != 0 {
		return fmt.Errorf("port range must start with an even port")
	}
	if p.MinPort >= p.MaxPort {
		return fmt.Errorf("invalid port range [%d, %d]", p.MinPort, p.MaxPort)
	}

	p.used = make(map[uint16]struct{})
	return nil
}

func (p *Pool) bind(port uint16) (net.PacketConn, error) {
	network, address := restrictnetwork.Restrict("udp",
		net.JoinHostPort(p.ListenIP, fmt.Sprintf("%d", port)))
	return net.ListenPacket(network, address)
}

// Allocate binds and returns the first free (even, odd) port pair.
// It returns an error when the range is exhausted.
func (p *Pool) Allocate() (*Pair, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for port := p.MinPort; port < p.MaxPort; port += 2 {
		if _, ok := p.used[port]; ok {
			continue
		}

		rtpConn, err := p.bind(port)
		if err != nil {
			continue
		}

		rtcpConn, err := p.bind(port + 1)
		if err != nil {
			rtpConn.Close()
			continue
		}

		p.used[port] = struct{}{}

		return &Pair{
			RTPPort:  port,
			RTCPPort: port + 1,
			RTPConn:  rtpConn,
			RTCPConn: rtcpConn,
		}, nil
	}

	return nil, fmt.Errorf("no free port pair in range [%d, %d]", p.MinPort, p.MaxPort)
}

// Release closes the sockets of a pair and returns its ports to the pool.
func (p *Pool) Release(pair *Pair) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	pair.Close()
	delete(p.used, pair.RTPPort)
}
