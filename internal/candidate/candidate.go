// Package candidate defines the opaque remote-peer handle passed through
// the coordinator and requesters.
package candidate

import (
	"fmt"
	"net"
)

// Candidate is a reachable remote peer. The core never inspects it
// beyond the socket address (spec §3); Overlay carries whatever the
// overlay-message transport needs to hand back to a community object
// (e.g. the community's own peer/candidate handle), opaque to everyone
// else.
type Candidate struct {
	IP      net.IP
	Port    int
	Overlay interface{}
}

// New returns a Candidate for the given socket address.
func New(ip net.IP, port int) Candidate {
	return Candidate{IP: ip, Port: port}
}

// WithOverlay attaches an overlay-specific payload to a copy of c.
func (c Candidate) WithOverlay(v interface{}) Candidate {
	c.Overlay = v
	return c
}

// TCPAddr returns the candidate's socket address as a *net.TCPAddr.
func (c Candidate) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: c.IP, Port: c.Port}
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s:%d", c.IP, c.Port)
}

// Key is the identity used for deduplication (spec §3: "the core never
// inspects its contents beyond the socket address"). Candidate itself
// isn't comparable (net.IP is a slice), so sets of candidates are kept
// as map[string]Candidate keyed by this.
func (c Candidate) Key() string {
	return c.String()
}
