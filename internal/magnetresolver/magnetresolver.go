// Package magnetresolver implements the transport.MagnetResolver
// contract (spec §4.1/§4.11) on top of a real DHT node.
//
// Grounded on the teacher's own session.go DHT wiring: dht.NewConfig(),
// dht.New(cfg), dhtNode.Start()/Stop(), processDHTResults's select loop
// over s.dht.PeersRequestResults, and parseDHTPeers's compact-peer
// decoding. Full BEP 9 metadata exchange with a DHT-discovered peer is,
// like every other transport wire protocol, out of scope per spec §1;
// DHTResolver hands discovered peer addresses to a caller-supplied
// transport.FileTransfer to actually fetch the descriptor bytes, the
// same division of labor the coordinator uses for direct candidates.
package magnetresolver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/remotetorrent/internal/descriptor"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/logger"
	"github.com/cenkalti/remotetorrent/internal/magnet"
	"github.com/cenkalti/remotetorrent/internal/transport"
	"github.com/nictuku/dht"
)

// Config mirrors the DHT fields the teacher's session config carries
// (cfg.DHTAddress / cfg.DHTPort), plus the bootstrap router list baked
// into session.go's dht.NewConfig() call.
type Config struct {
	Address string
	Port    int
}

const dhtRouters = "router.bittorrent.com:6881,dht.transmissionbt.com:6881," +
	"router.utorrent.com:6881,dht.libtorrent.org:25401,dht.aelitis.com:6881"

// DHTResolver resolves magnet URIs by looking up peers on a DHT node and
// fetching the descriptor from the first peer to respond.
type DHTResolver struct {
	node  *dht.DHT
	fetch transport.FileTransfer
	codec descriptor.Codec
	log   logger.Logger

	mu      sync.Mutex
	pending map[infohash.Infohash]*pendingLookup
	closed  chan struct{}
}

type pendingLookup struct {
	onSuccess func(tdef *descriptor.TorrentDef)
	onTimeout func(ih infohash.Infohash)
	timer     *time.Timer
}

// New starts a DHT node and returns a resolver backed by it. fetch is
// used to download the descriptor bytes from a peer once the DHT
// reports one; codec decodes the fetched bytes into a descriptor.
func New(cfg Config, fetch transport.FileTransfer, codec descriptor.Codec) (*DHTResolver, error) {
	dhtConfig := dht.NewConfig()
	dhtConfig.Address = cfg.Address
	dhtConfig.Port = cfg.Port
	dhtConfig.DHTRouters = dhtRouters
	dhtConfig.SaveRoutingTable = false

	node, err := dht.New(dhtConfig)
	if err != nil {
		return nil, err
	}
	if err := node.Start(); err != nil {
		return nil, err
	}

	r := &DHTResolver{
		node:    node,
		fetch:   fetch,
		codec:   codec,
		log:     logger.New("magnetresolver"),
		pending: make(map[infohash.Infohash]*pendingLookup),
		closed:  make(chan struct{}),
	}
	go r.processResults()
	return r, nil
}

// Stop stops the underlying DHT node.
func (r *DHTResolver) Stop() {
	close(r.closed)
	r.node.Stop()
}

// RetrieveFromMagnet implements transport.MagnetResolver.
func (r *DHTResolver) RetrieveFromMagnet(ctx context.Context, magnetURI string,
	onSuccess func(tdef *descriptor.TorrentDef),
	timeout time.Duration,
	onTimeout func(ih infohash.Infohash)) {
	m, err := magnet.Parse(magnetURI)
	if err != nil {
		r.log.Errorln("invalid magnet uri:", err)
		onTimeout(infohash.Infohash{})
		return
	}
	ih := m.InfoHash

	r.mu.Lock()
	lookup := &pendingLookup{onSuccess: onSuccess, onTimeout: onTimeout}
	lookup.timer = time.AfterFunc(timeout, func() { r.fireTimeout(ih) })
	r.pending[ih] = lookup
	r.mu.Unlock()

	r.node.PeersRequest(string(dht.InfoHash(ih[:])), true)
}

func (r *DHTResolver) fireTimeout(ih infohash.Infohash) {
	r.mu.Lock()
	lookup, ok := r.pending[ih]
	if ok {
		delete(r.pending, ih)
	}
	r.mu.Unlock()
	if ok {
		lookup.onTimeout(ih)
	}
}

// processResults drains the DHT's peer-discovery results, exactly the
// teacher's processDHTResults select loop, and fetches the descriptor
// from the first peer reported for a pending lookup.
func (r *DHTResolver) processResults() {
	for {
		select {
		case res, ok := <-r.node.PeersRequestResults:
			if !ok {
				return
			}
			for dhtIH, peers := range res {
				r.handleResult(dhtIH, peers)
			}
		case <-r.closed:
			return
		}
	}
}

func (r *DHTResolver) handleResult(dhtIH dht.InfoHash, peers []string) {
	ih, err := infohash.Parse([]byte(dhtIH))
	if err != nil {
		return
	}

	r.mu.Lock()
	lookup, ok := r.pending[ih]
	if ok {
		delete(r.pending, ih)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	lookup.timer.Stop()

	addrs := parseDHTPeers(peers)
	if len(addrs) == 0 {
		lookup.onTimeout(ih)
		return
	}
	addr := addrs[0]
	r.fetch.DownloadFile(context.Background(), ih.Filename(), addr.IP, addr.Port,
		transport.ExtraInfo{Infohash: ih},
		func(_ *net.TCPAddr, _ string, data []byte, _ transport.ExtraInfo) {
			tdef, err := r.codec.Decode(data)
			if err != nil {
				r.log.Errorln("magnet descriptor fetch: decode failed:", err)
				lookup.onTimeout(ih)
				return
			}
			lookup.onSuccess(tdef)
		},
		func(_ *net.TCPAddr, _ string, _ string, _ transport.ExtraInfo) {
			lookup.onTimeout(ih)
		})
}

// parseDHTPeers decodes the DHT's compact peer representation, the same
// way the teacher's parseDHTPeers does (only IPv4 is supported).
func parseDHTPeers(peers []string) []*net.TCPAddr {
	var addrs []*net.TCPAddr
	for _, peer := range peers {
		if len(peer) != 6 {
			continue
		}
		addrs = append(addrs, &net.TCPAddr{
			IP:   net.IP([]byte(peer[:4])),
			Port: int(uint16(peer[4])<<8 | uint16(peer[5])),
		})
	}
	return addrs
}
