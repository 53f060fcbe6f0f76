// Command remotetorrentd wires a Coordinator up end to end: a bolt
// metadata database, a DHT-backed magnet resolver, and a logging stub
// for the file-transfer and overlay transports (spec §1 leaves those
// wire protocols out of scope; a real host supplies working ones). It
// exists to demonstrate remotetorrent.New, not as a deployable daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/remotetorrent"
	"github.com/cenkalti/remotetorrent/internal/candidate"
	"github.com/cenkalti/remotetorrent/internal/descriptor"
	"github.com/cenkalti/remotetorrent/internal/infohash"
	"github.com/cenkalti/remotetorrent/internal/logger"
	"github.com/cenkalti/remotetorrent/internal/magnetresolver"
	"github.com/cenkalti/remotetorrent/internal/metadatadb"
	"github.com/cenkalti/remotetorrent/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	log := logger.New("remotetorrentd")

	cfg := remotetorrent.DefaultConfig
	if *configPath != "" {
		loaded, err := remotetorrent.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "remotetorrentd: loading config:", err)
			os.Exit(1)
		}
		cfg = *loaded
	}

	db, err := metadatadb.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "remotetorrentd: opening database:", err)
		os.Exit(1)
	}
	defer db.Close()

	ft := &loggingFileTransfer{log: logger.New("filetransfer")}
	overlay := &loggingOverlayBroadcast{log: logger.New("overlay")}

	var resolver transport.MagnetResolver
	var dhtNode *magnetresolver.DHTResolver
	if cfg.DHTEnabled {
		dhtNode, err = magnetresolver.New(magnetresolver.Config{Address: cfg.DHTAddress, Port: int(cfg.DHTPort)}, ft, descriptor.BencodeCodec{})
		if err != nil {
			fmt.Fprintln(os.Stderr, "remotetorrentd: starting DHT node:", err)
			os.Exit(1)
		}
		resolver = dhtNode
	} else {
		resolver = &loggingMagnetResolver{log: logger.New("magnetresolver")}
	}

	coord, err := remotetorrent.New(&cfg, remotetorrent.Dependencies{
		FileTransfer:     ft,
		MagnetResolver:   resolver,
		OverlayBroadcast: overlay,
		Database:         db,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "remotetorrentd: constructing coordinator:", err)
		os.Exit(1)
	}
	defer coord.Shutdown()

	log.Infoln("remotetorrentd started, collection dir:", cfg.CollectionDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Infoln("shutting down")
		if dhtNode != nil {
			dhtNode.Stop()
		}
		cancel()
	}()

	<-ctx.Done()
}

// loggingFileTransfer, loggingOverlayBroadcast and loggingMagnetResolver
// are stand-ins for the real network transports a host application
// would supply; they only log what they would have done. Writing the
// actual peer wire protocols is a declared non-goal (spec §1).

type loggingFileTransfer struct{ log logger.Logger }

func (f *loggingFileTransfer) DownloadFile(_ context.Context, filename string, ip net.IP, port int, extra transport.ExtraInfo,
	_ func(addr *net.TCPAddr, filename string, data []byte, extra transport.ExtraInfo),
	onFailure func(addr *net.TCPAddr, filename string, errMsg string, extra transport.ExtraInfo)) {
	f.log.Infoln("would download", filename, "from", ip, port)
	onFailure(&net.TCPAddr{IP: ip, Port: port}, filename, "no file-transfer transport configured", extra)
}

type loggingOverlayBroadcast struct{ log logger.Logger }

func (o *loggingOverlayBroadcast) SendDescriptorRequest(_ context.Context, ih infohash.Infohash, c candidate.Candidate) {
	o.log.Infoln("would broadcast descriptor request for", ih, "to", c)
}

type loggingMagnetResolver struct{ log logger.Logger }

func (m *loggingMagnetResolver) RetrieveFromMagnet(_ context.Context, magnetURI string,
	_ func(tdef *descriptor.TorrentDef), _ time.Duration, onTimeout func(ih infohash.Infohash)) {
	m.log.Infoln("would resolve magnet", magnetURI)
	onTimeout(infohash.Infohash{})
}
