// Package remotetorrent coordinates acquisition of torrent descriptor
// files and thumbnail assets from remote peers, trading off between an
// in-overlay message broadcast, a file-transfer transport, and a DHT
// magnet-resolution fallback.
package remotetorrent

import (
	"io/ioutil"
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	yaml "gopkg.in/yaml.v2"
)

// Config holds the tunables listed in spec §6.
type Config struct {
	// CollectionDir is the flat directory descriptors and thumbnails are
	// stored under.
	CollectionDir string `yaml:"collection_dir"`

	// DatabasePath is the bolt database file backing the metadata
	// database (internal/metadatadb).
	DatabasePath string `yaml:"database_path"`

	// MaxNumTorrents is the quota target enforced by the overflow task.
	MaxNumTorrents int `yaml:"max_num_torrents"`

	// OverflowCheckInterval is how often the quota task runs.
	// Zero means the spec default of 30 minutes.
	OverflowCheckInterval time.Duration `yaml:"overflow_check_interval"`

	// MagnetTimeout scales the pre-delay before a priority's magnet
	// attempt is scheduled (MAGNET_TIMEOUT * priority). Zero means the
	// spec default of 5 seconds.
	MagnetTimeout time.Duration `yaml:"magnet_timeout"`

	// MagnetRetrieveTimeout bounds a single magnet resolution attempt.
	// Zero means the spec default of 30 seconds.
	MagnetRetrieveTimeout time.Duration `yaml:"magnet_retrieve_timeout"`

	// RequestInterval is the base pacing interval. A per-priority
	// requester waits RequestInterval * priority between requests, so
	// priority-0 requesters are not paced; the thumbnail requester uses
	// it unscaled. Zero means the spec default of 500ms.
	RequestInterval time.Duration `yaml:"request_interval"`

	// ConstrainedFileDescriptors enables the platform overrides from
	// spec §4.2 (slower overlay-message and magnet/thumbnail pacing to
	// keep concurrent sockets bounded).
	ConstrainedFileDescriptors bool `yaml:"constrained_file_descriptors"`

	// DHTEnabled controls whether the magnet resolver bootstraps a DHT
	// node. When false, a Coordinator must be given a MagnetResolver
	// that doesn't depend on one.
	DHTEnabled bool `yaml:"dht_enabled"`

	// DHTAddress and DHTPort configure the DHT node used by the default
	// magnet resolver.
	DHTAddress string `yaml:"dht_address"`
	DHTPort    uint16 `yaml:"dht_port"`
}

// DefaultConfig mirrors the constants named in spec §6.
var DefaultConfig = Config{
	CollectionDir:         "torrents",
	DatabasePath:          "~/.remotetorrent/metadata.db",
	MaxNumTorrents:        5000,
	OverflowCheckInterval: 30 * time.Minute,
	MagnetTimeout:         5 * time.Second,
	MagnetRetrieveTimeout: 30 * time.Second,
	RequestInterval:       500 * time.Millisecond,
	DHTEnabled:            true,
	DHTPort:               6881,
}

// LoadConfig reads a YAML config file, falling back to DefaultConfig
// values for anything the file doesn't set. A missing file is not an
// error: DefaultConfig is returned as-is.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	b, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.CollectionDir, err = homedir.Expand(c.CollectionDir)
	if err != nil {
		return nil, err
	}
	c.DatabasePath, err = homedir.Expand(c.DatabasePath)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) requestInterval() time.Duration {
	if c.RequestInterval > 0 {
		return c.RequestInterval
	}
	return DefaultConfig.RequestInterval
}

func (c *Config) magnetTimeout() time.Duration {
	if c.MagnetTimeout > 0 {
		return c.MagnetTimeout
	}
	return DefaultConfig.MagnetTimeout
}

func (c *Config) magnetRetrieveTimeout() time.Duration {
	if c.MagnetRetrieveTimeout > 0 {
		return c.MagnetRetrieveTimeout
	}
	return DefaultConfig.MagnetRetrieveTimeout
}

func (c *Config) overflowCheckInterval() time.Duration {
	if c.OverflowCheckInterval > 0 {
		return c.OverflowCheckInterval
	}
	return DefaultConfig.OverflowCheckInterval
}

// overlayRequestInterval is the pacing interval for the overlay-message
// requester, which gets a platform override per spec §4.2.
func (c *Config) overlayRequestInterval() time.Duration {
	if c.ConstrainedFileDescriptors {
		return time.Second
	}
	return c.requestInterval()
}

// slowRequestInterval is the pacing interval for the magnet and
// thumbnail requesters, which get a platform override per spec §4.2.
func (c *Config) slowRequestInterval() time.Duration {
	if c.ConstrainedFileDescriptors {
		return 15 * time.Second
	}
	return c.requestInterval()
}
