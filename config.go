// Package rain holds the root Config that cmd/torrentd loads and passes
// into session.New. Field names mirror what session/session.go already
// reads off its cfg argument (PortBegin/PortEnd/Database/etc.).
package rain

import (
	"io/ioutil"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v1"

	"github.com/kagen/torrentd/session"
)

// ByteRate parses human-readable rates like "10MB/s" or "512KB/s" via
// datasize.ByteSize, then stores the value as bytes/sec for the session's
// fair-share allocator to consume directly.
type ByteRate int

func (r *ByteRate) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*r = 0
		return nil
	}
	s = trimRateSuffix(s)
	var bs datasize.ByteSize
	if err := bs.UnmarshalText([]byte(s)); err != nil {
		return err
	}
	*r = ByteRate(bs.Bytes())
	return nil
}

func trimRateSuffix(s string) string {
	const suffix = "/s"
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}

// Config is the on-disk (YAML) configuration for a session. Zero values
// for the rate/limit fields mean "unlimited" / "use DefaultConfig".
type Config struct {
	PortBegin uint16 `yaml:"port_begin"`
	PortEnd   uint16 `yaml:"port_end"`

	Database string `yaml:"database"`

	UploadRateLimit        ByteRate `yaml:"upload_speed_limit"`
	DownloadRateLimit      ByteRate `yaml:"download_speed_limit"`
	MaxUploads             int      `yaml:"max_uploads"`
	MaxConnections         int      `yaml:"max_connections"`
	MaxHalfOpenConnections int      `yaml:"max_half_open_connections"`

	PeerIDPrefix string `yaml:"peer_id_prefix"`

	RPCHost string `yaml:"rpc_host"`
	RPCPort uint16 `yaml:"rpc_port"`

	Encryption struct {
		DisableOutgoing bool `yaml:"disable_outgoing"`
		ForceOutgoing   bool `yaml:"force_outgoing"`
		ForceIncoming   bool `yaml:"force_incoming"`
	} `yaml:"encryption"`
}

var DefaultConfig = Config{
	PortBegin:              6881,
	PortEnd:                6889,
	Database:               "~/.torrentd/resume.db",
	MaxUploads:             4,
	MaxConnections:         200,
	MaxHalfOpenConnections: 50,
	PeerIDPrefix:           "-TD0001-",
	RPCHost:                "127.0.0.1",
	RPCPort:                7246,
}

// SessionConfig builds the session package's runtime Config from the
// parsed YAML settings.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		PortBegin:              c.PortBegin,
		PortEnd:                c.PortEnd,
		Database:               c.Database,
		UploadRateLimit:        int(c.UploadRateLimit),
		DownloadRateLimit:      int(c.DownloadRateLimit),
		MaxUploads:             c.MaxUploads,
		MaxConnections:         c.MaxConnections,
		MaxHalfOpenConnections: c.MaxHalfOpenConnections,
		PeerIDPrefix:           c.PeerIDPrefix,
	}
}

func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	filename, err := homedir.Expand(filename)
	if err != nil {
		return nil, err
	}
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
	return &c, nil
}
