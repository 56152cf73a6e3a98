package stompest

import (
	"net/url"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const defaultConnectTimeout = 10 * time.Second

//Config carries everything needed to open a session: where the broker is,
//credentials, which protocol versions to request, whether frames are
//validated strictly, and the heart-beat preference passed through to
//CONNECT.
type Config struct {
	Scheme string
	Host   string
	Port   int
	//Path only matters for WebSocket brokers, e.g. /stomp.
	Path string

	Login    string
	Passcode string
	//Vhost is the CONNECT host header. Defaults to Host.
	Vhost string

	Versions       []Version
	Check          bool
	HeartBeat      HeartBeat
	ConnectTimeout time.Duration
}

//NewConfig parses a broker URI of the form scheme://host:port[/path]. The
//schemes tcp, ws and wss are understood. Validation is on by default.
func NewConfig(uri string) (*Config, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, "invalid broker uri")
	}
	switch u.Scheme {
	case "tcp", "ws", "wss":
	default:
		return nil, errors.Errorf("unsupported broker uri scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.Errorf("broker uri %q has no host", uri)
	}
	port := 0
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, errors.Wrapf(err, "invalid port in broker uri %q", uri)
		}
	}
	cfg := &Config{
		Scheme:         u.Scheme,
		Host:           u.Hostname(),
		Port:           port,
		Path:           u.Path,
		Vhost:          u.Hostname(),
		Versions:       SupportedVersions,
		Check:          true,
		ConnectTimeout: defaultConnectTimeout,
	}
	return cfg, nil
}

//fileConfig is the TOML shape of a client config file.
type fileConfig struct {
	URI            string   `toml:"uri"`
	Login          string   `toml:"login"`
	Passcode       string   `toml:"passcode"`
	Vhost          string   `toml:"vhost"`
	Versions       []string `toml:"versions"`
	Check          *bool    `toml:"check"`
	ConnectTimeout string   `toml:"connect_timeout"`
	HeartBeat      struct {
		Send    int `toml:"send"`
		Receive int `toml:"receive"`
	} `toml:"heart_beat"`
}

//LoadConfig reads a client config from a TOML file.
func LoadConfig(path string) (*Config, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, errors.Wrapf(err, "unable to load config file %s", path)
	}
	cfg, err := NewConfig(fc.URI)
	if err != nil {
		return nil, err
	}
	cfg.Login = fc.Login
	cfg.Passcode = fc.Passcode
	if fc.Vhost != "" {
		cfg.Vhost = fc.Vhost
	}
	if len(fc.Versions) > 0 {
		versions := make([]Version, len(fc.Versions))
		for i, v := range fc.Versions {
			if !ValidVersion(Version(v)) {
				return nil, errors.Errorf("unsupported version %q in config file %s", v, path)
			}
			versions[i] = Version(v)
		}
		cfg.Versions = versions
	}
	if fc.Check != nil {
		cfg.Check = *fc.Check
	}
	if fc.ConnectTimeout != "" {
		d, err := time.ParseDuration(fc.ConnectTimeout)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid connect_timeout in config file %s", path)
		}
		cfg.ConnectTimeout = d
	}
	cfg.HeartBeat = HeartBeat{Send: fc.HeartBeat.Send, Receive: fc.HeartBeat.Receive}
	return cfg, nil
}
