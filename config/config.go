// Package config loads the gateway configuration from a YAML file and the
// CASAN_* environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/coalalib/casan"
	cerr "github.com/coalalib/casan/errors"
	"github.com/coalalib/casan/network"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	log "github.com/ndmsystems/logger"
)

const (
	NetworkEthernet = "ethernet"
	NetworkXBee     = "xbee"

	DefaultListen  = ":80"
	DefaultChannel = 12
)

// Env holds the settings taken from the environment.
type Env struct {
	Config     string `env:"CONFIG"      envDefault:"/etc/casan/casan.yaml"`
	HTTPListen string `env:"HTTP_LISTEN"`
	LogLevel   string `env:"LOG_LEVEL"   envDefault:"info"`
}

// LoadEnv reads .env when present, then the CASAN_* variables.
func LoadEnv() (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Env{}, err
	}
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Prefix: "CASAN_"}); err != nil {
		return Env{}, err
	}
	return e, nil
}

// Level is the logger level asked for by CASAN_LOG_LEVEL. verbose forces
// DEBUG.
func (e Env) Level(verbose bool) (log.Level, error) {
	if verbose {
		return log.DEBUG, nil
	}
	name := e.LogLevel
	if strings.EqualFold(name, "warn") {
		name = "warning"
	}
	lvl, err := log.LogLevel(name)
	if err != nil {
		return log.INFO, fmt.Errorf("%w: log level %q: %s", cerr.InvalidConfig, e.LogLevel, err)
	}
	return lvl, nil
}

type Namespaces struct {
	Admin     string `yaml:"admin"`
	Casan     string `yaml:"casan"`
	WellKnown string `yaml:"well-known"`
}

type HTTP struct {
	Listen string `yaml:"listen"`
}

type Timers struct {
	FirstHello   time.Duration `yaml:"firsthello"`
	Hello        time.Duration `yaml:"hello"`
	SlaveTTL     time.Duration `yaml:"slavettl"`
	CacheCleanup time.Duration `yaml:"cachecleanup"`
}

type Network struct {
	Type      string `yaml:"type"`
	Iface     string `yaml:"iface"`
	MTU       int    `yaml:"mtu,omitempty"`
	EtherType uint16 `yaml:"ethertype,omitempty"`
	Addr      string `yaml:"addr,omitempty"`
	PanID     string `yaml:"panid,omitempty"`
	Channel   int    `yaml:"channel,omitempty"`
}

type Slave struct {
	ID  int           `yaml:"id"`
	TTL time.Duration `yaml:"ttl,omitempty"`
	MTU int           `yaml:"mtu,omitempty"`
}

type Config struct {
	Namespaces Namespaces `yaml:"namespaces"`
	HTTP       HTTP       `yaml:"http"`
	Timers     Timers     `yaml:"timers"`
	Networks   []Network  `yaml:"networks"`
	Slaves     []Slave    `yaml:"slaves"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := new(Config)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", cerr.InvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv lets the environment override the file.
func (c *Config) ApplyEnv(e Env) {
	if e.HTTPListen != "" {
		c.HTTP.Listen = e.HTTPListen
	}
}

func (c *Config) applyDefaults() {
	if c.Namespaces.Admin == "" {
		c.Namespaces.Admin = "admin"
	}
	if c.Namespaces.Casan == "" {
		c.Namespaces.Casan = casan.DEFAULT_CASAN_NAMESPACE
	}
	if c.Namespaces.WellKnown == "" {
		c.Namespaces.WellKnown = ".well-known"
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = DefaultListen
	}
	if c.Timers.FirstHello <= 0 {
		c.Timers.FirstHello = casan.DEFAULT_FIRST_HELLO
	}
	if c.Timers.Hello <= 0 {
		c.Timers.Hello = casan.DEFAULT_HELLO_INTERVAL
	}
	if c.Timers.SlaveTTL <= 0 {
		c.Timers.SlaveTTL = casan.DEFAULT_SLAVE_TTL
	}
	if c.Timers.CacheCleanup <= 0 {
		c.Timers.CacheCleanup = casan.DEFAULT_CACHE_CLEANUP
	}
	for i := range c.Networks {
		n := &c.Networks[i]
		n.Type = strings.ToLower(n.Type)
		if n.Type == "802.15.4" {
			n.Type = NetworkXBee
		}
		if n.Type == NetworkEthernet && n.EtherType == 0 {
			n.EtherType = network.DefaultEtherType
		}
		if n.Type == NetworkXBee && n.Channel == 0 {
			n.Channel = DefaultChannel
		}
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", cerr.InvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	ns := map[string]string{}
	for kind, uri := range map[string]string{
		"admin":      c.Namespaces.Admin,
		"casan":      c.Namespaces.Casan,
		"well-known": c.Namespaces.WellKnown,
	} {
		uri = strings.Trim(uri, "/")
		if uri == "" || strings.Contains(uri, "/") {
			return invalid("namespace %s: bad uri %q", kind, uri)
		}
		if other, dup := ns[uri]; dup {
			return invalid("namespaces %s and %s share uri %q", other, kind, uri)
		}
		ns[uri] = kind
	}

	if len(c.Networks) == 0 {
		return invalid("no network")
	}
	for i, n := range c.Networks {
		if n.Iface == "" {
			return invalid("network %d: no iface", i)
		}
		if n.MTU < 0 {
			return invalid("network %d: negative mtu", i)
		}
		switch n.Type {
		case NetworkEthernet:
		case NetworkXBee:
			if _, err := network.ParseXBeeAddress(n.Addr); err != nil {
				return invalid("network %d: addr: %s", i, err)
			}
			if _, err := network.ParseXBeeAddress(n.PanID); err != nil {
				return invalid("network %d: panid: %s", i, err)
			}
			if n.Channel < 11 || n.Channel > 26 {
				return invalid("network %d: channel %d not in 11..26", i, n.Channel)
			}
		default:
			return invalid("network %d: unknown type %q", i, n.Type)
		}
	}

	seen := map[int]bool{}
	for _, s := range c.Slaves {
		if s.ID <= 0 {
			return invalid("slave id %d must be positive", s.ID)
		}
		if seen[s.ID] {
			return invalid("duplicate slave %d", s.ID)
		}
		if s.TTL < 0 || s.MTU < 0 {
			return invalid("slave %d: negative ttl or mtu", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

func (c *Config) EngineOptions() casan.Options {
	return casan.Options{
		FirstHello:    c.Timers.FirstHello,
		HelloInterval: c.Timers.Hello,
		SlaveTTL:      c.Timers.SlaveTTL,
		CacheCleanup:  c.Timers.CacheCleanup,
		Namespace:     strings.Trim(c.Namespaces.Casan, "/"),
	}
}

func (c *Config) SlaveConfigs() []casan.SlaveConfig {
	list := make([]casan.SlaveConfig, 0, len(c.Slaves))
	for _, s := range c.Slaves {
		list = append(list, casan.SlaveConfig{ID: s.ID, TTL: s.TTL, MTU: s.MTU})
	}
	return list
}

// Opener opens one configured network.
type Opener func(Network) (network.Link, error)

// OpenNetwork opens the link described by n.
func OpenNetwork(n Network) (network.Link, error) {
	switch n.Type {
	case NetworkEthernet:
		eth, err := network.OpenEthernet(n.Iface, n.EtherType, n.MTU)
		if err != nil {
			return nil, err
		}
		return eth, nil
	case NetworkXBee:
		addr, err := network.ParseXBeeAddress(n.Addr)
		if err != nil {
			return nil, err
		}
		panid, err := network.ParseXBeeAddress(n.PanID)
		if err != nil {
			return nil, err
		}
		xb, err := network.OpenXBee(network.XBeeConfig{
			Device:  n.Iface,
			Addr:    addr,
			PanID:   panid,
			Channel: n.Channel,
			MTU:     n.MTU,
		})
		if err != nil {
			return nil, err
		}
		return xb, nil
	}
	return nil, invalid("unknown network type %q", n.Type)
}

// OpenLinks opens every configured network. A network that fails is
// logged and skipped; it is an error only if none could be opened.
func (c *Config) OpenLinks(open Opener) ([]network.Link, error) {
	if open == nil {
		open = OpenNetwork
	}
	var (
		links []network.Link
		errs  []error
	)
	for _, n := range c.Networks {
		l, err := open(n)
		if err != nil {
			log.Error(fmt.Sprintf("network %s %s: %s", n.Type, n.Iface, err))
			errs = append(errs, err)
			continue
		}
		links = append(links, l)
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: no usable network: %w", cerr.LinkInitFailure, errors.Join(errs...))
	}
	return links, nil
}
