// Package config loads the relay's YAML configuration document.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/matt0x6f/irc-relay/internal/constants"
	"github.com/matt0x6f/irc-relay/internal/validation"
	"golang.org/x/text/encoding/htmlindex"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Network types
const (
	TypeIRC     = "irc"
	TypeSlack   = "slack"
	TypeHipChat = "hipchat"
)

// Default flood control
const (
	DefaultRatePerSecond = 2
	DefaultRateBurst     = 5
)

// Config is the whole document
type Config struct {
	LogLevel    string    `yaml:"log_level"`
	Journal     string    `yaml:"journal"`
	MetricsAddr string    `yaml:"metrics_addr"`
	Networks    []Network `yaml:"networks"`
	Binds       []Bind    `yaml:"binds"`
}

// Network describes one chat network
type Network struct {
	Name              string    `yaml:"name"`
	Type              string    `yaml:"type"`
	Enabled           *bool     `yaml:"enabled"`
	Nickname          string    `yaml:"nickname"`
	AltNickname       string    `yaml:"alt_nickname"`
	Username          string    `yaml:"username"`
	Realname          string    `yaml:"realname"`
	Encoding          string    `yaml:"encoding"`
	RegisteredOn      string    `yaml:"registered_on"`
	QuitMessage       string    `yaml:"quit_message"`
	ReconnectAttempts int       `yaml:"reconnect_attempts"`
	Ping              Ping      `yaml:"ping"`
	Rate              Rate      `yaml:"rate"`
	Capabilities      []string  `yaml:"capabilities"`
	SASL              SASL      `yaml:"sasl"`
	ClientCert        string    `yaml:"client_cert"`
	ClientKey         string    `yaml:"client_key"`
	Servers           []Server  `yaml:"servers"`
	Channels          []Channel `yaml:"channels"`
}

// IsEnabled reports the enabled flag, true when unset
func (n Network) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// Ping configures the keep-alive timer
type Ping struct {
	Enabled *bool         `yaml:"enabled"`
	Delay   time.Duration `yaml:"delay"`
}

// IsEnabled reports the enabled flag, true when unset
func (p Ping) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Rate configures outbound flood control
type Rate struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// SASL selects an authentication mechanism
type SASL struct {
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// Server is one endpoint of a network
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	Password string `yaml:"password"`
	Enabled  *bool  `yaml:"enabled"`
}

// IsEnabled reports the enabled flag, true when unset
func (s Server) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Channel is a channel joined after registration
type Channel struct {
	Name     string `yaml:"name"`
	Modes    string `yaml:"modes"`
	Password string `yaml:"password"`
	Key      string `yaml:"key"`
}

// JoinKey returns the key sent with JOIN
func (c Channel) JoinKey() string {
	if c.Key != "" {
		return c.Key
	}
	return c.Password
}

// Endpoint names a channel on a network
type Endpoint struct {
	Network string `yaml:"network"`
	Channel string `yaml:"channel"`
}

// Bind describes a relay rule
type Bind struct {
	Source         Endpoint `yaml:"source"`
	Destination    Endpoint `yaml:"destination"`
	Duplex         bool     `yaml:"duplex"`
	Unrestricted   bool     `yaml:"unrestricted"`
	Prefix         string   `yaml:"prefix"`
	PrefixSource   bool     `yaml:"prefix_source"`
	Active         *bool    `yaml:"active"`
	InheritFilters bool     `yaml:"inherit_filters"`
	Reject         []string `yaml:"reject"`
	Accept         []string `yaml:"accept"`
}

// IsActive reports the active flag, true when unset
func (b Bind) IsActive() bool {
	return b.Active == nil || *b.Active
}

// Load reads and parses the document at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a document, applies defaults and validates it. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for i := range c.Networks {
		n := &c.Networks[i]
		n.Name = strings.TrimSpace(n.Name)
		n.Type = strings.ToLower(strings.TrimSpace(n.Type))
		if n.Type == "" {
			n.Type = TypeIRC
		}
		if n.Encoding == "" {
			n.Encoding = "utf-8"
		}
		if n.RegisteredOn == "" {
			n.RegisteredOn = "376"
		}
		if n.ReconnectAttempts <= 0 {
			n.ReconnectAttempts = constants.DefaultReconnectAttempts
		}
		if n.Ping.Delay <= 0 {
			n.Ping.Delay = constants.DefaultPingInterval
		}
		if n.Rate.PerSecond == 0 {
			n.Rate.PerSecond = DefaultRatePerSecond
		}
		if n.Rate.Burst <= 0 {
			n.Rate.Burst = DefaultRateBurst
		}
		for j := range n.Servers {
			s := &n.Servers[j]
			s.Host = strings.ToLower(strings.TrimSpace(s.Host))
			if s.Port == 0 {
				s.Port = 6667
				if s.TLS {
					s.Port = 6697
				}
			}
		}
	}
}

// Validate checks the document; every failure wraps ErrInvalidConfig
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, n := range c.Networks {
		where := fmt.Sprintf("network %d (%s)", i+1, n.Name)
		if err := validation.ValidateNetwork(n.Name, n.Nickname, len(n.Servers)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, where, err)
		}
		key := strings.ToLower(n.Name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate network name %q", ErrInvalidConfig, n.Name)
		}
		seen[key] = true

		switch n.Type {
		case TypeIRC, TypeSlack, TypeHipChat:
		default:
			return fmt.Errorf("%w: %s: unknown network type %q", ErrInvalidConfig, where, n.Type)
		}
		if _, err := htmlindex.Get(n.Encoding); err != nil {
			return fmt.Errorf("%w: %s: unknown encoding %q", ErrInvalidConfig, where, n.Encoding)
		}
		if !numericPattern.MatchString(n.RegisteredOn) {
			return fmt.Errorf("%w: %s: registered_on must be a numeric reply, got %q", ErrInvalidConfig, where, n.RegisteredOn)
		}
		if n.Rate.PerSecond < 0 {
			return fmt.Errorf("%w: %s: rate must not be negative", ErrInvalidConfig, where)
		}
		if (n.ClientCert == "") != (n.ClientKey == "") {
			return fmt.Errorf("%w: %s: client_cert and client_key go together", ErrInvalidConfig, where)
		}
		for j, s := range n.Servers {
			if err := validation.ValidateServerAddress(s.Host, s.Port); err != nil {
				return fmt.Errorf("%w: %s: server %d: %v", ErrInvalidConfig, where, j+1, err)
			}
		}
		for _, ch := range n.Channels {
			if err := validation.ValidateChannelName(ch.Name); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, where, err)
			}
		}
	}

	for i, b := range c.Binds {
		where := fmt.Sprintf("bind %d", i+1)
		for _, e := range []Endpoint{b.Source, b.Destination} {
			if err := validation.ValidateEndpoint(e.Network, e.Channel); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, where, err)
			}
			if !seen[strings.ToLower(e.Network)] {
				return fmt.Errorf("%w: %s: unknown network %q", ErrInvalidConfig, where, e.Network)
			}
		}
		for _, pattern := range append(append([]string(nil), b.Reject...), b.Accept...) {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("%w: %s: bad filter %q: %v", ErrInvalidConfig, where, pattern, err)
			}
		}
	}
	return nil
}

var numericPattern = regexp.MustCompile(`^[0-9]{3}$`)

// SecretResolver turns a configured secret reference into its value
type SecretResolver interface {
	Resolve(value string) (string, error)
}

// ResolveSecrets replaces server and SASL passwords through r
func (c *Config) ResolveSecrets(r SecretResolver) error {
	for i := range c.Networks {
		n := &c.Networks[i]
		v, err := r.Resolve(n.SASL.Password)
		if err != nil {
			return fmt.Errorf("network %s: sasl password: %w", n.Name, err)
		}
		n.SASL.Password = v
		for j := range n.Servers {
			s := &n.Servers[j]
			v, err := r.Resolve(s.Password)
			if err != nil {
				return fmt.Errorf("network %s: server %s: %w", n.Name, s.Host, err)
			}
			s.Password = v
		}
	}
	return nil
}
