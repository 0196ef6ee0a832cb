// Package config loads the trustd configuration: a TOML file, then a .env
// file, then TRUSTD_* environment variables.
package config

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/scionproto/scion/pkg/private/serrors"

	"github.com/fancl20/trustchain/pkg/authority"
	"github.com/fancl20/trustchain/pkg/keygen"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRUSTD_"

// Store backends.
const (
	BackendBbolt  = "bbolt"
	BackendMemory = "memory"
)

// Duration is a time.Duration written as a string such as "5m" in TOML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Log          LogConfig          `toml:"log"`
	Server       ServerConfig       `toml:"server"`
	Store        StoreConfig        `toml:"store"`
	Keys         KeysConfig         `toml:"keys"`
	Root         RootConfig         `toml:"root"`
	Intermediate IntermediateConfig `toml:"intermediate"`
	Client       ClientConfig       `toml:"client"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Listen   string `toml:"listen"`
	H3Listen string `toml:"h3_listen"`
	TLSCert  string `toml:"tls_cert"`
	TLSKey   string `toml:"tls_key"`
	// SignRate is the number of signing requests per second a node serves.
	// Zero disables the limit.
	SignRate  float64 `toml:"sign_rate"`
	SignBurst int     `toml:"sign_burst"`
	// UpstreamH3 makes outgoing calls over HTTP/3.
	UpstreamH3 bool `toml:"upstream_h3"`
	// UpstreamInsecure accepts self-signed upstream certificates.
	UpstreamInsecure bool `toml:"upstream_insecure"`
}

// TLS reports whether the listeners serve TLS.
func (s ServerConfig) TLS() bool {
	return s.H3Listen != "" || s.TLSCert != "" || s.TLSKey != ""
}

type StoreConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

type KeysConfig struct {
	// Bits is the bit length of each prime.
	Bits       int `toml:"bits"`
	Iterations int `toml:"iterations"`
}

// RootConfig holds the Root's own settings.
type RootConfig struct {
	// IssueOnStart generates keys and the root certificate at startup.
	IssueOnStart bool `toml:"issue_on_start"`
}

type IntermediateConfig struct {
	Subject      string   `toml:"subject"`
	RootURL      string   `toml:"root_url"`
	RootCacheTTL Duration `toml:"root_cache_ttl"`
	// ClientBits is the prime bit length of issued client keys. Zero uses
	// keys.bits.
	ClientBits int `toml:"client_bits"`
}

type ClientConfig struct {
	Name            string            `toml:"name"`
	IntermediateURL string            `toml:"intermediate_url"`
	Peers           map[string]string `toml:"peers"`
}

// Default returns the configuration used for every unset value.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "human"},
		Server: ServerConfig{
			Listen:    "127.0.0.1:8000",
			SignRate:  10,
			SignBurst: 20,
		},
		Store: StoreConfig{Backend: BackendMemory},
		Keys:  KeysConfig{Bits: keygen.DefaultBits, Iterations: keygen.DefaultIterations},
		Intermediate: IntermediateConfig{
			Subject:      authority.DefaultIntermediateSubject,
			RootURL:      "http://127.0.0.1:8000",
			RootCacheTTL: Duration(authority.DefaultRootCacheTTL),
		},
		Client: ClientConfig{
			Name:            "client",
			IntermediateURL: "http://127.0.0.1:8001",
			Peers:           map[string]string{},
		},
	}
}

// Load reads path over the defaults and applies the overrides from envFile
// and the process environment. Empty paths are skipped and a missing
// envFile is not an error. Process variables take precedence over envFile.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, serrors.Wrap("reading config", err, "path", path)
		}
		if err := Decode(b, &cfg); err != nil {
			return nil, serrors.Wrap("parsing config", err, "path", path)
		}
	}
	lookup, err := envLookup(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode parses TOML into cfg. Unknown keys are rejected.
func Decode(b []byte, cfg *Config) error {
	return toml.NewDecoder(bytes.NewReader(b)).DisallowUnknownFields().Decode(cfg)
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

func envLookup(envFile string) (func(string) (string, bool), error) {
	var file map[string]string
	if envFile != "" {
		var err error
		file, err = godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, serrors.Wrap("reading env file", err, "path", envFile)
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}, nil
}

type override struct {
	key string
	set func(*Config, string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolean(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

var overrides = []override{
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Log.Format })},
	{"LISTEN", str(func(c *Config) *string { return &c.Server.Listen })},
	{"H3_LISTEN", str(func(c *Config) *string { return &c.Server.H3Listen })},
	{"TLS_CERT", str(func(c *Config) *string { return &c.Server.TLSCert })},
	{"TLS_KEY", str(func(c *Config) *string { return &c.Server.TLSKey })},
	{"SIGN_RATE", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Server.SignRate = f
		return nil
	}},
	{"SIGN_BURST", integer(func(c *Config) *int { return &c.Server.SignBurst })},
	{"STORE_BACKEND", str(func(c *Config) *string { return &c.Store.Backend })},
	{"STORE_PATH", str(func(c *Config) *string { return &c.Store.Path })},
	{"KEY_BITS", integer(func(c *Config) *int { return &c.Keys.Bits })},
	{"KEY_ITERATIONS", integer(func(c *Config) *int { return &c.Keys.Iterations })},
	{"UPSTREAM_H3", boolean(func(c *Config) *bool { return &c.Server.UpstreamH3 })},
	{"UPSTREAM_INSECURE", boolean(func(c *Config) *bool { return &c.Server.UpstreamInsecure })},
	{"ROOT_ISSUE_ON_START", boolean(func(c *Config) *bool { return &c.Root.IssueOnStart })},
	{"INTERMEDIATE_SUBJECT", str(func(c *Config) *string { return &c.Intermediate.Subject })},
	{"ROOT_URL", str(func(c *Config) *string { return &c.Intermediate.RootURL })},
	{"ROOT_CACHE_TTL", func(c *Config, v string) error {
		return c.Intermediate.RootCacheTTL.UnmarshalText([]byte(v))
	}},
	{"CLIENT_BITS", integer(func(c *Config) *int { return &c.Intermediate.ClientBits })},
	{"CLIENT_NAME", str(func(c *Config) *string { return &c.Client.Name })},
	{"INTERMEDIATE_URL", str(func(c *Config) *string { return &c.Client.IntermediateURL })},
	{"PEERS", func(c *Config, v string) error {
		peers, err := ParsePeers(v)
		if err != nil {
			return err
		}
		c.Client.Peers = peers
		return nil
	}},
}

// ApplyEnv sets every field whose TRUSTD_* variable lookup finds.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, o := range overrides {
		v, ok := lookup(EnvPrefix + o.key)
		if !ok {
			continue
		}
		if err := o.set(c, v); err != nil {
			return serrors.Wrap("invalid environment override", err, "variable", EnvPrefix+o.key)
		}
	}
	return nil
}

// ParsePeers parses a comma separated list of name=url pairs.
func ParsePeers(s string) (map[string]string, error) {
	peers := map[string]string{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, url, ok := strings.Cut(item, "=")
		if !ok || name == "" || url == "" {
			return nil, serrors.New("peer must be name=url", "peer", item)
		}
		peers[strings.TrimSpace(name)] = strings.TrimSpace(url)
	}
	return peers, nil
}

// PeerNames returns the configured peer names in order.
func (c ClientConfig) PeerNames() []string {
	names := make([]string, 0, len(c.Peers))
	for name := range c.Peers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the values Load cannot repair.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "human", "json":
	default:
		return serrors.New("unknown log format", "format", c.Log.Format)
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendBbolt:
		if c.Store.Path == "" {
			return serrors.New("bbolt store requires a path")
		}
	default:
		return serrors.New("unknown store backend", "backend", c.Store.Backend)
	}
	if c.Keys.Bits < 3 {
		return serrors.New("key bits must be at least 3", "bits", c.Keys.Bits)
	}
	if c.Keys.Iterations < 0 {
		return serrors.New("negative prime iterations", "iterations", c.Keys.Iterations)
	}
	if c.Intermediate.ClientBits != 0 && c.Intermediate.ClientBits < 3 {
		return serrors.New("client key bits must be at least 3", "bits", c.Intermediate.ClientBits)
	}
	if c.Server.SignRate < 0 {
		return serrors.New("negative sign rate", "rate", c.Server.SignRate)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return serrors.New("tls_cert and tls_key must be set together")
	}
	return nil
}
