package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return p
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Default()
	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	p := writeFile(t, "trustd.toml", `
[log]
level = "debug"
format = "json"

[server]
listen = "0.0.0.0:9000"
sign_rate = 2.5

[store]
backend = "bbolt"
path = "/var/lib/trustd/ica.db"

[keys]
bits = 32

[intermediate]
root_url = "http://root:8000"
root_cache_ttl = "30s"

[client.peers]
bob = "http://bob:8002"
`)
	cfg, err := Load(p, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Default()
	want.Log = LogConfig{Level: "debug", Format: "json"}
	want.Server.Listen = "0.0.0.0:9000"
	want.Server.SignRate = 2.5
	want.Store = StoreConfig{Backend: BackendBbolt, Path: "/var/lib/trustd/ica.db"}
	want.Keys.Bits = 32
	want.Intermediate.RootURL = "http://root:8000"
	want.Intermediate.RootCacheTTL = Duration(30 * time.Second)
	want.Client.Peers = map[string]string{"bob": "http://bob:8002"}
	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	p := writeFile(t, "trustd.toml", "[server]\nlisten_addr = \"x\"\n")
	if _, err := Load(p, ""); err == nil {
		t.Fatal("Load accepted an unknown key")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TRUSTD_LISTEN":         "127.0.0.1:9100",
		"TRUSTD_KEY_BITS":       "48",
		"TRUSTD_ROOT_CACHE_TTL": "1m",
		"TRUSTD_PEERS":          "bob=http://bob:1, carol=http://carol:2",
		"TRUSTD_CLIENT_NAME":    "alice",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9100" || cfg.Keys.Bits != 48 || cfg.Client.Name != "alice" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if time.Duration(cfg.Intermediate.RootCacheTTL) != time.Minute {
		t.Errorf("RootCacheTTL = %v", time.Duration(cfg.Intermediate.RootCacheTTL))
	}
	if diff := cmp.Diff([]string{"bob", "carol"}, cfg.Client.PeerNames()); diff != "" {
		t.Errorf("peers mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnvNamesBadVariable(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "TRUSTD_SIGN_BURST" {
			return "many", true
		}
		return "", false
	})
	if err == nil || !strings.Contains(err.Error(), "TRUSTD_SIGN_BURST") {
		t.Fatalf("ApplyEnv = %v, want error naming the variable", err)
	}
}

func TestEnvFile(t *testing.T) {
	p := writeFile(t, ".env", "TRUSTD_INTERMEDIATE_SUBJECT=Intermediate CA7\nTRUSTD_STORE_BACKEND=memory\n")
	cfg, err := Load("", p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Intermediate.Subject != "Intermediate CA7" {
		t.Errorf("Subject = %q", cfg.Intermediate.Subject)
	}

	t.Setenv("TRUSTD_INTERMEDIATE_SUBJECT", "Intermediate CA8")
	cfg, err = Load("", p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Intermediate.Subject != "Intermediate CA8" {
		t.Errorf("process environment did not take precedence: %q", cfg.Intermediate.Subject)
	}

	if _, err := Load("", filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"bbolt without path": func(c *Config) { c.Store.Backend = BackendBbolt },
		"unknown backend":    func(c *Config) { c.Store.Backend = "redis" },
		"tiny keys":          func(c *Config) { c.Keys.Bits = 2 },
		"tiny client keys":   func(c *Config) { c.Intermediate.ClientBits = 1 },
		"log format":         func(c *Config) { c.Log.Format = "xml" },
		"half tls":           func(c *Config) { c.Server.TLSCert = "cert.pem" },
		"negative rate":      func(c *Config) { c.Server.SignRate = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted the config")
			}
		})
	}
}

func TestParsePeers(t *testing.T) {
	if _, err := ParsePeers("bob"); err == nil {
		t.Error("ParsePeers accepted an entry without url")
	}
	got, err := ParsePeers("")
	if err != nil || len(got) != 0 {
		t.Errorf("ParsePeers(\"\") = %v, %v", got, err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Client.Peers = map[string]string{"bob": "http://bob:1"}
	b, err := Encode(&cfg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var back Config
	if err := Decode(b, &back); err != nil {
		t.Fatalf("Decode failed: %v\n%s", err, b)
	}
	if diff := cmp.Diff(cfg, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
