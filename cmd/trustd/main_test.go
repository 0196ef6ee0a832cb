package main

import (
	"context"
	"errors"
	"testing"

	"github.com/fancl20/trustchain/pkg/authority"
	"github.com/fancl20/trustchain/pkg/config"
	"github.com/fancl20/trustchain/pkg/store"
)

func TestParseOverride(t *testing.T) {
	o, err := parseOverride("", "")
	if err != nil || o != nil {
		t.Fatalf("parseOverride(empty) = %v, %v", o, err)
	}
	o, err = parseOverride("5", "9")
	if err != nil {
		t.Fatalf("parseOverride failed: %v", err)
	}
	if o.R.Int64() != 5 || o.S.Int64() != 9 {
		t.Errorf("override = %v/%v", o.R, o.S)
	}
	if _, err := parseOverride("x", "9"); err == nil {
		t.Error("parseOverride accepted a non-integer")
	}
}

func TestNewServerPerRole(t *testing.T) {
	cfg := config.Default()
	cfg.Keys.Bits = 32
	cfg.Root.IssueOnStart = true
	for _, role := range []string{roleRoot, roleIntermediate, roleClient} {
		t.Run(role, func(t *testing.T) {
			st, err := openStore(cfg.Store)
			if err != nil {
				t.Fatalf("openStore failed: %v", err)
			}
			defer st.Close()
			if _, err := newServer(context.Background(), role, &cfg, st); err != nil {
				t.Fatalf("newServer failed: %v", err)
			}
		})
	}
	st, _ := openStore(cfg.Store)
	if _, err := newServer(context.Background(), "gateway", &cfg, st); err == nil {
		t.Error("newServer accepted an unknown role")
	}
}

func TestClientRejectsOwnNameAsPeer(t *testing.T) {
	cfg := config.Default()
	cfg.Client.Peers = map[string]string{cfg.Client.Name: "http://127.0.0.1:8002"}
	st, err := openStore(cfg.Store)
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer st.Close()
	if _, err := newServer(context.Background(), roleClient, &cfg, st); !errors.Is(err, authority.ErrInvalidPeer) {
		t.Errorf("newServer = %v, want ErrInvalidPeer", err)
	}
}

func TestIssueOnStartStoresRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Keys.Bits = 32
	cfg.Root.IssueOnStart = true
	st, err := openStore(cfg.Store)
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	if _, err := newServer(context.Background(), roleRoot, &cfg, st); err != nil {
		t.Fatalf("newServer failed: %v", err)
	}
	if _, err := st.Load(context.Background(), store.RoleRoot); err != nil {
		t.Errorf("root certificate not stored: %v", err)
	}
}
