package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fancl20/trustchain/pkg/store"
)

var (
	// DefaultTimeout is the default timeout for running the test harness.
	DefaultTimeout = 5 * time.Second
)

// Config holds the configuration for the store testing harness.
type Config struct {
	Timeout time.Duration
}

// InitDefaults initializes the default values for the config.
func (cfg *Config) InitDefaults() {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
}

// TestableStore extends the store interface with methods that are needed for testing.
type TestableStore interface {
	store.Store
	// Prepare should reset the internal state so that the store is empty and is ready to be tested.
	Prepare(*testing.T, context.Context)
}

// Run should be used to test any implementation of the store.Store interface.
// An implementation should at least have one test method that calls this
// test-suite.
func Run(t *testing.T, s TestableStore, cfg Config) {
	cfg.InitDefaults()
	tests := map[string]func(*testing.T, store.Store, Config){
		"test save load": testSaveLoad,
		"test overwrite": testOverwrite,
		"test not found": testNotFound,
		"test list":      testList,
		"test json":      testJSON,
	}
	for name, test := range tests {
		t.Run("Store: "+name, func(t *testing.T) {
			ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
			defer cancelF()
			s.Prepare(t, ctx)
			test(t, s, cfg)
			s.Close()
		})
	}
}

func testSaveLoad(t *testing.T, s store.Store, cfg Config) {
	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	blob := []byte(`{"subject":"Root CA"}`)
	if err := s.Save(ctx, store.RoleRoot, blob); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// The store must not alias the caller's buffer.
	blob[0] = 'X'

	got, err := s.Load(ctx, store.RoleRoot)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(`{"subject":"Root CA"}`, string(got)); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}

	got[1] = 'Y'
	again, err := s.Load(ctx, store.RoleRoot)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(again) != `{"subject":"Root CA"}` {
		t.Errorf("Load returned an aliased buffer: %s", again)
	}
}

func testOverwrite(t *testing.T, s store.Store, cfg Config) {
	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	for _, v := range []string{"first", "second"} {
		if err := s.Save(ctx, store.RoleIntermediate, []byte(v)); err != nil {
			t.Fatalf("Save(%s) failed: %v", v, err)
		}
	}
	got, err := s.Load(ctx, store.RoleIntermediate)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Load = %q, want %q", got, "second")
	}
}

func testNotFound(t *testing.T, s store.Store, cfg Config) {
	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	_, err := s.Load(ctx, store.RoleClient)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load on empty store = %v, want ErrNotFound", err)
	}
	if err := s.Save(ctx, "", []byte("x")); err == nil {
		t.Error("Save with empty role should fail")
	}
}

func testList(t *testing.T, s store.Store, cfg Config) {
	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	roles := []store.Role{
		store.SignedRole("Intermediate CA2"),
		store.RoleRoot,
		store.SignedRole("Intermediate CA1"),
		store.RoleClient,
	}
	for _, r := range roles {
		if err := s.Save(ctx, r, []byte(r)); err != nil {
			t.Fatalf("Save(%s) failed: %v", r, err)
		}
	}
	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []store.Role{"client", "ica/Intermediate CA1", "ica/Intermediate CA2", "root"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	var subjects []string
	for _, r := range got {
		if subj, ok := r.SignedSubject(); ok {
			subjects = append(subjects, subj)
		}
	}
	if diff := cmp.Diff([]string{"Intermediate CA1", "Intermediate CA2"}, subjects); diff != "" {
		t.Errorf("signed subjects mismatch (-want +got):\n%s", diff)
	}
}

func testJSON(t *testing.T, s store.Store, cfg Config) {
	ctx, cancelF := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancelF()

	type record struct {
		Subject   string `json:"subject"`
		Timestamp int64  `json:"timestamp"`
	}
	in := record{Subject: "alice", Timestamp: 1700000000}
	if err := store.SaveJSON(ctx, s, store.RoleClient, in); err != nil {
		t.Fatalf("SaveJSON failed: %v", err)
	}
	var out record
	if err := store.LoadJSON(ctx, s, store.RoleClient, &out); err != nil {
		t.Fatalf("LoadJSON failed: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("LoadJSON mismatch (-want +got):\n%s", diff)
	}
	if err := store.LoadJSON(ctx, s, store.RoleRoot, &out); !store.IsNotFound(err) {
		t.Errorf("LoadJSON on missing role = %v, want ErrNotFound", err)
	}
}
