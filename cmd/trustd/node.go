package main

import (
	"context"
	"crypto/tls"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glowlabs-org/threadgroup"
	"github.com/scionproto/scion/pkg/log"
	"github.com/scionproto/scion/pkg/private/serrors"
	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/fancl20/trustchain/pkg/api"
	"github.com/fancl20/trustchain/pkg/authority"
	"github.com/fancl20/trustchain/pkg/config"
	"github.com/fancl20/trustchain/pkg/keygen"
	"github.com/fancl20/trustchain/pkg/store"
	storebbolt "github.com/fancl20/trustchain/pkg/store/impl/bbolt"
	"github.com/fancl20/trustchain/pkg/store/impl/memory"
)

const (
	roleRoot         = "root"
	roleIntermediate = "intermediate"
	roleClient       = "client"
)

func nodeCommand(flags *globalFlags, role, short string) *cobra.Command {
	return &cobra.Command{
		Use:   role,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defer log.Flush()
			defer log.HandlePanic()
			return runNode(cmd.Context(), role, cfg)
		},
	}
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendBbolt:
		return storebbolt.New(cfg.Path, &bbolt.Options{Timeout: time.Second})
	default:
		return memory.New(), nil
	}
}

func generator(cfg config.KeysConfig) *keygen.Generator {
	return &keygen.Generator{Source: keygen.NewSource(), Iterations: cfg.Iterations}
}

func upstreamTLS(insecure bool) *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS13, InsecureSkipVerify: insecure}
}

// newServer builds the server of role with its services mounted.
func newServer(ctx context.Context, role string, cfg *config.Config, st store.Store) (*api.Server, error) {
	srvCfg := api.ServerConfig{
		Role:      role,
		Addr:      cfg.Server.Listen,
		H3Addr:    cfg.Server.H3Listen,
		SignRate:  cfg.Server.SignRate,
		SignBurst: cfg.Server.SignBurst,
	}
	if cfg.Server.TLS() {
		tlsConfig, err := api.ServerTLSConfig(cfg.Server.TLSCert, cfg.Server.TLSKey, "trustd-"+role)
		if err != nil {
			return nil, err
		}
		srvCfg.TLSConfig = tlsConfig
	}
	srv, err := api.NewServer(srvCfg)
	if err != nil {
		return nil, err
	}

	upstream := api.NewHTTPClient(cfg.Server.UpstreamH3, upstreamTLS(cfg.Server.UpstreamInsecure))
	state := authority.NewState(generator(cfg.Keys), cfg.Keys.Bits)
	switch role {
	case roleRoot:
		r := authority.NewRoot(state, st, nil)
		if cfg.Root.IssueOnStart {
			if _, err := r.GenerateKeys(ctx); err != nil {
				return nil, err
			}
			if _, err := r.IssueRootCertificate(ctx); err != nil {
				return nil, err
			}
		}
		srv.MountRoot(r)
	case roleIntermediate:
		clientBits := cfg.Intermediate.ClientBits
		if clientBits == 0 {
			clientBits = cfg.Keys.Bits
		}
		srv.MountIntermediate(authority.NewIntermediate(authority.IntermediateConfig{
			Subject:      cfg.Intermediate.Subject,
			State:        state,
			Store:        st,
			Root:         api.NewRootClient(upstream, cfg.Intermediate.RootURL),
			ClientKeys:   generator(cfg.Keys),
			ClientBits:   clientBits,
			RootCacheTTL: time.Duration(cfg.Intermediate.RootCacheTTL),
		}))
	case roleClient:
		dir := authority.NewDirectory(cfg.Client.Name)
		for _, name := range cfg.Client.PeerNames() {
			if err := dir.Add(name, cfg.Client.Peers[name]); err != nil {
				return nil, err
			}
		}
		srv.MountClient(authority.NewClient(authority.ClientConfig{
			Name:         cfg.Client.Name,
			Store:        st,
			Intermediate: api.NewIntermediateClient(upstream, cfg.Client.IntermediateURL),
			Transport:    &api.PeerTransport{HTTPClient: upstream},
			Directory:    dir,
		}))
	default:
		return nil, serrors.New("unknown role", "role", role)
	}
	return srv, nil
}

// runNode serves role until ctx is done, a signal arrives or a listener
// fails.
func runNode(ctx context.Context, role string, cfg *config.Config) error {
	st, err := openStore(cfg.Store)
	if err != nil {
		return serrors.Wrap("opening store", err, "backend", cfg.Store.Backend)
	}
	srv, err := newServer(ctx, role, cfg, st)
	if err != nil {
		return errors.Join(err, st.Close())
	}

	var tg threadgroup.ThreadGroup
	tg.AfterStop(func() error { return st.Close() })
	tg.OnStop(func() error { return srv.Close() })

	errc := make(chan error, 2)
	for name, serve := range map[string]func() error{
		"tcp":   srv.ListenAndServe,
		"http3": srv.ListenAndServeH3,
	} {
		if err := tg.Launch(func() {
			if err := serve(); err != nil {
				errc <- serrors.Wrap("listener failed", err, "listener", name)
			}
		}); err != nil {
			return errors.Join(err, tg.Stop())
		}
	}
	log.Info("Serving", "role", role, "listen", cfg.Server.Listen, "h3_listen", cfg.Server.H3Listen,
		"store", cfg.Store.Backend)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down", "role", role)
	case runErr = <-errc:
	}
	return errors.Join(runErr, tg.Stop())
}
