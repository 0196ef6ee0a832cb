package main

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/scionproto/scion/pkg/private/serrors"
	"github.com/spf13/cobra"

	"github.com/fancl20/trustchain/pkg/api"
	"github.com/fancl20/trustchain/pkg/authority"
	"github.com/fancl20/trustchain/pkg/sig"
)

type remoteFlags struct {
	h3       bool
	insecure bool
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.h3, "h3", false, "call the nodes over HTTP/3")
	cmd.Flags().BoolVar(&f.insecure, "insecure", false, "accept self-signed node certificates")
}

func (f *remoteFlags) httpClient() *http.Client {
	return api.NewHTTPClient(f.h3, upstreamTLS(f.insecure))
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(append(b, '\n'))
	return err
}

func keygenCommand(flags *globalFlags) *cobra.Command {
	var bits int
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key pair and print its public half",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if bits == 0 {
				bits = cfg.Keys.Bits
			}
			k, err := generator(cfg.Keys).Generate(bits)
			if err != nil {
				return err
			}
			return printJSON(cmd, struct {
				Bits      int           `json:"bits"`
				PublicKey sig.PublicKey `json:"public_key"`
			}{bits, k.PublicKey()})
		},
	}
	cmd.Flags().IntVar(&bits, "bits", 0, "prime bit length, defaults to keys.bits")
	return cmd
}

func bootstrapCommand() *cobra.Command {
	var (
		remote          remoteFlags
		rootURL, icaURL string
	)
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Generate keys and certificates on a running Root and Intermediate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			clt := remote.httpClient()
			root := api.NewRootClient(clt, rootURL)
			ica := api.NewIntermediateClient(clt, icaURL)

			if _, err := root.GenerateKeys(ctx); err != nil {
				return serrors.Wrap("generating root keys", err)
			}
			if _, err := root.IssueRootCertificate(ctx); err != nil {
				return serrors.Wrap("issuing root certificate", err)
			}
			if _, err := ica.GenerateKeys(ctx); err != nil {
				return serrors.Wrap("generating intermediate keys", err)
			}
			if _, err := ica.FetchRootCertificate(ctx); err != nil {
				return serrors.Wrap("fetching root certificate", err)
			}
			if _, err := ica.RequestCertificate(ctx); err != nil {
				return serrors.Wrap("requesting intermediate certificate", err)
			}
			certs, err := ica.Certificates(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, certs)
		},
	}
	remote.register(cmd)
	cmd.Flags().StringVar(&rootURL, "root", "http://127.0.0.1:8000", "Root node URL")
	cmd.Flags().StringVar(&icaURL, "intermediate", "http://127.0.0.1:8001", "Intermediate node URL")
	return cmd
}

func parseOverride(r, s string) (*authority.Override, error) {
	if r == "" && s == "" {
		return nil, nil
	}
	rv, ok := new(big.Int).SetString(r, 10)
	if !ok {
		return nil, serrors.New("invalid override r", "r", r)
	}
	sv, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, serrors.New("invalid override s", "s", s)
	}
	return &authority.Override{R: rv, S: sv}, nil
}

func sendCommand() *cobra.Command {
	var (
		remote               remoteFlags
		clientURL, peer, msg string
		enroll               bool
		overrideR, overrideS string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Have a running client sign a message and deliver it to a peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			override, err := parseOverride(overrideR, overrideS)
			if err != nil {
				return err
			}
			c := api.NewClientClient(remote.httpClient(), clientURL)
			if enroll {
				if _, err := c.FetchCertificates(ctx); err != nil {
					return serrors.Wrap("fetching authority certificates", err)
				}
				if _, err := c.Enroll(ctx); err != nil {
					return serrors.Wrap("enrolling", err)
				}
			}
			res, err := c.SendMessage(ctx, api.SendMessageRequest{Peer: peer, Message: msg, Override: override})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	remote.register(cmd)
	cmd.Flags().StringVar(&clientURL, "client", "http://127.0.0.1:8002", "sending client URL")
	cmd.Flags().StringVar(&peer, "peer", "", "receiving peer name")
	cmd.Flags().StringVar(&msg, "message", "", "message text")
	cmd.Flags().BoolVar(&enroll, "enroll", false, "fetch authority certificates and enroll first")
	cmd.Flags().StringVar(&overrideR, "override-r", "", "replace the signature r value")
	cmd.Flags().StringVar(&overrideS, "override-s", "", "replace the signature s value")
	cmd.MarkFlagRequired("peer")
	cmd.MarkFlagsRequiredTogether("override-r", "override-s")
	return cmd
}
