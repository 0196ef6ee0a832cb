// trustd runs a Root CA, an Intermediate CA or a client node of the trust
// hierarchy, and drives running nodes from the command line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/scionproto/scion/pkg/log"
	"github.com/spf13/cobra"

	"github.com/fancl20/trustchain/pkg/config"
)

type globalFlags struct {
	config  string
	envFile string
}

func main() {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "trustd",
		Short:         "Root, intermediate and client nodes of a three tier trust hierarchy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.config, "config", "", "TOML config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "file with TRUSTD_* overrides")

	root.AddCommand(
		nodeCommand(&flags, roleRoot, "Serve the Root CA"),
		nodeCommand(&flags, roleIntermediate, "Serve the Intermediate CA"),
		nodeCommand(&flags, roleClient, "Serve a client"),
		keygenCommand(&flags),
		bootstrapCommand(),
		sendCommand(),
	)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up logging.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.config, flags.envFile)
	if err != nil {
		return nil, err
	}
	if err := log.Setup(log.Config{Console: log.ConsoleConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}}); err != nil {
		return nil, err
	}
	return cfg, nil
}
