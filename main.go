package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wfunc/landfluss/config"
	"github.com/wfunc/landfluss/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "landfluss",
		Short:         "A word category party game played over a websocket relay.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./config.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level (env: LANDFLUSS_LOG_LEVEL)")
	cmd.PersistentFlags().Bool("log-dev", false, "human readable logs (env: LANDFLUSS_LOG_DEVELOPMENT)")

	load := func(c *cobra.Command, keys map[string]string) (*config.Config, error) {
		loader := config.NewLoader(".")
		if configFile != "" {
			loader.SetConfigFile(configFile)
		}
		bindings := map[string]string{
			"log-level": "log.level",
			"log-dev":   "log.development",
		}
		for flag, key := range keys {
			bindings[flag] = key
		}
		if err := loader.BindFlags(c.Flags(), bindings); err != nil {
			return nil, err
		}
		cfg, err := loader.Load()
		if err != nil {
			return nil, err
		}
		if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cmd.AddCommand(
		newServeCmd(load),
		newHostCmd(load),
		newJoinCmd(load),
		newHistoryCmd(load),
	)
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("landfluss {{.Version}}\n")
	return cmd
}

// loadFunc reads the configuration with the given flag to key bindings and
// sets up logging.
type loadFunc func(cmd *cobra.Command, keys map[string]string) (*config.Config, error)
