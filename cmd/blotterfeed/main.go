package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/blotterfeed/blotterfeed/internal/app"
	"github.com/blotterfeed/blotterfeed/internal/config"
)

const (
	appName = "blotterfeed"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Real-time market-data fan-out service for fixed-income blotters",
		Version: version,
		Long: `blotterfeed maintains an in-memory catalog of fixed-income instruments,
advances their state with a stochastic market simulator, and streams
field-level deltas to websocket subscribers with per-subscription filters
and pacing.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the simulator and fan-out server",
		RunE:  runServe,
	}
	addServeFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addServeFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "path to YAML config file")
	flags.String("listen", "", "listen address override, host:port")
	flags.String("scenario", "", "market scenario override")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if scenario, _ := cmd.Flags().GetString("scenario"); scenario != "" {
		cfg.Simulator.Scenario = scenario
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if level, err := zerolog.ParseLevel(cfg.Server.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a, err := app.New(cfg, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Info().
		Str("version", version).
		Str("listen", cfg.Server.Listen).
		Str("scenario", cfg.Simulator.Scenario).
		Msg("starting blotterfeed")
	return a.Run(ctx)
}
