// Package main provides the flightops command: the flight operations engine for estimating
// flight parameters, planning flights and keeping monthly aircraft logbooks.
//
// Usage:
//
//	flightops serve [--port N] [--seed]
//	flightops seed
//	flightops estimate DEP ARR REGISTRATION [--speed KTS]
//	flightops daynight DEP ARR --from HH:MM --to HH:MM
//	flightops version
//
// Every flag defaults to the environment (a .env file is read when present); the storage
// backend is chosen with --store or FLIGHTOPS_STORE (memory, sqlite or postgres).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flightops/internal/app"
)

func main() {
	config := app.LoadConfig()

	rootCmd := &cobra.Command{
		Use:   "flightops",
		Short: "Flight operations engine",
		Long: `Flight operations engine for a small charter operator.

Estimates distance, time and fuel between aerodromes, manages flight plans,
splits flight time into day and night portions and keeps the monthly
per-aircraft logbooks that drive airframe hours and crew reports.

Example usage:
  flightops serve --store sqlite --seed
  flightops estimate MMMX MMUN XA-CHR --speed 250`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&config.Verbose, "verbose", "v", config.Verbose, "Verbose logging")
	rootCmd.PersistentFlags().StringVar(&config.LogFormat, "log-format", config.LogFormat, "Log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&config.Storage.Backend, "store", config.Storage.Backend, "Storage backend (memory, sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&config.Storage.SQLitePath, "sqlite-path", config.Storage.SQLitePath, "SQLite database file")

	rootCmd.AddCommand(
		serveCommand(&config),
		seedCommand(&config),
		estimateCommand(&config),
		dayNightCommand(&config),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				app.ShowVersion(cmd.OutOrStdout())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// open builds the application for a command; the caller closes it.
func open(ctx context.Context, config *app.Config) (*app.Application, error) {
	logger := app.NewLogger(config.Verbose, config.LogFormat)
	return app.NewApplication(ctx, *config, logger)
}

func serveCommand(config *app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := open(ctx, config)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Serve(ctx)
		},
	}
	cmd.Flags().IntVarP(&config.Port, "port", "p", config.Port, "HTTP port")
	cmd.Flags().BoolVar(&config.SeedOnStart, "seed", config.SeedOnStart, "Seed reference data before serving")
	return cmd
}

func seedCommand(config *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the default aerodromes and fleet into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			config.SeedOnStart = false

			application, err := open(ctx, config)
			if err != nil {
				return err
			}
			defer application.Close()

			res, err := application.Seed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d aerodromes and %d aircraft\n", res.Aerodromes, res.Aircraft)
			return nil
		},
	}
}

func estimateCommand(config *app.Config) *cobra.Command {
	var speed float64
	cmd := &cobra.Command{
		Use:   "estimate DEPARTURE ARRIVAL REGISTRATION",
		Short: "Estimate distance, time and fuel for a leg",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := open(ctx, config)
			if err != nil {
				return err
			}
			defer application.Close()

			params, err := application.Estimator.Estimate(ctx, args[0], args[1], args[2], speed)
			if err != nil {
				return err
			}
			return printJSON(cmd, params)
		},
	}
	cmd.Flags().Float64Var(&speed, "speed", 250, "Cruise speed in knots")
	return cmd
}

func dayNightCommand(config *app.Config) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "daynight DEPARTURE ARRIVAL",
		Short: "Split a flight into day and night time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := open(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer application.Close()

			return printJSON(cmd, application.Splitter.Split(from, to, args[0], args[1]))
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Departure clock time (HH:MM)")
	cmd.Flags().StringVar(&to, "to", "", "Arrival clock time (HH:MM)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
