package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"PricePull/internal/di"
	"PricePull/internal/domain/models"
	"PricePull/pkg/config"
	"PricePull/pkg/server"

	"github.com/spf13/cobra"
)

const (
	defaultRegion  = "전국"
	commandTimeout = 60 * time.Second
)

type rootFlags struct {
	configPath string
	envFile    string
}

func rootCmd() *cobra.Command {
	var f rootFlags
	cmd := &cobra.Command{
		Use:           "pricepull",
		Short:         "pricepull serves KAMIS wholesale meat prices",
		Long:          `pricepull fetches meat prices from the KAMIS feed, keeps a short price cache and serves current prices and weekly trends over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&f.configPath, "config", "config/config.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "dotenv file applied over the config")

	cmd.AddCommand(serveCmd(&f), priceCmd(&f), trendCmd(&f), refreshCmd(&f))
	return cmd
}

func serveCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket stream and refresh consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := build(f)
			if err != nil {
				return err
			}
			defer cleanup()
			return app.Run(cmd.Context())
		},
	}
}

type queryFlags struct {
	part   string
	region string
	grade  string
}

func (q *queryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&q.part, "part", "", "item key or alias, e.g. Pork_Belly")
	cmd.Flags().StringVar(&q.region, "region", defaultRegion, "region name")
	cmd.Flags().StringVar(&q.grade, "grade", "00", "grade code; 00 means every grade")
	_ = cmd.MarkFlagRequired("part")
}

func priceCmd(f *rootFlags) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Print the current price of one part",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(cmd, f, func(ctx context.Context, app *server.App) (any, error) {
				return app.Service().GetCurrentPrice(ctx, q.part, q.region, q.grade)
			})
		},
	}
	q.bind(cmd)
	return cmd
}

func trendCmd(f *rootFlags) *cobra.Command {
	var (
		q     queryFlags
		weeks int
	)
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Print the weekly price trend of one part",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return oneShot(cmd, f, func(ctx context.Context, app *server.App) (any, error) {
				return app.Service().GetWeeklyTrend(ctx, q.part, q.region, q.grade, weeks)
			})
		},
	}
	q.bind(cmd)
	cmd.Flags().IntVar(&weeks, "weeks", 8, "number of weeks, 1 to 52")
	return cmd
}

func refreshCmd(f *rootFlags) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Queue a cache refresh for a running server to pick up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := build(f)
			if err != nil {
				return err
			}
			defer cleanup()
			defer func() { _ = app.Close(context.Background()) }()

			rq := app.RefreshQueue()
			if rq == nil {
				return errors.New("refresh queue is disabled; set queue.enabled and redis.enabled")
			}
			req := models.RefreshRequest{Part: q.part, Region: q.region, Grade: q.grade}
			if err := rq.Enqueue(cmd.Context(), app.Config().Kafka.RefreshTopic, req); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "queued")
			return nil
		},
	}
	q.bind(cmd)
	return cmd
}

// build wires the app. Callers defer cleanup before App.Close so the store
// and producer outlive the consumers draining into them.
func build(f *rootFlags) (*server.App, func(), error) {
	cfg, err := config.LoadWithEnv(f.configPath, f.envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("config load failed: %w", err)
	}
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return app, cleanup, nil
}

// oneShot builds the app without starting any server, runs fn and prints its
// result as JSON.
func oneShot(cmd *cobra.Command, f *rootFlags, fn func(context.Context, *server.App) (any, error)) error {
	app, cleanup, err := build(f)
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() { _ = app.Close(context.Background()) }()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	out, err := fn(ctx, app)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
