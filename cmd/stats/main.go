package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"statsScope/internal/config"
	"statsScope/internal/indexer"
)

func main() {
	root := &cobra.Command{
		Use:          "stats",
		Short:        "Lottery, TVL and supply metrics over unreliable RPC",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics over HTTP and WebSocket",
		RunE:  runServe,
	}

	serveCmd.Flags().StringSlice("rpc", nil, "RPC endpoint URLs in priority order (comma-separated)")
	serveCmd.Flags().String("lottery-address", "", "lottery contract address")
	serveCmd.Flags().String("token-address", "", "ERC20 token address")
	serveCmd.Flags().String("price-feed", "", "USD price feed address (8 decimals)")
	serveCmd.Flags().StringSlice("tvl-holders", nil, "vault, staking and swap pool addresses (comma-separated)")
	serveCmd.Flags().StringSlice("supply-excluded", nil, "addresses excluded from circulating supply (comma-separated)")
	serveCmd.Flags().Uint64("start-block", 0, "first block scanned for lottery events, 0 means latest minus lookback-blocks")
	serveCmd.Flags().Uint64("lookback-blocks", 500_000, "blocks scanned when start-block is 0")
	serveCmd.Flags().Duration("lottery-ttl", 10*time.Minute, "lottery stats cache TTL")
	serveCmd.Flags().Duration("tvl-ttl", 30*time.Minute, "TVL chart cache TTL")
	serveCmd.Flags().Duration("supply-ttl", 5*time.Minute, "supply cache TTL")
	serveCmd.Flags().Duration("soft-refresh", 2*time.Minute, "age after which reads trigger a background refresh")
	serveCmd.Flags().Duration("max-jitter", 60*time.Second, "maximum random delay before a background refresh")
	serveCmd.Flags().Duration("lottery-interval", 5*time.Minute, "lottery refresh interval")
	serveCmd.Flags().Duration("tvl-interval", 30*time.Minute, "TVL refresh interval")
	serveCmd.Flags().Duration("supply-interval", 5*time.Minute, "supply refresh interval")
	serveCmd.Flags().Duration("fetch-timeout", 5*time.Minute, "upper bound for one metric computation")
	serveCmd.Flags().Duration("janitor-interval", time.Minute, "cache sweep interval")
	addRangeFlags(serveCmd)
	serveCmd.Flags().String("ticket-price", "0", "ticket price in token units")
	serveCmd.Flags().Int64("burn-rate-bps", 0, "share of ticket sales burned, in basis points")
	serveCmd.Flags().Int("tvl-days", 30, "days in the TVL chart")
	serveCmd.Flags().String("tvl-threshold", "0.01", "TVL points below this USD value are dropped, except the latest")
	serveCmd.Flags().Duration("block-time", 2*time.Second, "average block time used to pick daily sample blocks")
	serveCmd.Flags().String("http-addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("request-timeout", 30*time.Second, "upper bound for one HTTP request")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for snapshots and TVL history")
	serveCmd.Flags().String("redis-addr", "", "Redis address for shared snapshots")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database")
	serveCmd.Flags().String("snapshot-dir", "./data/snapshots", "directory for file snapshots when no database is configured")
	serveCmd.Flags().String("events-out", "", "optional JSONL dump of retrieved lottery events")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP/HTTP trace endpoint")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Run one range query and dump the events",
		RunE:  runQuery,
	}

	queryCmd.Flags().StringSlice("rpc", nil, "RPC endpoint URLs in priority order (comma-separated)")
	queryCmd.Flags().String("lottery-address", "", "lottery contract address")
	queryCmd.Flags().String("event", "TicketsPurchased", "event name (TicketsPurchased, PrizeClaimed)")
	queryCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	queryCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	queryCmd.Flags().String("out", "./data/events.jsonl", "output JSONL path")
	queryCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	addRangeFlags(queryCmd)
	queryCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(queryCmd)

	supplyCmd := &cobra.Command{
		Use:   "supply",
		Short: "Print total and circulating supply",
		RunE:  runSupply,
	}

	supplyCmd.Flags().StringSlice("rpc", nil, "RPC endpoint URLs in priority order (comma-separated)")
	supplyCmd.Flags().String("token-address", "", "ERC20 token address")
	supplyCmd.Flags().StringSlice("supply-excluded", nil, "addresses excluded from circulating supply (comma-separated)")
	supplyCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(supplyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64("max-range-size", 10_000, "largest block span per eth_getLogs call")
	cmd.Flags().Int("max-split-depth", 3, "how many times an oversized range may be re-split")
	cmd.Flags().Uint64("min-splittable-size", 20, "smallest span that may still be split")
	cmd.Flags().Int("num-chunks", 8, "sub-ranges per split")
	cmd.Flags().Duration("inter-batch-delay", 1500*time.Millisecond, "pause between successful batches")
	cmd.Flags().Int("max-retries", 5, "retries per range on rate limits and transient errors")
}

func rangePolicy(cfg config.RangeConfig) indexer.Policy {
	policy := indexer.DefaultPolicy()
	policy.MaxRangeSize = cfg.MaxRangeSize
	policy.MaxSplitDepth = cfg.MaxSplitDepth
	policy.MinSplittableSize = cfg.MinSplittableSize
	policy.NumChunks = cfg.NumChunks
	policy.InterBatchDelay = cfg.InterBatchDelay
	policy.MaxRetries = cfg.MaxRetries
	return policy
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
