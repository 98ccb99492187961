package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"statsScope/internal/chain"
	"statsScope/internal/config"
	"statsScope/internal/contracts"
	"statsScope/internal/indexer"
	"statsScope/internal/storage"
)

func runQuery(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuery(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	lottery, err := indexer.ParseAddress("lottery-address", cfg.LotteryAddress)
	if err != nil {
		return err
	}
	filter, err := contracts.LotteryFilter(lottery, cfg.Event)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURLs, logger)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	to := cfg.ToBlock
	if to == 0 {
		latest, err := chainClient.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
		to = latest
	}
	r := indexer.BlockRange{From: cfg.FromBlock, To: to}
	if err := r.Validate(); err != nil {
		return err
	}

	logger.Info("query start",
		zap.Int("endpoints", len(cfg.RPCURLs)),
		zap.String("event", filter.Name),
		zap.Uint64("from", r.From),
		zap.Uint64("to", r.To),
		zap.String("out", cfg.Out),
	)

	engine := indexer.NewEngine(chainClient, logger)
	res := engine.Query(ctx, filter, r, rangePolicy(cfg.Range))

	sink := storage.NewJsonlStorage(cfg.Out, cfg.Errors)
	if err := sink.PutEvents(res.Events); err != nil {
		return fmt.Errorf("write events: %w", err)
	}

	logger.Info("query done",
		zap.Int("calls", res.Calls),
		zap.Int("events", len(res.Events)),
		zap.Bool("partial", res.Partial),
		zap.Int("abandoned", len(res.Abandoned)),
	)
	for _, ab := range res.Abandoned {
		logger.Warn("range abandoned", zap.Stringer("range", ab))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
