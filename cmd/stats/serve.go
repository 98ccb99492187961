package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"statsScope/internal/aggregate"
	"statsScope/internal/broadcast"
	"statsScope/internal/cache"
	"statsScope/internal/chain"
	"statsScope/internal/config"
	"statsScope/internal/contracts"
	"statsScope/internal/indexer"
	"statsScope/internal/model"
	"statsScope/internal/server"
	"statsScope/internal/service"
	"statsScope/internal/storage"
	"statsScope/internal/storage/postgres"
	"statsScope/internal/storage/redis"
	"statsScope/internal/telemetry"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, "stats", cfg.OTelEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURLs, logger)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	snapshots, history, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	store := cache.New(cache.WithLogger(logger))
	deps := service.Deps{
		Cache:       store,
		Broadcaster: broadcast.New(logger),
		Snapshots:   snapshots,
		Logger:      logger,
	}

	decimals := contracts.NewDecimalsCache()
	lotteryFetch, err := buildLotteryFetcher(ctx, cfg, chainClient, decimals, logger)
	if err != nil {
		return err
	}
	tvlFetch, supplyFetch, err := buildTokenFetchers(cfg, chainClient, decimals, history, logger)
	if err != nil {
		return err
	}

	svc := service.New(service.Config{
		Lottery:         metricConfig(cfg, cfg.LotteryTTL, cfg.LotteryInterval),
		TVL:             metricConfig(cfg, cfg.TVLTTL, cfg.TVLInterval),
		Supply:          metricConfig(cfg, cfg.SupplyTTL, cfg.SupplyInterval),
		JanitorInterval: cfg.JanitorInterval,
	}, deps, lotteryFetch, tvlFetch, supplyFetch)

	logger.Info("stats start",
		zap.Int("endpoints", len(cfg.RPCURLs)),
		zap.String("lottery", cfg.LotteryAddress),
		zap.String("token", cfg.TokenAddress),
		zap.Uint64("start_block", cfg.StartBlock),
		zap.Uint64("lookback_blocks", cfg.LookbackBlocks),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	go svc.Run(ctx)

	srv := server.New(svc, logger, cfg.RequestTimeout)
	return srv.ListenAndServe(ctx, cfg.HTTPAddr)
}

func metricConfig(cfg config.Config, ttl, interval time.Duration) service.MetricConfig {
	return service.MetricConfig{
		TTL:             ttl,
		SoftRefresh:     cfg.SoftRefresh,
		MaxJitter:       cfg.MaxJitter,
		RefreshInterval: interval,
		FetchTimeout:    cfg.FetchTimeout,
	}
}

func buildLotteryFetcher(ctx context.Context, cfg config.Config, client *chain.Client, decimals *contracts.DecimalsCache, logger *zap.Logger) (service.FetchFunc[model.LotteryStats], error) {
	if cfg.LotteryAddress == "" {
		return nil, nil
	}
	lottery, err := indexer.ParseAddress("lottery-address", cfg.LotteryAddress)
	if err != nil {
		return nil, err
	}
	purchases, err := contracts.TicketsPurchasedFilter(lottery)
	if err != nil {
		return nil, err
	}
	prizes, err := contracts.PrizeClaimedFilter(lottery)
	if err != nil {
		return nil, err
	}

	var tokenDecimals uint8 = 18
	if cfg.TokenAddress != "" {
		token, err := indexer.ParseAddress("token-address", cfg.TokenAddress)
		if err != nil {
			return nil, err
		}
		loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		d, err := decimals.Load(loadCtx, client, token)
		cancel()
		if err != nil {
			logger.Warn("token decimals unavailable, assuming 18", zap.Error(err))
		} else {
			tokenDecimals = d
		}
	}

	var sink storage.EventSink
	if cfg.EventsOut != "" {
		sink = storage.NewJsonlStorage(cfg.EventsOut, filepath.Join(filepath.Dir(cfg.EventsOut), "decode_errors.jsonl"))
	}

	f := &service.LotteryFetcher{
		Chain:          client,
		Engine:         indexer.NewEngine(client, logger),
		Filters:        []chain.EventFilter{purchases, prizes},
		StartBlock:     cfg.StartBlock,
		LookbackBlocks: cfg.LookbackBlocks,
		Policy:         rangePolicy(cfg.Range),
		Params: aggregate.LotteryParams{
			TokenDecimals: tokenDecimals,
			TicketPrice:   cfg.TicketPrice,
			BurnRateBps:   cfg.BurnRateBps,
		},
		Sink:   sink,
		Logger: logger,
	}
	return f.Fetch, nil
}

func buildTokenFetchers(cfg config.Config, client *chain.Client, decimals *contracts.DecimalsCache, history storage.TVLHistory, logger *zap.Logger) (service.FetchFunc[model.TVLStats], service.FetchFunc[model.SupplyStats], error) {
	if cfg.TokenAddress == "" {
		return nil, nil, nil
	}
	token, err := indexer.ParseAddress("token-address", cfg.TokenAddress)
	if err != nil {
		return nil, nil, err
	}
	excluded, err := indexer.ParseAddresses(cfg.SupplyExcluded)
	if err != nil {
		return nil, nil, err
	}
	supply := &service.SupplyFetcher{
		Chain:    client,
		Token:    token,
		Excluded: excluded,
		Decimals: decimals,
	}

	var tvlFetch service.FetchFunc[model.TVLStats]
	if cfg.PriceFeed != "" && len(cfg.TVLHolders) > 0 {
		feed, err := indexer.ParseAddress("price-feed", cfg.PriceFeed)
		if err != nil {
			return nil, nil, err
		}
		holders, err := indexer.ParseAddresses(cfg.TVLHolders)
		if err != nil {
			return nil, nil, err
		}
		tvl := &service.TVLFetcher{
			Chain:     client,
			Token:     token,
			Holders:   holders,
			PriceFeed: feed,
			Days:      cfg.TVLDays,
			BlockTime: cfg.BlockTime,
			Threshold: cfg.TVLThreshold,
			Decimals:  decimals,
			History:   history,
			Logger:    logger,
		}
		tvlFetch = tvl.Fetch
	} else {
		logger.Info("tvl metric disabled", zap.Bool("price_feed", cfg.PriceFeed != ""), zap.Int("holders", len(cfg.TVLHolders)))
	}

	return tvlFetch, supply.Fetch, nil
}

// openStores picks the snapshot backend: postgres, then redis, then files.
// TVL history is only kept in postgres.
func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.SnapshotStore, storage.TVLHistory, func(), error) {
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, nil, err
		}
		logger.Info("snapshots in postgres")
		return pg, pg, pg.Close, nil
	}
	if cfg.RedisAddr != "" {
		rs, err := redis.NewStore(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("snapshots in redis", zap.String("addr", cfg.RedisAddr))
		return rs, nil, func() { _ = rs.Close() }, nil
	}
	if cfg.SnapshotDir != "" {
		logger.Info("snapshots in files", zap.String("dir", cfg.SnapshotDir))
		return storage.NewFileStore(cfg.SnapshotDir), nil, func() {}, nil
	}
	return storage.NopStore{}, nil, func() {}, nil
}
