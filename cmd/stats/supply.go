package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"statsScope/internal/chain"
	"statsScope/internal/config"
	"statsScope/internal/indexer"
	"statsScope/internal/service"
)

func runSupply(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSupply(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	token, err := indexer.ParseAddress("token-address", cfg.TokenAddress)
	if err != nil {
		return err
	}
	excluded, err := indexer.ParseAddresses(cfg.SupplyExcluded)
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

	f := &service.SupplyFetcher{Chain: chainClient, Token: token, Excluded: excluded}
	stats, err := f.Fetch(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "total\t%s\n", stats.Total.String())
	fmt.Fprintf(out, "circulating\t%s\n", stats.Circulating.String())
	return nil
}
