package service

import (
	"context"
	"sync"
	"time"

	"statsScope/internal/model"
)

// Metric keys and push message types.
const (
	KeyLottery = "lottery:stats"
	KeyTVL     = "tvl:chart"
	KeySupply  = "supply"

	TopicStats  = "stats"
	TopicTVL    = "tvl"
	TopicSupply = "supply"
)

// Service owns the public metrics.
type Service struct {
	Lottery *Metric[model.LotteryStats]
	TVL     *Metric[model.TVLStats]
	Supply  *Metric[model.SupplyStats]

	deps            Deps
	janitorInterval time.Duration
}

// Config carries the per-metric policies.
type Config struct {
	Lottery         MetricConfig
	TVL             MetricConfig
	Supply          MetricConfig
	JanitorInterval time.Duration
}

// New wires the metrics. A nil fetcher leaves that metric disabled.
func New(cfg Config, deps Deps, lottery FetchFunc[model.LotteryStats], tvl FetchFunc[model.TVLStats], supply FetchFunc[model.SupplyStats]) *Service {
	deps = deps.normalized()
	s := &Service{deps: deps, janitorInterval: cfg.JanitorInterval}

	if lottery != nil {
		s.Lottery = NewMetric(withDefaults(cfg.Lottery, KeyLottery, TopicStats), lottery, deps)
	}
	if tvl != nil {
		s.TVL = NewMetric(withDefaults(cfg.TVL, KeyTVL, TopicTVL), tvl, deps)
	}
	if supply != nil {
		s.Supply = NewMetric(withDefaults(cfg.Supply, KeySupply, TopicSupply), supply, deps)
	}
	return s
}

func withDefaults(cfg MetricConfig, key, topic string) MetricConfig {
	if cfg.Key == "" {
		cfg.Key = key
	}
	if cfg.Topic == "" {
		cfg.Topic = topic
	}
	return cfg
}

// Deps returns the shared collaborators.
func (s *Service) Deps() Deps { return s.deps }

// Run refreshes every enabled metric on its own schedule, one worker per
// metric, until ctx is done.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	start := func(run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}

	if s.Lottery != nil {
		start(s.Lottery.Run)
	}
	if s.TVL != nil {
		start(s.TVL.Run)
	}
	if s.Supply != nil {
		start(s.Supply.Run)
	}
	if s.janitorInterval > 0 {
		start(func(ctx context.Context) { s.deps.Cache.RunJanitor(ctx, s.janitorInterval) })
	}
	wg.Wait()
}
