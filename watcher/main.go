package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/solwatch/tradewatch/shared/cache"
	"github.com/solwatch/tradewatch/shared/config"
	"github.com/solwatch/tradewatch/shared/templates"
	"github.com/solwatch/tradewatch/watcher/analytics"
	"github.com/solwatch/tradewatch/watcher/backend"
	"github.com/solwatch/tradewatch/watcher/history"
	"github.com/solwatch/tradewatch/watcher/quotes"
	"github.com/solwatch/tradewatch/watcher/reconcile"
	"github.com/solwatch/tradewatch/watcher/stream"
)

func main() {
	_ = godotenv.Load()
	cfg := config.ParseWatcherFlags()

	logger := newLogger()
	logger.Info("🚀 Starting Trade Watcher...")
	logger.Infof("📊 Config: backend=%s maxTrades=%d cacheDir=%s", cfg.BackendURL, cfg.MaxTrades, cfg.CacheDir)

	store, err := cache.New(cfg.CacheDir, logger)
	if err != nil {
		logger.Fatalf("❌ Failed to open local cache: %v", err)
	}

	client := backend.NewClient(cfg.BackendURL, cfg.AuthToken, logger)
	rec := reconcile.New(cfg.MaxTrades, store, logger)
	realClock := clock.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wallet configs are display context only; a failure here never blocks.
	if configs, err := client.WalletConfigurations(ctx); err != nil {
		logger.Warnf("⚠️ Failed to load wallet configurations: %v", err)
	} else {
		logger.Infof("✅ Loaded %d wallet configurations", len(configs))
	}

	presets := templates.NewStore(store, logger)
	logger.Infof("📋 Loaded %d wallet templates", len(presets.List()))

	// Seed the collection once; the live stream only updates from here on.
	loader := history.NewLoader(client, store, rec, cfg.MaxTrades, logger)
	source := loader.Load(ctx)
	logger.Infof("✅ Trade history seeded (source=%s, %d trades)", source, rec.Len())

	engine := analytics.NewEngine(logger)
	subID, snapshots := rec.Subscribe()
	defer rec.Unsubscribe(subID)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx, snapshots)
	}()

	connector := stream.NewConnector(client.StreamURL(), client.Token(), rec, realClock, logger)
	connector.Start(ctx)

	quoteClient := &http.Client{Timeout: cfg.QuoteTimeout}
	aggregator := quotes.NewAggregator(
		[]quotes.Source{
			quotes.NewCoinGeckoSource(quoteClient),
			quotes.NewCoinbaseSource(quoteClient),
			quotes.NewBinanceSource(quoteClient),
		},
		cfg.QuoteTTL, cfg.QuoteTimeout, realClock, logger,
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		pollQuotes(ctx, aggregator, cfg.QuoteInterval, logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logStatus(ctx, rec, engine, connector, aggregator, cfg.StatusEvery, logger)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("🛑 Shutdown signal received, stopping...")

	connector.Close()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("✅ All workers stopped")
	case <-time.After(5 * time.Second):
		logger.Warn("⚠️ Shutdown timeout reached, forcing exit")
	}

	logger.Info("👋 Trade Watcher stopped")
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// pollQuotes keeps the SOL price warm on a fixed interval.
func pollQuotes(ctx context.Context, agg *quotes.Aggregator, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := agg.Quote(ctx, true); err != nil {
		logger.Warnf("⚠️ Initial quote fetch failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := agg.Quote(ctx, false); err != nil {
				logger.Warnf("⚠️ Quote refresh failed: %v", err)
			}
		}
	}
}

// logStatus emits a periodic one-line view of the system.
func logStatus(ctx context.Context, rec *reconcile.Reconciler, engine *analytics.Engine, conn *stream.Connector, agg *quotes.Aggregator, every time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := engine.Stats()
			quote := agg.Cached()
			logger.Infof("📈 Status: %d trades (source=%s, stream=%s) | success=%.1f%% profit=$%.2f holdings=%d | SOL=$%.2f via %s",
				rec.Len(), rec.Source(), conn.State(), stats.OverallSuccessRate, stats.TotalProfit, stats.CurrentHoldings, quote.Price, quote.Source)
		}
	}
}
