package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tradecanvas/paperbroker/internal/broker"
	"github.com/tradecanvas/paperbroker/internal/feed"
	"github.com/tradecanvas/paperbroker/internal/logger"
	"github.com/tradecanvas/paperbroker/internal/persistence"
	"github.com/tradecanvas/paperbroker/internal/types"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func newStore(cfg StoreConfig, logInstance *logger.Logger) (persistence.Store, error) {
	if cfg.Type == "memory" {
		return persistence.NewMemoryStore(), nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	return persistence.NewDuckDBStore(cfg.Path, logInstance)
}

func newFeed(cfg FeedConfig, logInstance *logger.Logger) (feed.Feed, error) {
	switch cfg.Type {
	case "binance":
		return feed.NewBinanceFeed(logInstance), nil
	case "websocket":
		if cfg.URL == "" {
			return nil, fmt.Errorf("feed.url is required for the websocket feed")
		}

		return feed.NewWebSocketFeed(cfg.URL, logInstance), nil
	default:
		return nil, fmt.Errorf("unknown feed type %q", cfg.Type)
	}
}

// runAction starts the engine against the configured feed and runs until
// interrupted.
func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := LoadAppConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	logInstance, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logInstance.Sync()

	store, err := newStore(cfg.Store, logInstance)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	gateway := persistence.NewGateway(store, cfg.Engine.SnapshotKey, logInstance)
	engine := broker.NewEngine(cfg.Engine, gateway, logInstance)
	defer engine.Close()

	if cfg.Slippage != nil {
		if err := engine.SetSlippageConfig(*cfg.Slippage); err != nil {
			return err
		}
	}

	tickFeed, err := newFeed(cfg.Feed, logInstance)
	if err != nil {
		return err
	}

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logInstance.Info("paperbroker running",
		zap.Strings("symbols", cfg.Symbols),
		zap.String("feed", cfg.Feed.Type),
		zap.String("store", cfg.Store.Type),
	)

	err = tickFeed.Stream(runCtx, cfg.Symbols, func(tick types.Tick) {
		if err := engine.OnTick(tick); err != nil {
			logInstance.Warn("tick dropped", zap.String("symbol", tick.Symbol), zap.Error(err))
		}
	})
	if err != nil && runCtx.Err() == nil {
		return err
	}

	if info, infoErr := engine.AccountInfo(); infoErr == nil {
		logInstance.Info("final account state",
			zap.Float64("usd_balance", info.Balances[types.CurrencyUSD]),
			zap.Float64("equity", info.Equity),
			zap.Float64("realized_pnl", info.RealizedPnL),
			zap.Int("open_positions", info.OpenPositions),
		)
	}

	logInstance.Info("shutting down")

	return nil
}

// exportAction dumps the execution-event audit trail to Parquet.
func exportAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := LoadAppConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	if cfg.Store.Type != "duckdb" {
		return fmt.Errorf("export requires the duckdb store")
	}

	logInstance, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logInstance.Sync()

	store, err := persistence.NewDuckDBStore(cfg.Store.Path, logInstance)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	path, err := store.ExportEvents(cmd.String("output"))
	if err != nil {
		return err
	}

	fmt.Printf("exported execution events to %s\n", path)

	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML configuration file",
		Value:   "paperbroker.yaml",
	}

	cmd := &cli.Command{
		Name:  "paperbroker",
		Usage: "Simulated brokerage over a live price feed",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the execution engine against the configured tick feed",
				Flags:  []cli.Flag{configFlag},
				Action: runAction,
			},
			{
				Name:  "export",
				Usage: "Export the execution-event audit trail to Parquet",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory",
						Value:   "data/export",
					},
				},
				Action: exportAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
