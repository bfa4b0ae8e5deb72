package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/taskpay/internal/config"
	"github.com/dukerupert/taskpay/internal/database"
	"github.com/dukerupert/taskpay/internal/logging"
	"github.com/dukerupert/taskpay/internal/metrics"
	"github.com/dukerupert/taskpay/internal/server"
	"github.com/dukerupert/taskpay/internal/wallet"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "taskpay",
	Short:         "Task rewards paid out in crypto",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, reconcileCmd, releaseCmd, migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is the wiring shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	gateway wallet.Gateway
	rates   *wallet.RateCache
	metrics *metrics.Metrics
	server  *server.Server
}

func newApp() (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	gateway, err := newGateway(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	fallback, _ := cfg.Fallback()
	rates := wallet.NewRateCache(gateway, wallet.RateConfig{
		Base:       cfg.CryptoCurrency,
		Quote:      cfg.FiatCurrency,
		TTL:        cfg.RateTTL,
		Fallback:   fallback,
		RetryAfter: cfg.RateRetry,
	}, logger)

	m := metrics.New()
	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		gateway: gateway,
		rates:   rates,
		metrics: m,
		server:  server.New(db, gateway, rates, m, cfg, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("close database", "error", err)
	}
}

// newGateway returns the HTTP gateway client when a URL is configured and
// the simulated in-process gateway otherwise.
func newGateway(cfg *config.Config, logger *slog.Logger) (wallet.Gateway, error) {
	if cfg.GatewayURL != "" {
		logger.Info("using wallet gateway", "url", cfg.GatewayURL)
		return wallet.NewClient(wallet.Config{
			BaseURL: cfg.GatewayURL,
			Token:   cfg.GatewayToken,
			Timeout: cfg.PaymentTimeout,
		}), nil
	}

	rate, err := cfg.Fallback()
	if err != nil {
		return nil, err
	}
	funds, err := cfg.Funds()
	if err != nil {
		return nil, err
	}
	logger.Warn("TASKPAY_GATEWAY_URL not set, using simulated gateway", "funds", funds, "rate", rate)
	return wallet.NewSimulated(rate, funds), nil
}
