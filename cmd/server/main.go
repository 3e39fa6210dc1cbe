package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-ordersupport/internal/api"
	"github.com/npezzotti/go-ordersupport/internal/config"
	"github.com/npezzotti/go-ordersupport/internal/database"
	"github.com/npezzotti/go-ordersupport/internal/server"
	"github.com/npezzotti/go-ordersupport/internal/stats"
	"github.com/npezzotti/go-ordersupport/internal/webhook"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr             string
	dataFile         string
	dsn              string
	signingKey       string
	webhookSecret    string
	webhookTolerance time.Duration
	allowedOrigins   stringSliceFlag
)

func openRepository(cfg *config.Config, logger *log.Logger) (database.OrderSupportRepository, error) {
	if cfg.UsePostgres() {
		logger.Println("using postgres repository")
		return database.NewPgOrderSupportRepository(cfg.DatabaseDSN)
	}

	logger.Printf("using file ledger at %s", cfg.DataFile)
	return database.OpenLedger(cfg.DataFile, logger)
}

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dataFile, "data-file", "data/db.json", "path of the JSON data file")
	flag.StringVar(&dsn, "dsn", "", "postgres connection string; replaces the data file when set")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.StringVar(&webhookSecret, "webhook-secret", os.Getenv("WEBHOOK_SECRET"), "payment webhook signing secret; empty trusts unsigned payloads")
	flag.DurationVar(&webhookTolerance, "webhook-tolerance", config.DefaultWebhookTolerance, "maximum age of a webhook signature timestamp")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[order-support] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dataFile, dsn, signingKey, webhookSecret, webhookTolerance, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	if !cfg.WebhookSigningEnabled() {
		logger.Println("WARNING: webhook signing disabled, set -webhook-secret or WEBHOOK_SECRET outside local development")
	}

	db, err := openRepository(cfg, logger)
	if err != nil {
		logger.Fatal("db open:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, db, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	ingestor := webhook.NewIngestor(logger, db, chatServer, statsUpdater, cfg.WebhookSecret, cfg.WebhookTolerance)

	srv := api.NewOrderSupportApp(mux, logger, chatServer, db, ingestor, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	if err := db.Close(); err != nil {
		logger.Println("db close:", err)
	}

	logger.Println("shutdown complete")
}
