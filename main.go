package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"webpay-service/internal/api"
	"webpay-service/internal/config"
	"webpay-service/internal/db"
	"webpay-service/internal/event"
	"webpay-service/internal/kafka"
	"webpay-service/internal/logging"
	"webpay-service/internal/metrics"
	"webpay-service/internal/webpay"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	cfg := config.MustLoadConfig(configPath)

	logger := logging.GetLogger(cfg.Logs)
	slog.SetDefault(logger)

	metrics.Setup(cfg.Metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connStr := db.GetConnStr(cfg.Database)
	if err := db.RunMigrations(connStr, "migrations"); err != nil {
		logger.Error("Error running migrations", "error", err)
		os.Exit(1)
	}

	dbpool, err := db.GetPool(ctx, connStr)
	if err != nil {
		logger.Error("Error connecting to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	contributions := db.NewContributionRepository(dbpool)
	catalog := db.NewCatalogRepository(dbpool)

	issuer := webpay.NewIssuer(contributions, webpay.NewSigner(cfg.Webpay), cfg.Webpay, cfg.Site, logger)

	noticeWriter := kafka.NewWriter(cfg.Kafka)
	defer noticeWriter.Close()

	noticeReader := kafka.NewReader(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.PaymentNotices, cfg.Kafka.Reader.GroupID)
	defer noticeReader.Close()

	go kafka.ReadPaymentNotices(ctx, noticeReader, event.NewProcessor(contributions, logger), logger)

	handler := api.NewHandler(catalog, issuer, contributions, kafka.NewNoticePublisher(noticeWriter),
		cfg.Webpay, cfg.Site, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down server", "error", err)
	}
}
