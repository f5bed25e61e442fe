package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/insightfulhq/insightful-orders/internal/alerts"
	"github.com/insightfulhq/insightful-orders/internal/analytics"
	"github.com/insightfulhq/insightful-orders/internal/api"
	"github.com/insightfulhq/insightful-orders/internal/config"
	"github.com/insightfulhq/insightful-orders/internal/evaluator"
	"github.com/insightfulhq/insightful-orders/internal/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	log.Info("Starting insightful-orders service...")

	// Local overrides; absent .env is fine
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"environment":       cfg.Environment,
		"database_driver":   cfg.DatabaseDriver,
		"eval_interval_sec": cfg.EvalIntervalSec,
		"alert_mode":        cfg.AlertMode,
		"http_port":         cfg.HTTPPort,
	}).Info("Configuration loaded")

	// Initialize database
	db, err := storage.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	log.Info("Database connected")

	// Run auto-migration
	if err := db.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("Failed to run database migrations")
	}

	log.Info("Database migrations complete")

	// Initialize alert publisher
	publisher := createPublisher(cfg, log)

	log.WithField("alert_mode", cfg.AlertMode).Info("Alert publisher initialized")

	// Initialize analytics engine and rule evaluator
	engine := analytics.NewEngine(db, log)
	eval := evaluator.New(db, publisher, log)

	// Start HTTP server (analytics + health + metrics)
	server := api.New(engine, cfg, log)
	go func() {
		if err := server.Start(cfg.HTTPPort); err != nil {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(cfg.EvalIntervalSec) * time.Second)
	defer ticker.Stop()

	log.Info("Starting alert evaluation loop")

	// Evaluate immediately on startup
	runEvaluation(ctx, eval, log)

	for {
		select {
		case <-ticker.C:
			runEvaluation(ctx, eval, log)
		case sig := <-sigChan:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("HTTP server shutdown error")
			}
			shutdownCancel()
			closePublisher(publisher, log)
			log.Info("Graceful shutdown complete")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, shutting down")
			return
		}
	}
}

func runEvaluation(ctx context.Context, eval *evaluator.Evaluator, log *logrus.Logger) {
	result, err := eval.EvaluateRules(ctx)
	if err != nil {
		log.WithError(err).Error("Error evaluating alert rules")
		return
	}
	log.WithFields(logrus.Fields{
		"evaluated": result.Evaluated,
		"matched":   result.Matched,
	}).Info("Alert rules evaluated")
}

func createPublisher(cfg *config.Config, log *logrus.Logger) alerts.Publisher {
	modes := cfg.AlertModes()

	publishers := []alerts.Publisher{}
	for _, mode := range modes {
		switch mode {
		case "log":
			publishers = append(publishers, alerts.NewLogPublisher(log))
		case "redis":
			p := alerts.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.Ping(ctx); err != nil {
				log.WithError(err).Warn("Redis not reachable at startup, publishing will retry per event")
			}
			cancel()
			publishers = append(publishers, p)
		default:
			log.WithField("mode", mode).Warn("Unknown alert mode, skipping")
		}
	}

	if len(publishers) == 0 {
		log.Warn("No valid alert publishers configured, using log")
		return alerts.NewLogPublisher(log)
	}
	if len(publishers) == 1 {
		return publishers[0]
	}
	return alerts.NewMultiPublisher(publishers...)
}

func closePublisher(p alerts.Publisher, log *logrus.Logger) {
	if c, ok := p.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("Error closing alert publisher")
		}
	}
}
