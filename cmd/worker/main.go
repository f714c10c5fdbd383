// worker runs the expiry sweep and, when KAFKA_BROKERS and LOKI_URL are set, forwards auth
// events from Kafka to Loki.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"identity-session-engine/internal/config"
	"identity-session-engine/internal/db"
	"identity-session-engine/internal/logger"
	otprepo "identity-session-engine/internal/otp/repository"
	otpservice "identity-session-engine/internal/otp/service"
	sessionrepo "identity-session-engine/internal/session/repository"
	"identity-session-engine/internal/telemetry/loki"
	"identity-session-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		log.Error("db open failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	challenges := otpservice.NewManager(otprepo.NewPostgresRepository(pool), cfg.Engine(), otpservice.WithLogger(log))
	sweeper := worker.NewSweeper(sessionrepo.NewPostgresRepository(pool), challenges, cfg.SweepRetain(), log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("sweep started", "interval", cfg.SweepEvery().String(), "retention", cfg.SweepRetain().String())
		sweeper.Run(ctx, cfg.SweepEvery())
	}()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) > 0 && cfg.LokiURL != "" {
		reader := worker.NewKafkaReader(brokers, cfg.AuthEventsTopic, cfg.KafkaGroupID)
		fwd := worker.NewForwarder(reader, loki.NewClient(cfg.LokiURL), log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("forwarding auth events", "topic", cfg.AuthEventsTopic, "group", cfg.KafkaGroupID, "loki", cfg.LokiURL)
			fwd.Run(ctx)
		}()
	} else {
		log.Info("event forwarder disabled; set KAFKA_BROKERS and LOKI_URL to enable")
	}

	<-ctx.Done()
	log.Info("worker shutting down")
	wg.Wait()
}
