// Command realmd serves the federated user store realm over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idrealm/internal/audit"
	"idrealm/internal/jwttoken"
	"idrealm/internal/platform/config"
	"idrealm/internal/platform/logger"
	"idrealm/internal/platform/metrics"
	platformredis "idrealm/internal/platform/redis"
	"idrealm/internal/realm"
	transporthttp "idrealm/internal/transport/http"
	"idrealm/internal/userstore"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.New("info").Error("configuration rejected", "error", err.Error())
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mx := metrics.New(prometheus.DefaultRegisterer)

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	listeners := userstore.NewListeners()
	var publisher *audit.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("audit publisher unavailable", "error", err.Error())
			os.Exit(1)
		}
		listeners.RegisterOperationListener(audit.NewLogger(publisher))
		listeners.RegisterErrorListener(audit.NewFailureLogger(publisher))
	}

	rlm, err := realm.New(ctx, cfg, realm.Options{
		Logger:    log,
		Metrics:   mx,
		Redis:     redisClient,
		Listeners: listeners,
	})
	if err != nil {
		log.Error("realm bootstrap failed", "error", err.Error())
		os.Exit(1)
	}
	defer rlm.Close()

	tokens, err := jwttoken.New(cfg.JWTSigningKey, "idrealm", time.Hour)
	if err != nil {
		log.Error("token issuer rejected", "error", err.Error())
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", transporthttp.NewServer(rlm, tokens, log).Router())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("realm listening", "addr", cfg.Addr, "tenant", cfg.Realm.TenantDomain)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", "error", err.Error())
	}
	if publisher != nil {
		if err := publisher.Close(shutdownCtx); err != nil {
			log.Warn("audit flush incomplete", "error", err.Error())
		}
	}
}
