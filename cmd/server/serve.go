package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	httpapi "domainreader/internal/http"
	"domainreader/internal/platform/config"
	"domainreader/internal/platform/httpserver"
	"domainreader/internal/platform/kafka"
	"domainreader/internal/platform/logger"
	"domainreader/internal/platform/metrics"
	"domainreader/internal/platform/token"
	"domainreader/internal/platform/tracing"
	readerhandler "domainreader/internal/reader/handler"
	"domainreader/internal/writer"
	writerhandler "domainreader/internal/writer/handler"
	authmw "domainreader/pkg/platform/middleware/auth"
)

const (
	channelBuffer       = 256
	defaultFlushTimeout = 5 * time.Second
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.ConfigFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger.New(cfg.Log))
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	shutdownTracing, err := tracing.Setup(cfg.Tracing, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), defaultFlushTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	app, err := buildReader(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	checks := map[string]httpapi.HealthCheck{
		"postgres": app.db.PingContext,
	}
	if app.redis != nil {
		checks["redis"] = app.redis.Health
	}

	groups := []httpapi.Registrar{
		readerhandler.New(app.service, log),
	}

	if cfg.Writer.Enabled {
		writerGroup, closeWriter, err := buildWriter(ctx, cfg, reg, log, checks)
		if err != nil {
			return err
		}
		defer closeWriter()
		groups = append(groups, writerGroup)
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:   log,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Checks:   checks,
		Groups:   groups,
	})
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Reader.QueryTimeout)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting domain-reader", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// buildWriter publishes to Kafka when brokers are configured and to an
// in-process queue drained by a logging worker otherwise.
func buildWriter(ctx context.Context, cfg config.Config, reg prometheus.Registerer, log *slog.Logger, checks map[string]httpapi.HealthCheck) (httpapi.Registrar, func(), error) {
	var (
		publisher writer.Publisher
		cleanup   = func() {}
	)

	client, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if client != nil {
		if err := kafka.EnsureTopics(ctx, client, cfg.Kafka); err != nil {
			client.Close()
			return nil, nil, err
		}
		publisher = writer.NewKafkaPublisher(client)
		checks["kafka"] = client.Ping
		cleanup = closeKafka(client)
	} else {
		log.Warn("no kafka brokers configured, writes go to the in-process queue")
		queue := writer.NewChannelPublisher(channelBuffer)
		worker := writer.NewWorker(writer.NewLogSink(log), queue.Tasks(), log)
		workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = worker.Run(workerCtx)
		}()
		publisher = queue
		cleanup = func() {
			cancel()
			<-done
		}
	}

	svc, err := writer.New(publisher,
		writer.WithLogger(log),
		writer.WithMetrics(writer.NewMetrics(reg)),
		writer.WithImportTopic(cfg.Kafka.ImportTopic),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var validator authmw.TokenValidator
	if cfg.Server.JWTSigningKey != "" {
		validator = token.NewService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer)
	} else {
		log.Warn("no jwt signing key configured, writer routes are unauthenticated")
	}

	saver := writer.NewQueueSaver(svc, cfg.Kafka.SaveTopic)
	return writerhandler.New(svc, saver, validator, log), cleanup, nil
}

func closeKafka(client *kgo.Client) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultFlushTimeout)
		defer cancel()
		_ = client.Flush(ctx)
		client.Close()
	}
}
