package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/docaudit/internal/api"
	"github.com/onnwee/docaudit/internal/audit"
	"github.com/onnwee/docaudit/internal/auth"
	"github.com/onnwee/docaudit/internal/config"
	"github.com/onnwee/docaudit/internal/db"
	"github.com/onnwee/docaudit/internal/dispatch"
	"github.com/onnwee/docaudit/internal/health"
	"github.com/onnwee/docaudit/internal/ingest"
	"github.com/onnwee/docaudit/internal/middleware"
	"github.com/onnwee/docaudit/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// app holds the wired service. Clients are created here and injected into
// sinks; nothing is initialized at package level.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	handler http.Handler
	stream  *ingest.Client
	tracer  *tracing.Provider
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.tracer, err = tracing.NewProvider(ctx, tracing.Config{
		ServiceName:    tracing.DefaultServiceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	sinks := audit.MultiSink{audit.NewLogSink(logger)}
	var dbChecker, redisChecker, streamChecker api.HealthChecker

	var conn *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		if err := db.CheckSchema(ctx, conn); err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewPostgresSink(conn, logger))
		dbChecker = health.NewDBChecker(conn)
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		sink, err := audit.NewRedisStreamSink(client, cfg.RedisStream, cfg.RedisStreamMaxLen)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
		redisChecker = health.NewRedisChecker(client)
	}

	if cfg.R2Enabled() {
		sink, err := audit.NewS3ArchiveSink(audit.S3ArchiveConfig{
			BucketName:      cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
			Prefix:          cfg.R2Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("archive sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	recorder, err := audit.NewRecorder(sinks, logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	dispatchMetrics := dispatch.NewMetrics()
	if err := dispatchMetrics.Register(reg); err != nil {
		return nil, err
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(reg); err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.New(recorder, dispatch.WithMetrics(dispatchMetrics), dispatch.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if cfg.StreamURL != "" {
		var cursors ingest.CursorTracker = ingest.NewInMemoryCursorTracker()
		if conn != nil {
			cursors = ingest.NewPostgresCursorTracker(conn, cfg.StreamSource, logger)
		}
		ingestMetrics := ingest.NewMetrics()
		if err := ingestMetrics.Register(reg); err != nil {
			return nil, err
		}
		processor := ingest.NewProcessor(dispatcher, cursors, ingestMetrics, logger)

		streamCfg := ingest.DefaultConfig(cfg.StreamURL)
		streamCfg.Source = cfg.StreamSource
		a.stream, err = ingest.NewClient(streamCfg, processor.Handle, logger,
			ingest.WithCursorTracker(cursors),
			ingest.WithClientMetrics(ingestMetrics))
		if err != nil {
			return nil, fmt.Errorf("change stream: %w", err)
		}
		streamChecker = health.NewStreamChecker(a.stream)
	}

	var verifier api.TokenVerifier
	if cfg.PushTokenSecret != "" {
		v, err := auth.NewPushTokenVerifier(cfg.PushTokenSecret, cfg.PushTokenSecretPrevious)
		if err != nil {
			return nil, err
		}
		verifier = v
	} else {
		logger.Warn("PUSH_TOKEN_SECRET not set; push endpoints accept unauthenticated requests")
	}

	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:     dbChecker,
		RedisChecker:  redisChecker,
		StreamChecker: streamChecker,
		Logger:        logger,
	})
	events := api.NewEventHandlers(dispatcher, logger)

	mux := http.NewServeMux()
	requirePush := api.RequirePushToken(verifier)
	mux.Handle("/events/firestore/", requirePush(http.HandlerFunc(events.FirestoreEvent)))
	mux.Handle("/events/storage/", requirePush(http.HandlerFunc(events.StorageEvent)))
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/internal/metrics", ingest.InternalAuthMiddleware(cfg.InternalAuthToken)(ingest.MetricsHandler(reg)))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
		api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
	})

	// RequestID -> Tracing -> Logging -> HTTPMetrics
	a.handler = middleware.RequestID(
		middleware.Tracing(tracing.DefaultServiceName)(
			middleware.Logging(logger)(
				middleware.HTTPMetrics(httpMetrics)(mux))))

	logger.Info("audit service wired",
		slog.Int("sinks", len(sinks)),
		slog.Int("routes", len(dispatcher.Routes())),
		slog.Bool("stream", a.stream != nil),
		slog.Bool("push_auth", verifier != nil),
		slog.Bool("tracing", a.tracer.IsEnabled()))
	return a, nil
}

// serve runs the HTTP server on ln and the change-stream consumer until ctx
// is cancelled, then shuts both down.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting server", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if a.stream != nil {
		g.Go(func() error {
			if err := a.stream.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.close()
	return err
}

func (a *app) close() {
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown failed", slog.String("error", err.Error()))
		}
		a.tracer = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to close resource", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
