package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pollqr.local/gee"
	"pollqr.local/gee/middleware"
	"pollqr.local/internal/app/pollqr"
	"pollqr.local/internal/app/pollqr/cache"
	"pollqr.local/internal/app/pollqr/events"
	"pollqr.local/internal/app/pollqr/httpapi"
	"pollqr.local/internal/app/pollqr/render"
	"pollqr.local/internal/app/pollqr/repo"
	"pollqr.local/internal/app/pollqr/signedlink"
	platformcache "pollqr.local/internal/platform/cache"
	"pollqr.local/internal/platform/config"
	"pollqr.local/internal/platform/db"
	"pollqr.local/internal/platform/httpmiddleware"
	"pollqr.local/internal/platform/httpserver"
	"pollqr.local/internal/platform/metrics"
	"pollqr.local/internal/platform/migrate"
	"pollqr.local/internal/platform/ratelimit"
	"pollqr.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	hopts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, hopts)
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, hopts)
	}
	slog.SetDefault(slog.New(h))

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				slog.Error("trace shutdown failed", "err", err)
			}
		}()
	} else {
		slog.Warn("tracing disabled by config", "TRACING_ENABLED", false)
	}

	// DB
	dbPool, err := db.Open(context.Background(), cfg.DBDSN, 3*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()
	slog.Info("database connected")

	if cfg.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		res, err := migrate.Up(ctx, dbPool, migrate.Options{Dir: cfg.MigrationsDir})
		cancel()
		if err != nil {
			log.Fatal(err)
		}
		slog.Info("migrations done", "dir", res.Dir, "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
	}

	// Redis. A failed ping is logged; the visibility cache and limiter degrade on their own.
	redisClient, err := platformcache.NewRedisClient(context.Background(), platformcache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, 2*time.Second)
	if err != nil {
		slog.Warn("redis unavailable at startup", "addr", cfg.RedisAddr, "err", err)
	}
	defer redisClient.Close()

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("rate limit disabled by config", "RATELIMIT_ENABLED", false)
	}

	// Poll visibility: ristretto L1, Redis L2, Postgres.
	localCache, err := cache.NewLocalCache(100_000)
	if err != nil {
		log.Fatal(err)
	}
	visCache := cache.NewVisibilityCache(redisClient, localCache)
	defer visCache.Close()
	pollsRepo := repo.NewPollsRepo(dbPool, visCache)

	if cfg.QRSigningKey == "" {
		slog.Warn("QR_SIGNING_KEY not set; QR codes for private polls will fail")
	}
	signer := signedlink.New(cfg.QRSigningKey, cfg.AppURL)

	renderer, err := render.New(render.Options{
		Width:  cfg.QRWidth,
		Margin: cfg.QRMargin,
		Dark:   cfg.QRDarkColor,
		Light:  cfg.QRLightColor,
		Level:  render.DefaultOptions().Level,
	}, pollqr.URLValidator{MaxLength: cfg.QRMaxURLLength})
	if err != nil {
		log.Fatal(err)
	}

	qrCache, err := cache.NewQRCache(cfg.QRCacheSize)
	if err != nil {
		log.Fatal(err)
	}

	// Issuance events: Kafka when enabled, in-process channel otherwise.
	sink := events.NewPGSink(dbPool)
	var collector events.Collector
	var kafkaConsumer *events.KafkaConsumer
	var channelConsumer *events.Consumer
	if cfg.KafkaEnabled {
		slog.Info("qr events via kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = events.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, sink)
	} else {
		slog.Info("qr events via channel")
		cc := events.NewChannelCollector(10_000)
		collector = cc
		channelConsumer = events.NewConsumer(sink, cc)
	}

	svc := pollqr.NewService(pollqr.Deps{
		Lookup:   pollsRepo,
		Signer:   signer,
		Renderer: renderer,
		Cache:    qrCache,
		Hosts:    pollqr.NewHostValidator(cfg.AllowedHosts, cfg.AppURL),
		Events:   collector,
	}, pollqr.Options{
		Freshness:  cfg.QRCacheFreshness,
		DefaultTTL: cfg.QRDefaultTTL,
		MaxTTL:     cfg.QRMaxTTL,
	})

	r := gee.New()
	r.Use(gee.Recovery(), middleware.ReqID(), middleware.AccessLog(), httpmiddleware.Metrics(), httpmiddleware.TraceName())

	httpapi.RegisterRoutes(r.Group("/api"), svc, signer, limiter)

	r.GET("/healthz", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// Local / internal network only.
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := dbPool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("db ping failed"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name":  cfg.ServiceName,
			"version":       version,
			"commit":        commit,
			"build_time":    buildTime,
			"go_version":    runtime.Version(),
			"qr_cache_size": qrCache.Len(),
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := httpserver.NewAdmin(cfg, adminMux)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if kafkaConsumer != nil {
			kafkaConsumer.Run(stopCtx)
			return
		}
		// Runs until the collector is closed so buffered events are drained.
		channelConsumer.Run(context.Background())
	}()

	err = httpserver.RunAll(stopCtx, cfg.ShutdownTimeout, publicSrv, adminSrv)
	stop()

	// Servers are down, so nothing collects anymore; let the consumer drain.
	collector.Close()
	select {
	case <-consumerDone:
	case <-time.After(5 * time.Second):
		slog.Warn("qr events consumer did not stop in time")
	}

	if err != nil {
		log.Fatal(err)
	}
}
