// Command sfu is the signaling/orchestration core's entrypoint: it wires the
// worker pool, registries, dispatcher and transport together behind a Gin
// HTTP server, and serves until an interrupt asks it to shut down (§2, §6).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/brightloop-video/sfu-core/internal/auth"
	"github.com/brightloop-video/sfu-core/internal/bus"
	"github.com/brightloop-video/sfu-core/internal/cleanup"
	"github.com/brightloop-video/sfu-core/internal/config"
	"github.com/brightloop-video/sfu-core/internal/fanout"
	"github.com/brightloop-video/sfu-core/internal/health"
	"github.com/brightloop-video/sfu-core/internal/logging"
	"github.com/brightloop-video/sfu-core/internal/mediaengine"
	"github.com/brightloop-video/sfu-core/internal/mediaengine/fake"
	"github.com/brightloop-video/sfu-core/internal/middleware"
	"github.com/brightloop-video/sfu-core/internal/peer"
	"github.com/brightloop-video/sfu-core/internal/ratelimit"
	"github.com/brightloop-video/sfu-core/internal/room"
	"github.com/brightloop-video/sfu-core/internal/router"
	"github.com/brightloop-video/sfu-core/internal/signaling"
	"github.com/brightloop-video/sfu-core/internal/transport"
	"github.com/brightloop-video/sfu-core/internal/workerpool"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Try multiple paths so this binary also works when run from a
	// subdirectory during local development.
	for _, path := range []string{".env", "../../.env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		// config.Load runs before the logger is initialized, so a fatal
		// validation error is reported on stderr directly.
		println("configuration error:", err.Error())
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevMode); err != nil {
		println("failed to initialize logger:", err.Error())
		os.Exit(1)
	}
	ctx := context.Background()

	poolCtx, cancelPool := context.WithCancel(ctx)
	defer cancelPool()
	// fake.NewWorker stands in for a real media-engine binding (e.g. a
	// mediasoup worker subprocess), which this repo does not implement —
	// see internal/mediaengine's package doc.
	pool := workerpool.New(poolCtx, cfg.WorkerCount, func(pid string, minPort, maxPort int) mediaengine.Worker {
		return fake.NewWorker(pid, minPort, maxPort)
	})

	routers := router.NewRegistry(pool)
	peers := peer.NewRegistry()
	rooms := room.NewRegistry()

	var busService *bus.Service
	var publisher fanout.Publisher
	if cfg.RedisAddr != "" {
		instanceID, _ := os.Hostname()
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword, instanceID)
		if err != nil {
			logging.Fatal(ctx, "failed to connect to redis bus", zap.Error(err))
		}
		defer busService.Close()
		publisher = busService
		logging.Info(ctx, "cross-instance fan-out enabled", zap.String("redis_addr", cfg.RedisAddr))
	} else {
		logging.Warn(ctx, "REDIS_ADDR not set; running single-instance, no cross-instance fan-out")
	}

	broadcaster := fanout.NewBroadcaster(rooms, peers, publisher)
	if busService != nil {
		// Every room subscribes to its own Redis channel for its lifetime, so
		// events published by another instance also reach this instance's
		// local peers, not just the reverse.
		routers.SetBus(busService, broadcaster.LocalBroadcast)
	}
	coordinator := cleanup.NewCoordinator(peers, rooms, routers, broadcaster)

	var validator auth.Validator
	if cfg.DevMode {
		logging.Warn(ctx, "DEV_MODE enabled: using MockValidator, tokens are NOT cryptographically verified")
		validator = auth.MockValidator{}
	} else {
		validator = auth.NewHMACValidator(cfg.JWTSecret)
	}

	dispatcher := signaling.NewDispatcher(peers, rooms, routers, validator, broadcaster, coordinator, signaling.TransportOptions{
		AnnouncedIP: cfg.AnnouncedIP,
	})

	var redisClient *redis.Client
	if busService != nil {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}
	limiter, err := ratelimit.New(cfg.RateLimitWSPerIP, cfg.RateLimitWSPerUser, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to construct rate limiter", zap.Error(err))
	}

	hub := transport.NewHub(dispatcher, limiter, cfg.AllowedOrigins)

	var healthBus health.BusPinger
	if busService != nil {
		healthBus = busService
	}
	healthHandler := health.NewHandler(pool, healthBus)

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowCredentials = true
	engine.Use(cors.New(corsConfig))

	engine.GET("/ws", hub.ServeWs)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", healthHandler.Liveness)
	engine.GET("/readyz", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		logging.Info(ctx, "sfu-core listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.CleanupGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}

	logging.Info(ctx, "sfu-core exited")
}
