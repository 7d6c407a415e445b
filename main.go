package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/auth"
	"github.com/karmashop-resbrevis/karmapurgex/cache"
	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/engine"
	"github.com/karmashop-resbrevis/karmapurgex/handler"
	"github.com/karmashop-resbrevis/karmapurgex/ipintel"
	"github.com/karmashop-resbrevis/karmapurgex/jobs"
	appLogger "github.com/karmashop-resbrevis/karmapurgex/logger"
	"github.com/karmashop-resbrevis/karmapurgex/metrics"
	"github.com/karmashop-resbrevis/karmapurgex/middleware"
	"github.com/karmashop-resbrevis/karmapurgex/quota"
	"github.com/karmashop-resbrevis/karmapurgex/ratelimit"
	redisClient "github.com/karmashop-resbrevis/karmapurgex/redis"
	"github.com/karmashop-resbrevis/karmapurgex/resolver"
	"github.com/karmashop-resbrevis/karmapurgex/security"
	"github.com/karmashop-resbrevis/karmapurgex/store"
	"github.com/karmashop-resbrevis/karmapurgex/visitlog"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.MustLoadConfig()
	appLogger.Initialize(cfg.Log.Level, cfg.Log.Pretty)
	log.Info().Msg("Configuration loaded successfully")

	if cfg.WebServer.BaseURL == "" {
		cfg.WebServer.BaseURL = fmt.Sprintf("%s://%s:%s", cfg.WebServer.Scheme, cfg.WebServer.IP, cfg.WebServer.Port)
	}

	// Redis backs the visitor rate limiter regardless of the storage driver
	rdb := redisClient.NewClient(cfg.Redis)

	st, err := openStore(cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open store")
	}

	// Initialize cache (if enabled)
	var cacheClient *cache.Cache
	if cfg.Cache.Enabled {
		cacheClient, err = cache.New(cfg.Cache)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize cache")
		}
		st = store.WithCache(st, cacheClient)
	} else {
		log.Info().Msg("Cache disabled in configuration")
	}

	extractor, err := security.NewSignalExtractor(cfg.Security)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid security configuration")
	}
	liveness := security.NewLivenessChecker(cfg.Security)

	intelTimeout := time.Duration(cfg.IPIntel.Timeout) * time.Second
	gateway := ipintel.NewGateway(intelTimeout,
		ipintel.NewReputationProvider(cfg.IPIntel),
		ipintel.NewGeoProvider(cfg.IPIntel),
	)

	visits := visitlog.New(st.Visits, time.Duration(cfg.Features.VisitDedupWindowMins)*time.Minute, cfg.OperationTimeout())
	go func() {
		for err := range visits.Errors() {
			metrics.VisitLogFailuresTotal.Inc()
			log.Error().Err(err).Msg("Failed to record visit")
		}
	}()

	accountant := quota.NewAccountant(st.Usage, quota.CeilingsFrom(cfg.Quota))
	res := resolver.New(resolver.Deps{
		Links:    st.Shortlinks,
		Profiles: st.Profiles,
		Limiter:  ratelimit.New(rdb, cfg.RateLimit.VisitorLimit, time.Duration(cfg.RateLimit.VisitorWindow)*time.Second),
		Intel:    gateway,
		Engine:   engine.New(engine.ConfigFrom(cfg.Security)),
		Visits:   visits,
		Quota:    accountant,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL)*time.Second)
	activity := handler.NewActivityRecorder(st.Activity, cfg.OperationTimeout())

	resolveHandler := handler.NewResolveHandler(res, extractor, cfg.Security.NotFoundURL)
	shortlinkHandler := handler.NewShortlinkHandler(st, liveness, activity, cfg)
	accountHandler := handler.NewAccountHandler(st, accountant, activity, cfg)
	activityHandler := handler.NewActivityHandler(st.Activity, cfg.OperationTimeout())
	userHandler := handler.NewUserHandler(st, jwtManager, activity, cfg)
	adminHandler := handler.NewAdminHandler(st, cacheClient, cfg)
	systemHandler := handler.NewSystemHandler(st, cacheClient, cfg)

	// Set up router
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger)

	r.HandleFunc("/health", systemHandler.HealthCheck).Methods("GET")
	r.HandleFunc("/system/status", systemHandler.SystemStatus).Methods("GET")
	r.HandleFunc("/cache/metrics", systemHandler.CacheMetrics).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Visitor traffic is throttled by the shared per-IP window inside the resolver
	r.HandleFunc("/resolve/{key}", resolveHandler.Resolve).Methods("GET")

	// Owner API, token bucket per client address
	apiLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, extractor.ClientIP)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(apiLimiter.Limit)
	api.HandleFunc("/signup", userHandler.Signup).Methods("POST")
	api.HandleFunc("/login", userHandler.Login).Methods("POST")

	userAuth := middleware.NewUserAuth(jwtManager)
	owner := api.NewRoute().Subrouter()
	owner.Use(userAuth.Protect)
	owner.HandleFunc("/shortlinks", shortlinkHandler.List).Methods("GET")
	owner.HandleFunc("/shortlinks", shortlinkHandler.Create).Methods("POST")
	owner.HandleFunc("/shortlinks", shortlinkHandler.Update).Methods("PUT")
	owner.HandleFunc("/shortlinks", shortlinkHandler.Patch).Methods("PATCH")
	owner.HandleFunc("/shortlinks", shortlinkHandler.Delete).Methods("DELETE")
	owner.HandleFunc("/shortlinks/status", shortlinkHandler.PatchStatus).Methods("PATCH")
	owner.HandleFunc("/shortlinks/{key}/qr", shortlinkHandler.QR).Methods("GET")
	owner.HandleFunc("/account", accountHandler.Stats).Methods("GET")
	owner.HandleFunc("/subscription", accountHandler.Subscription).Methods("GET")
	owner.HandleFunc("/activity", activityHandler.List).Methods("GET")

	adminAuth := middleware.NewAdminAuth(cfg.Auth.AdminAPIKey, cfg.Auth.AdminEnabled)
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(adminAuth.Protect)
	admin.HandleFunc("/stats", adminHandler.Stats).Methods("GET")
	admin.HandleFunc("/profiles", adminHandler.ListProfiles).Methods("GET")
	admin.HandleFunc("/profiles/{username}", adminHandler.UpdateProfile).Methods("PUT")

	// Scheduled jobs
	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		runner := jobs.NewRunner(st.Shortlinks, st.Profiles, liveness, apiLimiter)
		scheduler, err = jobs.NewScheduler(cfg.Jobs, runner)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid job schedule")
		}
		scheduler.Start()
	}

	// Configure HTTP server
	serverAddress := fmt.Sprintf("%s:%s", cfg.WebServer.IP, cfg.WebServer.Port)
	server := &http.Server{
		Addr:         serverAddress,
		Handler:      middleware.CORS(r),
		ReadTimeout:  time.Duration(cfg.WebServer.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WebServer.WriteTimeout) * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("address", serverAddress).
			Str("base_url", cfg.WebServer.BaseURL).
			Str("storage", cfg.Storage.Driver).
			Msg("Starting server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.WebServer.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	// Pending visit writes finish before the store goes away
	visits.Close()

	if cacheClient != nil {
		cacheClient.Close()
	}
	// The redis store owns rdb; the mongo store leaves it to us
	if err := st.Close(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to close store")
	}
	if cfg.Storage.Driver == "mongo" {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}

	log.Info().Msg("Server stopped gracefully")
}

// openStore selects the document store backend.
func openStore(cfg config.Config, rdb *redis.Client) (*store.Store, error) {
	switch cfg.Storage.Driver {
	case "", "redis":
		return store.NewRedis(rdb), nil
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Mongo.ConnectTimeout)*time.Second)
		defer cancel()
		return store.NewMongo(ctx, cfg.Mongo)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
