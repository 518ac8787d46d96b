package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smartpresent/internal/attendance"
	"smartpresent/internal/auth"
	"smartpresent/internal/config"
	"smartpresent/internal/handler"
	"smartpresent/internal/httpmiddleware"
	"smartpresent/internal/insight"
	"smartpresent/internal/metrics"
	"smartpresent/internal/queue"
	"smartpresent/internal/rfidfeed"
	"smartpresent/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy, err := attendance.ParsePolicy(cfg.Policy)
	if err != nil {
		return err
	}
	loc := cfg.Location()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()
	checks := map[string]handler.HealthCheck{}

	var (
		attStore attendance.Store
		accounts auth.Accounts
	)
	if cfg.StoreBackend == "memory" {
		log.Println("store: in-memory, data is lost on restart")
		attStore = attendance.NewMemoryStore()
		accounts = auth.NewMemoryAccounts()
	} else {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		attStore = attendance.NewRepository(db.Client)
		accounts = auth.NewPGAccounts(db.Client)
		checks["db"] = db.Healthy
	}

	var (
		q     queue.Queue
		cache insight.Cache
	)
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(64)
		metrics.QueueDepth(func() float64 { return float64(mem.Len()) })
		q = mem
		cache = insight.NewMemoryCache()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
		cache = insight.NewRedisCache(redisClient.Client, "", cfg.InsightTTL)
		checks["redis"] = redisClient.Healthy
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	opts := attendance.Options{Policy: policy, Location: loc, ScanWindow: cfg.ScanWindow}
	if cfg.RFIDFeedURL != "" {
		opts.Feed = rfidfeed.New(cfg.RFIDFeedURL, loc)
		log.Printf("rfid feed: %s", cfg.RFIDFeedURL)
	}
	att := attendance.NewService(attStore, opts)
	authSvc := auth.NewService(accounts, auth.Config{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	ai := insight.New(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AISkip)
	ins := insight.NewService(att, ai, cache)

	// Persisted attendance changes invalidate the class insight.
	att.Subscribe(func(evt attendance.Event) {
		pubCtx, done := context.WithTimeout(ctx, 2*time.Second)
		defer done()
		if err := queue.Offer(pubCtx, q, queue.Job{Kind: queue.JobRefreshInsight, ClassID: evt.ClassID, SessionID: evt.SessionID}); err != nil {
			log.Printf("queue publish for %s failed: %v", evt.Kind, err)
		}
	})
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := ins.Consume(ctx, q); err != nil && ctx.Err() == nil {
				log.Printf("in-process insight worker stopped: %v", err)
			}
		}()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handler.New(att, authSvc, ins, q, checks).Register(r, auth.TeacherAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // SmartBot answers can take a while
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (store=%s queue=%s policy=%s)", cfg.HTTPPort, cfg.StoreBackend, cfg.QueueBackend, policy)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
