package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"smartpresent/internal/attendance"
	"smartpresent/internal/config"
	"smartpresent/internal/insight"
	"smartpresent/internal/queue"
	"smartpresent/internal/store"
)

// Worker consumes insight jobs and schedules a nightly refresh of every class.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" || cfg.StoreBackend == "memory" {
		log.Fatalf("worker needs shared backends; got store=%s queue=%s", cfg.StoreBackend, cfg.QueueBackend)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis not reachable at %s, consumer will retry", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, "")
	att := attendance.NewService(attendance.NewRepository(db.Client), attendance.Options{Location: cfg.Location()})
	ai := insight.New(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AISkip)
	ins := insight.NewService(att, ai, insight.NewRedisCache(redisClient.Client, "", cfg.InsightTTL))
	if cfg.AISkip {
		log.Println("AI_SKIP set, insights use placeholder text")
	}

	sched := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := sched.AddFunc(cfg.InsightCron, func() { enqueueAll(ctx, att, q) }); err != nil {
		log.Fatalf("invalid INSIGHT_CRON %q: %v", cfg.InsightCron, err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	log.Printf("worker started, insight refresh scheduled %q", cfg.InsightCron)
	if err := ins.Consume(ctx, q); err != nil && ctx.Err() == nil {
		log.Printf("consumer stopped: %v", err)
	}
	log.Println("worker stopped")
}

func enqueueAll(ctx context.Context, att *attendance.Service, q queue.Queue) {
	classes, err := att.ListClasses(ctx, "")
	if err != nil {
		log.Printf("nightly refresh: list classes: %v", err)
		return
	}
	for _, cls := range classes {
		if err := q.Publish(ctx, queue.Job{Kind: queue.JobRefreshInsight, ClassID: cls.ID}); err != nil {
			log.Printf("nightly refresh: class %s: %v", cls.ID, err)
		}
	}
	log.Printf("nightly refresh queued for %d classes", len(classes))
}
