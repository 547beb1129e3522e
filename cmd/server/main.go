// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"sheetpipe/internal/repository/postgresql"
	"sheetpipe/internal/service"
	"sheetpipe/internal/sheet"
	"sheetpipe/internal/stream"
	httptransport "sheetpipe/internal/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgDSN := mustEnv("POSTGRES_DSN")
	redisAddr := mustEnv("REDIS_ADDR")
	httpAddr := envOr("HTTP_ADDR", ":8080")
	dataDir := envOr("DATA_DIR", "./data")

	queueKey := envOr("REDIS_QUEUE_KEY", "pipeline:queue")
	taskPrefix := envOr("REDIS_TASK_PREFIX", "tasks:state:")

	pool, err := postgresql.NewPool(ctx, pgDSN)
	if err != nil {
		log.Fatalf("pg: %v", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	jobs := postgresql.NewJobRepository(pool)
	files := postgresql.NewFileRepository(pool)
	store, err := sheet.NewDiskStore(dataDir)
	if err != nil {
		log.Fatalf("data dir: %v", err)
	}

	queue := service.NewRedisQueue(rdb, queueKey, envOr("REDIS_PROCESSING_KEY", "pipeline:processing"))
	tasks := service.NewTaskStateStore(rdb, taskPrefix)

	jobSvc := service.NewJobService(jobs, files, queue)
	fileSvc := service.NewFileService(files, store, 24*time.Hour)
	notifier := stream.NewNotifier(jobs, tasks)

	h := httptransport.NewHandler(jobSvc, fileSvc, notifier)
	srv := &http.Server{
		Addr:    httpAddr,
		Handler: httptransport.Routes(h),
	}

	go func() {
		log.Printf("[server] listening addr=%s", httpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("server stopped")
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing env: %s", key)
	}
	return v
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
