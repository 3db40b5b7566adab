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

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/auth"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/config"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/db"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/mq"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/obs"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/booking-service/internal/cache"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/booking-service/internal/repository"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/booking-service/internal/service"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/booking-service/internal/transport/rest"
)

type Cfg struct {
	PGBookingDSN string `envconfig:"PG_BOOKING_DSN" required:"true"`
	// Redis fronts blocked-range reads; empty disables the cache.
	RedisURL   string        `envconfig:"REDIS_URL"`
	BlockedTTL time.Duration `envconfig:"BLOCKED_CACHE_TTL" default:"10m"`
}

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	_ = godotenv.Load(".env")
	var cfg Cfg
	must(0, envconfig.Process("", &cfg))
	app := must(config.Load())

	shutdownTracer := obs.InitTracer("booking-service")
	defer shutdownTracer(context.Background())

	// DB
	grid := must(app.Scheduler.Grid())
	gdb := db.Open(cfg.PGBookingDSN)
	repo := repository.NewBookingRepo(gdb, grid)
	must(0, repo.Migrate())

	// Publisher for the push channel
	pub := must(mq.NewPublisher(app.RabbitURL, app.CalendarExchange))
	defer pub.Close()

	var blocked service.Cache
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer rdb.Close()
		blocked = cache.NewBlockedCache(rdb, cfg.BlockedTTL)
		log.Println("[booking] blocked-range cache on", cfg.RedisURL)
	}

	svc := service.NewBookingSvc(repo, pub, blocked)

	r := gin.Default()
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	v1 := r.Group("/v1")
	v1.Use(auth.JWTAuth(app.JWTSecret))
	rest.NewServer(svc).Register(v1)

	srv := &http.Server{Addr: app.BookingHTTPAddr, Handler: r}
	go func() {
		log.Println("[booking] HTTP listening on", app.BookingHTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("[booking] stopped")
}
