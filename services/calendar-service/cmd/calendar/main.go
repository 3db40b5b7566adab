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
	"github.com/joho/godotenv"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/auth"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/clock"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/config"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/mq"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/obs"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/handlers"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/push"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/session"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	_ = godotenv.Load(".env")
	cfg := must(config.Load())
	grid := must(cfg.Scheduler.Grid())

	shutdownTracer := obs.InitTracer("calendar-service")
	defer shutdownTracer(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// push channel: one publisher for every session, one private queue per process
	pub := must(mq.NewPublisher(cfg.RabbitURL, cfg.CalendarExchange))
	defer pub.Close()
	cons := must(mq.NewConsumer(cfg.RabbitURL, cfg.CalendarExchange, "", []string{"booking.#", "message.#", "lead.#"}))
	defer cons.Close()

	hub := push.NewHub(cons)
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Printf("[calendar] push consumer stopped: %v", err)
		}
	}()
	log.Printf("[calendar] push queue=%s exchange=%s", cons.Queue(), cfg.CalendarExchange)

	sessions := session.NewManager(session.Config{
		BookingServiceURL: cfg.BookingServiceURL,
		Scheduler:         cfg.Scheduler,
		Grid:              grid,
	}, hub, push.NewEmitter(pub), clock.Real(), nil)

	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := sessions.Sweep(); n > 0 {
					log.Printf("[calendar] closed %d idle sessions", n)
				}
			}
		}
	}()

	r := gin.Default()
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sessions.Len()}) })
	v1 := r.Group("/v1")
	v1.Use(auth.JWTAuth(cfg.JWTSecret))
	handlers.NewCalendarHandler(sessions).Register(v1)

	srv := &http.Server{Addr: cfg.CalendarHTTPAddr, Handler: r}
	go func() {
		log.Println("[calendar] HTTP listening on", cfg.CalendarHTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	_ = srv.Shutdown(sctx)
	sessions.CloseAll()
	log.Println("[calendar] stopped")
}
