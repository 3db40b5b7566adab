package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/tmx156/EdgeTalentcrm-sub002/services/notification-service/internal/notifier"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/notification-service/internal/worker"
)

type Cfg struct {
	RabbitURL string   `envconfig:"RABBIT_URL" required:"true"`
	Exchanges []string `envconfig:"NOTIFY_EXCHANGES" default:"calendar.exchange"`
	Queue     string   `envconfig:"NOTIFY_QUEUE" default:"notification.q"`
	Bindings  []string `envconfig:"NOTIFY_BINDINGS" default:"booking.*,message.*"`
	Prefetch  int      `envconfig:"NOTIFY_PREFETCH" default:"16"`
	DLX       string   `envconfig:"NOTIFY_DLX" default:"notification.dlx"`
	DLQ       string   `envconfig:"NOTIFY_DLQ" default:"notification.q.dlq"`
}

func main() {
	_ = godotenv.Load(".env")
	var c Cfg
	if err := envconfig.Process("", &c); err != nil {
		log.Fatal(err)
	}

	cfg := worker.Config{
		RabbitURL:   c.RabbitURL,
		Exchanges:   c.Exchanges,
		Queue:       c.Queue,
		Bindings:    c.Bindings,
		Prefetch:    c.Prefetch,
		UseDLX:      true,
		DLXName:     c.DLX,
		DLXQueue:    c.DLQ,
		ServiceName: "notification-service",
	}

	cons := worker.NewConsumer(cfg, notifier.NewConsole())
	for {
		if err := cons.Connect(); err != nil {
			log.Printf("[notify] connect failed: %v; retry in 2s", err)
			time.Sleep(2 * time.Second)
			continue
		}
		break
	}
	defer cons.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := cons.Run(ctx); err != nil {
			log.Printf("[notify] run error: %v", err)
		}
	}()

	log.Printf("[notify] started. queue=%s exchanges=%v bindings=%v",
		cfg.Queue, cfg.Exchanges, cfg.Bindings)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
	time.Sleep(200 * time.Millisecond)
}
