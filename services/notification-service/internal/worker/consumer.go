package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/events"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/notification-service/internal/notifier"
)

type Config struct {
	RabbitURL   string
	Exchanges   []string
	Queue       string
	Bindings    []string
	Prefetch    int
	UseDLX      bool
	DLXName     string
	DLXQueue    string
	ServiceName string
}

// errPoison marks a message that can never be handled; it is dead-lettered
// instead of requeued.
var errPoison = errors.New("poison message")

type Consumer struct {
	cfg      Config
	notifier notifier.Notifier

	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(cfg Config, n notifier.Notifier) *Consumer {
	return &Consumer{cfg: cfg, notifier: n}
}

func (c *Consumer) Connect() error {
	conn, err := amqp.Dial(c.cfg.RabbitURL)
	if err != nil {
		return fmt.Errorf("rabbit dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel failed: %w", err)
	}
	fail := func(err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	args := amqp.Table{}
	if c.cfg.UseDLX {
		args["x-dead-letter-exchange"] = c.cfg.DLXName
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, args)
	if err != nil {
		return fail(fmt.Errorf("declare queue failed: %w", err))
	}

	for _, ex := range c.cfg.Exchanges {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fail(fmt.Errorf("declare exchange %s failed: %w", ex, err))
		}
		for _, key := range c.cfg.Bindings {
			if err := ch.QueueBind(q.Name, key, ex, false, nil); err != nil {
				return fail(fmt.Errorf("bind queue to exchange=%s key=%s failed: %w", ex, key, err))
			}
		}
	}

	if c.cfg.UseDLX {
		if err := ch.ExchangeDeclare(c.cfg.DLXName, "topic", true, false, false, false, nil); err != nil {
			return fail(fmt.Errorf("declare dlx failed: %w", err))
		}
		if _, err := ch.QueueDeclare(c.cfg.DLXQueue, true, false, false, false, nil); err != nil {
			return fail(fmt.Errorf("declare dlq failed: %w", err))
		}
		if err := ch.QueueBind(c.cfg.DLXQueue, "#", c.cfg.DLXName, false, nil); err != nil {
			return fail(fmt.Errorf("bind dlq failed: %w", err))
		}
	}

	if c.cfg.Prefetch > 0 {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fail(fmt.Errorf("set qos failed: %w", err))
		}
	}

	c.conn = conn
	c.ch = ch
	return nil
}

func (c *Consumer) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.ServiceName, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume failed: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.settle(d, c.handleDelivery(d))
		}
	}
}

func (c *Consumer) settle(d amqp.Delivery, err error) {
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errPoison):
		log.Printf("[notify] drop key=%s err=%v -> dead-letter", d.RoutingKey, err)
		_ = d.Nack(false, false)
	default:
		log.Printf("[notify] handle error key=%s err=%v -> Nack&requeue", d.RoutingKey, err)
		_ = d.Nack(false, true)
	}
}

func (c *Consumer) handleDelivery(d amqp.Delivery) error {
	env, err := events.MustUnmarshal[events.Envelope](d.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	if env.Type == "" {
		env.Type = d.RoutingKey
	}

	switch env.Type {
	case events.TypeBookingCreated:
		ev, err := events.Decode[events.BookingCreated](env)
		if err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		return c.notifier.Notify("Booking Created",
			fmt.Sprintf("%s booked for %s.", ev.Booking.Name, notifier.Slot(ev.Booking)))

	case events.TypeStatusChanged:
		ev, err := events.Decode[events.StatusChanged](env)
		if err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		return c.notifier.Notify("Booking Updated",
			fmt.Sprintf("%s is now %s (%s).", ev.Booking.Name, notifier.Label(ev.Booking), notifier.Slot(ev.Booking)))

	case events.TypeBookingRemoved:
		ev, err := events.Decode[events.BookingRemoved](env)
		if err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		return c.notifier.Notify("Booking Removed", fmt.Sprintf("Booking %s was deleted.", ev.ID))

	case events.TypeMessageReceived:
		ev, err := events.Decode[events.MessageReceived](env)
		if err != nil {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		return c.notifier.Notify("New Message",
			fmt.Sprintf("Booking %s received a %s: %q", ev.BookingID, ev.Channel, ev.Preview))

	default:
		log.Printf("[notify] skip key=%s", env.Type)
	}
	return nil
}
