// Package push connects calendar sessions to the push channel: envelopes
// read from the broker are fanned out to every live session, and envelopes
// a session emits are published back to it.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/events"
)

// Subscriber receives the envelopes for one session.
type Subscriber interface {
	Deliver(env events.Envelope)
}

// Source yields raw broker deliveries.
type Source interface {
	Deliveries(ctx context.Context) (<-chan amqp.Delivery, error)
}

type Hub struct {
	src Source

	mu   sync.RWMutex
	subs map[string]Subscriber
}

func NewHub(src Source) *Hub {
	return &Hub{src: src, subs: make(map[string]Subscriber)}
}

func (h *Hub) Subscribe(id string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = s
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Run consumes until ctx ends or the delivery channel closes. Deliveries are
// handled one at a time, so every session sees envelopes in receipt order.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.src.Deliveries(ctx)
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
			var env events.Envelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				log.Printf("[push] drop undecodable message key=%s err=%v", d.RoutingKey, err)
				_ = d.Nack(false, false)
				continue
			}
			if env.Type == "" {
				env.Type = d.RoutingKey
			}
			h.Broadcast(env)
			_ = d.Ack(false)
		}
	}
}

// Broadcast hands env to every subscribed session.
func (h *Hub) Broadcast(env events.Envelope) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	for _, s := range subs {
		s.Deliver(env)
	}
}

// Publisher is the broker side of an Emitter.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Emitter publishes envelopes with their type as routing key.
type Emitter struct {
	pub Publisher
}

func NewEmitter(pub Publisher) *Emitter { return &Emitter{pub: pub} }

func (e *Emitter) Emit(ctx context.Context, env events.Envelope) error {
	return e.pub.PublishJSON(ctx, env.Type, env)
}
