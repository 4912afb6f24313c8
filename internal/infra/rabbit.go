// README: RabbitMQ publisher for durable per-ward queues.
package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Rabbit struct {
	url      string
	log      zerolog.Logger
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]struct{}
}

func NewRabbit(url string, log zerolog.Logger) (*Rabbit, error) {
	r := &Rabbit{url: url, log: log, declared: make(map[string]struct{})}
	if err := r.connect(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rabbit) connect() error {
	conn, err := amqp.DialConfig(r.url, amqp.Config{Heartbeat: 10 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	r.conn = conn
	r.ch = ch
	r.declared = make(map[string]struct{})
	r.log.Info().Msg("connected to rabbitmq")
	return nil
}

// ensureChannel redials a closed connection and reopens a channel the broker
// closed after a channel-level error. Callers hold r.mu.
func (r *Rabbit) ensureChannel() error {
	if r.conn == nil || r.conn.IsClosed() {
		return r.connect()
	}
	if r.ch != nil && !r.ch.IsClosed() {
		return nil
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to reopen channel: %w", err)
	}
	r.ch = ch
	r.declared = make(map[string]struct{})
	r.log.Warn().Msg("rabbitmq channel reopened")
	return nil
}

// PublishJSON declares queue as durable on first use and publishes v as a
// persistent message through the default exchange.
func (r *Rabbit) PublishJSON(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureChannel(); err != nil {
		return err
	}
	if _, ok := r.declared[queue]; !ok {
		if _, err := r.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", queue, err)
		}
		r.declared[queue] = struct{}{}
	}
	return r.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (r *Rabbit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return errors.Join(r.ch.Close(), r.conn.Close())
}
