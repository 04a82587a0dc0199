package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/collectdesk/collectdesk/internal/config"
	"github.com/collectdesk/collectdesk/internal/logger"
	"github.com/collectdesk/collectdesk/internal/ports"
)

// RabbitPublisher publishes envelopes as persistent JSON messages on a
// durable topic exchange and waits for the broker's confirm
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   logger.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

var _ ports.EventPublisher = (*RabbitPublisher)(nil)

// NewRabbitPublisher dials the broker and declares the exchange. When
// events are disabled a NoopPublisher is returned instead.
func NewRabbitPublisher(cfg config.EventsConfig, log logger.Logger) (ports.EventPublisher, error) {
	if !cfg.Enabled {
		log.Info(context.Background(), "Event publishing disabled", nil)
		return NoopPublisher{}, nil
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	log.Info(context.Background(), "Event publisher initialized", map[string]interface{}{
		"exchange": cfg.Exchange,
	})

	return &RabbitPublisher{
		conn:     conn,
		exchange: cfg.Exchange,
		logger:   log,
	}, nil
}

// Publish sends event under routingKey and waits for the confirm
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, event ports.Envelope) error {
	if event.Meta.ID == "" {
		return fmt.Errorf("envelope meta id is required")
	}
	if event.Meta.OccurredAt.IsZero() {
		event.Meta.OccurredAt = time.Now().UTC()
	}
	correlationID := event.Meta.ID
	if event.Meta.CorrelationID != nil {
		correlationID = *event.Meta.CorrelationID
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     event.Meta.ID,
		CorrelationId: correlationID,
		Type:          event.Meta.Type,
		Timestamp:     event.Meta.OccurredAt,
		AppId:         event.Meta.Producer,
		Body:          body,
	})
	if err != nil {
		p.resetChannel()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s", routingKey)
	}

	p.logger.Debug(ctx, "Event published", map[string]interface{}{
		"routing_key": routingKey,
		"event_id":    event.Meta.ID,
		"exchange":    p.exchange,
	})
	return nil
}

// channel returns the shared confirm-mode channel, reopening it after a
// failure. Callers hold p.mu.
func (p *RabbitPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *RabbitPublisher) resetChannel() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
}

// Close closes the channel and the connection
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	p.resetChannel()
	p.mu.Unlock()
	return p.conn.Close()
}

// NoopPublisher discards every event
type NoopPublisher struct{}

// Publish does nothing
func (NoopPublisher) Publish(ctx context.Context, routingKey string, event ports.Envelope) error {
	return nil
}

// Close does nothing
func (NoopPublisher) Close() error { return nil }
