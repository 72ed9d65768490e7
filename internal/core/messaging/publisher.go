package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/markdave123-py/doctext/internal/core"
	"github.com/markdave123-py/doctext/internal/models"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends document.processed events. amqp channels are not safe for
// concurrent publishing, hence the mutex.
type Publisher struct {
	mu       sync.Mutex
	ch       amqpChannel
	exchange string
	key      string
}

var _ core.EventPublisher = (*Publisher)(nil)

func NewPublisher(b *Broker, topo Topology) (*Publisher, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := declareExchange(ch, topo); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch, exchange: topo.Exchange, key: topo.ProcessedKey}, nil
}

func (p *Publisher) PublishProcessed(ctx context.Context, evt models.ProcessedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal processed event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		p.key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     uuid.NewString(),
			CorrelationId: evt.ID,
			Timestamp:     evt.ProcessedAt,
			Type:          p.key,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", p.key, evt.DocumentID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
