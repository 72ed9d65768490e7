package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/markdave123-py/doctext/internal/models"
)

// UploadHandler processes one decoded upload event.
type UploadHandler interface {
	HandleUpload(ctx context.Context, evt models.UploadEvent) error
}

type Consumer struct {
	ch      *amqp.Channel
	topo    Topology
	handler UploadHandler
	logger  *zap.Logger
}

// NewConsumer declares the exchange, the durable queue and its binding, and
// sets the prefetch window.
func NewConsumer(b *Broker, topo Topology, handler UploadHandler, logger *zap.Logger) (*Consumer, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}

	if err := declareExchange(ch, topo); err != nil {
		_ = ch.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		topo.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", topo.Queue, err)
	}
	if err := ch.QueueBind(topo.Queue, topo.UploadedKey, topo.Exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue %s: %w", topo.Queue, err)
	}
	if err := ch.Qos(topo.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	logger.Info("consumer ready",
		zap.String("exchange", topo.Exchange), zap.String("queue", topo.Queue), zap.String("routing_key", topo.UploadedKey))
	return &Consumer{ch: ch, topo: topo, handler: handler, logger: logger}, nil
}

// Run consumes until ctx is cancelled. A closed delivery channel is an
// error so the process can restart with a fresh connection.
func (c *Consumer) Run(ctx context.Context) error {
	const tag = "doctext-extractor"
	msgs, err := c.ch.Consume(
		c.topo.Queue,
		tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = c.ch.Cancel(tag, false)
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery acks whenever the handler returns normally, including when
// the document ended up failed. Malformed bodies and store errors are
// rejected without requeue; only a shutdown mid-message requeues.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With(zap.String("routing_key", d.RoutingKey), zap.Uint64("delivery_tag", d.DeliveryTag))

	if d.RoutingKey != c.topo.UploadedKey {
		log.Warn("unexpected routing key, dropping")
		c.ack(log, d)
		return
	}

	var evt models.UploadEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		log.Error("malformed upload event, rejecting", zap.Error(err))
		c.nack(log, d, false)
		return
	}

	if err := c.handler.HandleUpload(ctx, evt); err != nil {
		requeue := ctx.Err() != nil
		log.Error("upload event not handled, rejecting",
			zap.String("document_id", evt.DocumentID), zap.Bool("requeue", requeue), zap.Error(err))
		c.nack(log, d, requeue)
		return
	}
	c.ack(log, d)
}

func (c *Consumer) ack(log *zap.Logger, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

func (c *Consumer) nack(log *zap.Logger, d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		log.Error("nack failed", zap.Error(err))
	}
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
