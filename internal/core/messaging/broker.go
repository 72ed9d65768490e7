package messaging

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Topology names the exchange, queue and routing keys the service uses.
type Topology struct {
	Exchange     string
	Queue        string
	UploadedKey  string
	ProcessedKey string
	Prefetch     int
}

// Broker owns the AMQP connection; consumer and publisher each open their
// own channel on it.
type Broker struct {
	conn   *amqp.Connection
	logger *zap.Logger
}

func Dial(ctx context.Context, url string, logger *zap.Logger) (*Broker, error) {
	conn, err := connectWithRetry(ctx, url, 10, 5*time.Second, logger)
	if err != nil {
		return nil, err
	}
	return &Broker{conn: conn, logger: logger}, nil
}

// connectWithRetry dials until it succeeds, maxRetries is reached or ctx
// ends.
func connectWithRetry(ctx context.Context, url string, maxRetries int, delay time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("connected to rabbitmq", zap.Int("attempt", i+1))
			return conn, nil
		}

		logger.Warn("rabbitmq dial failed", zap.Int("attempt", i+1), zap.Int("max", maxRetries), zap.Error(err))
		if i < maxRetries-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", maxRetries, err)
}

func declareExchange(ch *amqp.Channel, t Topology) error {
	err := ch.ExchangeDeclare(
		t.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	return nil
}

func (b *Broker) Close() error {
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn.Close()
	}
	return nil
}
