package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/config"
	"github.com/orchardshop/storefront/internal/domain"
)

// Notification kinds published after commit
const (
	KindOrderCreated  = "order.created"
	KindOrderPaid     = "order.paid"
	KindOrderRefunded = "order.refunded"
)

// Message is the notification payload consumed by the mailer
type Message struct {
	Kind       string    `json:"kind"`
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	TotalPrice float64   `json:"total_price"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends order notifications over AMQP. Publishing is
// fire-and-forget: a broker failure is logged, never surfaced to the caller,
// because notifications do not affect order correctness.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher connects to the broker and declares the notification exchange
func NewPublisher(cfg config.AMQPConfig, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		logger:   logger,
	}, nil
}

// PublishOrderEvent publishes a notification for the given order
func (p *Publisher) PublishOrderEvent(ctx context.Context, kind string, order *domain.Order) {
	if p == nil {
		return
	}

	body, err := json.Marshal(Message{
		Kind:       kind,
		OrderID:    order.ID.String(),
		UserID:     order.UserID.String(),
		TotalPrice: order.TotalPrice,
		OccurredAt: time.Now(),
	})
	if err != nil {
		p.logger.Error("Failed to marshal notification", zap.Error(err))
		return
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		kind, // routing key
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Warn("Failed to publish notification",
			zap.String("kind", kind),
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

// Close shuts down the channel and connection
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
