// internal/pkg/events/producer.go
//
// Package events publishes promotion purchase events to RabbitMQ so other marketplace
// services (notifications, analytics) can follow purchases without polling.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const DefaultExchange = "promotion_events"

// Routing keys
const (
	KeyPurchaseConfirmed = "promotion.purchase.confirmed"
	KeyPurchaseRedirect  = "promotion.purchase.redirect_pending"
	KeyPurchaseFailed    = "promotion.purchase.failed"
	KeyPurchaseObserved  = "promotion.purchase.observed"
	KeyWorkflowCancelled = "promotion.workflow.cancelled"
	KeyRedirectStale     = "promotion.purchase.redirect_stale"
)

// PurchaseEvent is the payload published for every purchase outcome.
type PurchaseEvent struct {
	WorkflowID   string    `json:"workflow_id"`
	Reference    string    `json:"reference,omitempty"`
	IdentityID   int64     `json:"identity_id"`
	ListingID    string    `json:"listing_id"`
	BoostType    string    `json:"boost_type,omitempty"`
	DurationDays int       `json:"duration_days,omitempty"`
	Price        float64   `json:"price,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	Outcome      string    `json:"outcome"`
	BoostID      string    `json:"boost_id,omitempty"`
	RedirectURL  string    `json:"redirect_url,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	Close()
}

// Producer holds the RabbitMQ connection and channel for publishing messages.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

// Fallback is a no-op publisher used when RabbitMQ is unavailable at startup.
type Fallback struct {
	logger *zap.Logger
}

func NewFallback(logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{logger: logger}
}

func (p *Fallback) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.logger.Debug("event publish skipped", zap.String("mode", "fallback"), zap.String("routing_key", routingKey))
	return nil
}

func (p *Fallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewProducer dials RabbitMQ and declares the durable topic exchange.
func NewProducer(amqpURL, exchange string, logger *zap.Logger) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := declare(ch, exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Producer{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

func declare(ch *amqp091.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	)
}

// Publish sends body as JSON with routingKey. A failed publish reopens the channel once.
func (p *Producer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         jsonBody,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	p.logger.Warn("publish failed, reopening channel",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", routingKey),
		zap.Error(err))

	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	if err := declare(ch, p.exchange); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Connect returns a Producer, or a Fallback when url is empty or the broker is down.
func Connect(amqpURL, exchange string, logger *zap.Logger) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		logger.Info("AMQP_URL not set, purchase events disabled")
		return NewFallback(logger)
	}
	p, err := NewProducer(amqpURL, exchange, logger)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable, using fallback", zap.Error(err))
		return NewFallback(logger)
	}
	return p
}
