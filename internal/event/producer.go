package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// TopicCart carries every cart activity event, keyed by cart.
const TopicCart = "storefront.cart"

// Event types.
const (
	TypeCartUpdated = "cart.updated"
	TypeCartCleared = "cart.cleared"
)

const (
	aggregateTypeCart = "cart"
	aggregateIDCart   = "cart"
	sourceStorefront  = "storefront"
)

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	Items      []domain.CartLineItem `json:"items"`
	ItemCount  int                   `json:"item_count"`
	TotalPrice decimal.Decimal       `json:"total_price"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct{}

// Publisher announces cart activity. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishCartUpdated(ctx context.Context, cart *domain.Cart) error
	PublishCartCleared(ctx context.Context) error
}

// NoopPublisher drops every event. It is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishCartUpdated(context.Context, *domain.Cart) error { return nil }
func (NoopPublisher) PublishCartCleared(context.Context) error { return nil }

type eventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes cart events to Kafka.
type Producer struct {
	kafka  eventPublisher
	logger *slog.Logger
}

// NewProducer creates a new cart event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event with the full item list.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	items := make([]domain.CartLineItem, len(cart.Items))
	copy(items, cart.Items)

	data := CartUpdatedData{
		Items:      items,
		ItemCount:  cart.ItemCount(),
		TotalPrice: cart.TotalPrice(),
	}
	if err := p.publish(ctx, TypeCartUpdated, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.Int("item_count", data.ItemCount),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context) error {
	if err := p.publish(ctx, TypeCartCleared, CartClearedData{}); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.cleared event")
	return nil
}

func (p *Producer) publish(ctx context.Context, eventType string, data any) error {
	event, err := pkgkafka.NewEvent(eventType, aggregateIDCart, aggregateTypeCart, sourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, TopicCart, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}
