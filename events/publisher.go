package events

import (
	"context"
	"encoding/json"
	"time"

	"storefront-service/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types emitted by the inventory service.
const (
	TypeLowStock        = "product.low_stock"
	TypeRestockResolved = "product.restock_resolved"
)

// Event is a restock-related domain event.
type Event struct {
	ID                string    `json:"event_id"`
	Type              string    `json:"event_type"`
	ProductID         uint      `json:"product_id"`
	Name              string    `json:"name"`
	AvailableQuantity int       `json:"available_quantity"`
	TotalQuantity     int       `json:"total_quantity"`
	Priority          string    `json:"priority,omitempty"`
	StockPercent      float64   `json:"stock_percent"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// NewEvent builds an event of eventType describing the product's current stock.
func NewEvent(eventType string, p *models.Product, priority string, stockPercent float64) Event {
	return Event{
		ID:                uuid.New().String(),
		Type:              eventType,
		ProductID:         p.ID,
		Name:              p.Name,
		AvailableQuantity: p.AvailableQuantity,
		TotalQuantity:     p.TotalQuantity,
		Priority:          priority,
		StockPercent:      stockPercent,
		OccurredAt:        time.Now().UTC(),
	}
}

func (e Event) payload() ([]byte, error) {
	return json.Marshal(e)
}

func (e Event) attributes() map[string]string {
	return map[string]string{"event_type": e.Type}
}

// Publisher delivers events to a downstream channel.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// LogPublisher only logs events. It is used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info("inventory event",
		zap.String("event_type", evt.Type),
		zap.Uint("product_id", evt.ProductID),
		zap.Int("available_quantity", evt.AvailableQuantity),
		zap.String("priority", evt.Priority),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
