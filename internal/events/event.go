// Package events publishes dispatch domain events to the message brokers.
package events

import (
	"context"
	"log"
	"time"

	"fieldops/internal/types"
)

// Event types. They double as RabbitMQ routing keys.
const (
	RouteOptimized     = "route.optimized"
	RouteApplied       = "route.applied"
	JobStatus          = "job.status"
	TechnicianLocation = "technician.location"
)

type Event struct {
	Type       string    `json:"type"`
	TenantID   types.ID  `json:"tenantId"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

func New(eventType string, tenantID types.ID, key string, data any) Event {
	return Event{
		Type:       eventType,
		TenantID:   tenantID,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Emit publishes e and only logs a failure. A nil publisher is a no-op.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Printf("event publish failed: type=%s key=%s err=%v", e.Type, e.Key, err)
	}
}
