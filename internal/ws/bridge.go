package ws

import (
	"context"
	"fmt"

	"streetlight_monitor/internal/engine"
)

// Bridge implements engine.Sink and broadcasts day reports to the hub.
type Bridge struct {
	hub *Hub
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

func (b *Bridge) Publish(ctx context.Context, r engine.DayReport) error {
	msg, err := NewEnvelope(TypeDayReport, r)
	if err != nil {
		return fmt.Errorf("marshaling day report: %w", err)
	}
	b.hub.Broadcast(r.Area, msg)
	return nil
}

var _ engine.Sink = (*Bridge)(nil)
