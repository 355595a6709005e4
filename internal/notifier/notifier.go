package notifier

import (
	"context"

	"github.com/tareeqk/towing/internal/storage"
	"github.com/tareeqk/towing/internal/ws"
)

// Notifier delivers request lifecycle events to connected clients.
// Delivery is best effort: a lost notification never fails the
// operation that produced it.
type Notifier interface {
	Notify(ctx context.Context, event storage.Event)
}

// HubNotifier pushes events straight onto the local websocket hub.
// Used when Redis is not configured and a single instance serves all
// clients.
type HubNotifier struct {
	hub *ws.Hub
}

func NewHubNotifier(hub *ws.Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Notify(_ context.Context, event storage.Event) {
	n.hub.Broadcast(event)
}
