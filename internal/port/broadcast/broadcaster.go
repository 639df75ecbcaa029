// Package broadcast defines the port for pushing real-time events to
// connected observers (dashboards, CLIs watching a run).
package broadcast

import "context"

// Broadcaster sends a typed event to all connected clients.
// Implementations must never block the caller on slow consumers.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
