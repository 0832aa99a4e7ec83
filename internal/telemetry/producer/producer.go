// Package producer streams telemetry events to a message broker (Kafka).
package producer

import (
	"context"

	"resultmarketing-crm/client/internal/telemetry"
)

// Producer emits telemetry events. Callers use it best-effort: log and ignore errors.
// It satisfies telemetry.EventEmitter so it can be combined with telemetry.Multi.
type Producer interface {
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close flushes and releases resources. Safe to call if already closed.
	Close() error
}
