package interfaces

import (
	"context"
	"monallopay/internal/models"
)

// EventEmitter publishes transfer events downstream.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event models.TransferEvent) error
	Close() error
}
