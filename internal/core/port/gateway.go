package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// SignalChannel is the already-connected conversation channel supplied by
// the chat infrastructure.
type SignalChannel interface {
	SendCallSignal(ctx context.Context, signal domain.Signal) error
}
