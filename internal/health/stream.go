package health

import (
	"context"
	"errors"
)

// ErrStreamDisconnected is returned while the change-stream client is between
// connections.
var ErrStreamDisconnected = errors.New("change stream is not connected")

// connectionState is implemented by *ingest.Client.
type connectionState interface {
	IsConnected() bool
}

// StreamChecker reports whether the change-stream consumer holds a live
// connection.
type StreamChecker struct {
	client connectionState
}

// NewStreamChecker creates a checker for the change-stream client.
func NewStreamChecker(client connectionState) *StreamChecker {
	return &StreamChecker{client: client}
}

// HealthCheck returns ErrStreamDisconnected when the client is reconnecting.
func (s *StreamChecker) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.client.IsConnected() {
		return ErrStreamDisconnected
	}
	return nil
}
