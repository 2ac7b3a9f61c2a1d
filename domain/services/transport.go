package services

import (
	"context"

	"github.com/YasiruR/didcomm-engine/domain/models"
)

/* client-server interfaces */

type Client interface {
	// Send transmits the message but marshalling should be independent of the
	// transport layer to support multiple encoding mechanisms
	Send(ctx context.Context, typ string, data []byte, endpoint string) error
}

type Server interface {
	// Start should fail for the underlying transport failures
	Start() error
	// AddHandler creates a stream with a notifier for incoming messages.
	// Handlers with synchronous responses can be added by setting async
	// flag to false and handling reply channel in models.Message
	AddHandler(msgType string, notifier chan models.Message, async bool)
	RemoveHandler(msgType string)
	Stop() error
}

type Notifier interface {
	Publish(topic string, payload interface{})
}
