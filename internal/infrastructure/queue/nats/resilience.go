package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/it-support-rag/internal/infrastructure/resilience"
)

var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

// classifyNATSError retries connection-level failures; everything else
// follows the shared gateway classifier.
func classifyNATSError(err error) resilience.ErrorClassification {
	for _, target := range transientNATSErrors {
		if errors.Is(err, target) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	return resilience.ClassifyError(err)
}
