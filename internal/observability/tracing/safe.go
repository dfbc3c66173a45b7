package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attributes that may carry voter identity never leave the process.
var blockedAttributeKeys = map[string]struct{}{
	"voter_key":      {},
	"voter.key":      {},
	"client_ip":      {},
	"http.client_ip": {},
	"net.peer.ip":    {},
}

// SafeAttributes drops identity-bearing attributes.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[strings.ToLower(string(attr.Key))]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError reduces err to its message with storage details cut off after the
// first wrapped segment, so SQL fragments are not recorded on spans.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx > 0 {
		msg = msg[:idx]
	}
	return errors.New(msg)
}
