// Package push defines the transport contract for delivering notifications.
// The concrete backend (FCM or otherwise) lives outside this module; the
// pipeline only depends on this interface.
package push

import (
	"context"
	"errors"
)

// MaxTokensPerSend is the transport fan-out ceiling per multicast call.
const MaxTokensPerSend = 500

// ErrUnavailable signals a setup-level transport failure (unreachable,
// unauthenticated). Unlike per-recipient failures it aborts the whole
// dispatch call.
var ErrUnavailable = errors.New("push transport unavailable")

// Message is a transport-agnostic notification payload.
type Message struct {
	Title    string
	Body     string
	Priority string // "normal", "high" or "max"
	Data     map[string]string
}

// SendResult is the per-recipient outcome of a multicast send.
type SendResult struct {
	Token string
	Err   error // nil on success
}

type Transport interface {
	// Send delivers to a single device and returns the transport message id.
	Send(ctx context.Context, token string, msg Message) (string, error)
	// SendMulticast delivers to up to MaxTokensPerSend devices. The
	// returned slice has one entry per token. A non-nil error means the
	// whole call failed and no per-recipient results are available.
	SendMulticast(ctx context.Context, tokens []string, msg Message) ([]SendResult, error)
	// SendToTopic delivers to a named broadcast topic.
	SendToTopic(ctx context.Context, topic string, msg Message) (string, error)
}
