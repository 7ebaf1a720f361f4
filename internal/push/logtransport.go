package push

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogTransport is a stand-in backend for environments without push
// credentials. Every send is acknowledged and written to the log, so the
// rest of the pipeline behaves exactly as it would against a real backend.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, token string, msg Message) (string, error) {
	id := uuid.NewString()
	t.logger.Info("push send", "message_id", id, "title", msg.Title, "priority", msg.Priority)
	return id, nil
}

func (t *LogTransport) SendMulticast(ctx context.Context, tokens []string, msg Message) ([]SendResult, error) {
	t.logger.Info("push multicast", "recipients", len(tokens), "title", msg.Title, "priority", msg.Priority)
	results := make([]SendResult, len(tokens))
	for i, tok := range tokens {
		results[i] = SendResult{Token: tok}
	}
	return results, nil
}

func (t *LogTransport) SendToTopic(ctx context.Context, topic string, msg Message) (string, error) {
	id := uuid.NewString()
	t.logger.Info("push topic broadcast", "message_id", id, "topic", topic, "title", msg.Title)
	return id, nil
}
