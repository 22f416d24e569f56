package supervisor

import (
	"context"
	"log/slog"

	"github.com/you/groupwatch/internal/core"
	"github.com/you/groupwatch/internal/profile"
)

// Passthrough logs every event without filtering or forwarding.
type Passthrough struct{}

func (Passthrough) Handle(_ context.Context, ev core.InboundEvent) bool {
	attrs := []any{
		"account", ev.Account,
		"kind", ev.Kind.String(),
		"chat_id", ev.GroupID(),
		"chat", ev.ChatTitle,
		"sender_id", ev.SenderID,
		"text", ev.Text,
	}
	if ev.Sender != nil {
		attrs = append(attrs,
			"sender_kind", ev.Sender.Kind.String(),
			"username", ev.Sender.Username,
			"name", profile.Nickname(ev.Sender.FirstName, ev.Sender.LastName),
		)
	}
	slog.Info("passthrough: message", attrs...)
	return true
}
