package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/slotbot/internal/booking"
)

// Multi fans a notification out to every sink and reports whether all of
// them delivered.
type Multi []booking.Notifier

func (m Multi) Notify(ctx context.Context, details map[string]string, referenceURL string) bool {
	ok := true
	for _, n := range m {
		if !n.Notify(ctx, details, referenceURL) {
			ok = false
		}
	}
	return ok
}

// Webhooks builds the admin and optional client webhook sinks. A client URL
// equal to the admin URL is not notified twice.
func Webhooks(admin, client string, log zerolog.Logger) Multi {
	var m Multi
	if admin != "" {
		m = append(m, NewDiscord(admin, log.With().Str("webhook", "admin").Logger()))
	}
	if client != "" && client != admin {
		m = append(m, NewDiscord(client, log.With().Str("webhook", "client").Logger()))
	}
	return m
}
