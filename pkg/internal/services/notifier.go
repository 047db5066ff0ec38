package services

import (
	"context"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/bus"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type Notification struct {
	Topic    string         `json:"topic"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Metadata map[string]any `json:"metadata"`
	Priority int            `json:"priority"`
}

// Notifier dispatches notifications to users through whatever delivery
// channels they have.
type Notifier interface {
	NotifyUserBatch(ctx context.Context, users []uint, notification Notification) error
}

type notifyRequest struct {
	UserIDs      []uint       `json:"user_ids"`
	Notification Notification `json:"notification"`
}

// BusNotifier hands notifications to the delivery service over the bus.
type BusNotifier struct {
	bus     *bus.Bus
	subject string
}

func NewBusNotifier(b *bus.Bus, subject string) *BusNotifier {
	return &BusNotifier{bus: b, subject: subject}
}

func (v *BusNotifier) NotifyUserBatch(ctx context.Context, users []uint, notification Notification) error {
	users = lo.Uniq(users)
	if len(users) == 0 {
		return nil
	}
	return v.bus.Publish(ctx, v.subject, notifyRequest{UserIDs: users, Notification: notification})
}

// LogNotifier only logs; it stands in when no bus is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyUserBatch(_ context.Context, users []uint, notification Notification) error {
	log.Info().
		Str("topic", notification.Topic).
		Int("recipients", len(users)).
		Msg("Notification dispatch skipped, no delivery bus configured.")
	return nil
}
