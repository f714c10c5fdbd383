package notification

import (
	"context"
	"log/slog"
	"time"

	"identity-session-engine/internal/devotp"
)

// DevNotifier keeps codes in a devotp.Store instead of delivering them.
type DevNotifier struct {
	store   devotp.Store
	channel Channel
	log     *slog.Logger
}

// NewDevNotifier returns a DevNotifier that reports channel as its medium.
func NewDevNotifier(store devotp.Store, channel Channel, log *slog.Logger) *DevNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &DevNotifier{store: store, channel: channel, log: log}
}

func (d *DevNotifier) Channel() Channel { return d.channel }

func (d *DevNotifier) SendVerificationCode(ctx context.Context, destination, _ string, code string, expiresAt time.Time) error {
	d.store.Put(ctx, destination, code, expiresAt)
	d.log.Warn("verification code kept in dev store", "channel", string(d.channel))
	return nil
}
