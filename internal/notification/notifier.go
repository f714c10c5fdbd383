// Package notification delivers verification codes over email, SMS or an in-memory dev store.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"identity-session-engine/internal/config"
	"identity-session-engine/internal/devotp"
)

// Channel is the medium a notifier delivers to.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notifier delivers a verification code. Delivery either succeeds or returns an error;
// implementations do not retry and never log the code.
type Notifier interface {
	Channel() Channel
	SendVerificationCode(ctx context.Context, destination, displayName, code string, expiresAt time.Time) error
}

// New builds the notifier selected by cfg.Notifier. When dev OTP mode is on, codes are
// also kept in store so GET /dev/otp can return them.
func New(cfg *config.Config, store devotp.Store, log *slog.Logger) (Notifier, error) {
	if log == nil {
		log = slog.Default()
	}
	var n Notifier
	switch cfg.Notifier {
	case "", "smtp":
		n = NewSMTPNotifier(SMTPSettings{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		})
	case "sms":
		n = NewSMSLocalNotifier(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	case "dev":
		if store == nil {
			return nil, fmt.Errorf("notification: dev notifier needs a code store")
		}
		return NewDevNotifier(store, ChannelEmail, log), nil
	default:
		return nil, fmt.Errorf("notification: unknown notifier %q", cfg.Notifier)
	}
	if cfg.OTPReturnToClient && store != nil {
		n = &teeNotifier{next: n, store: store}
	}
	return n, nil
}

// teeNotifier delivers through next and also records the code in the dev store.
type teeNotifier struct {
	next  Notifier
	store devotp.Store
}

func (t *teeNotifier) Channel() Channel { return t.next.Channel() }

func (t *teeNotifier) SendVerificationCode(ctx context.Context, destination, displayName, code string, expiresAt time.Time) error {
	t.store.Put(ctx, destination, code, expiresAt)
	return t.next.SendVerificationCode(ctx, destination, displayName, code, expiresAt)
}
