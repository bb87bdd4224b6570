// Package notify renders and sends the transactional email for domain
// lifecycle events.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/dealersites/internal/metrics"
)

type Notifier struct {
	mailer    Mailer
	from      string
	templates *Templates
	logger    zerolog.Logger
}

func NewNotifier(mailer Mailer, from string, logger zerolog.Logger) (*Notifier, error) {
	t, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	return &Notifier{
		mailer:    mailer,
		from:      from,
		templates: t,
		logger:    logger.With().Str("component", "notify").Logger(),
	}, nil
}

// Send renders the template for p and delivers it to recipient.
func (n *Notifier) Send(ctx context.Context, recipient string, p Params) error {
	if recipient == "" {
		return fmt.Errorf("send %s: no recipient", p.Kind())
	}
	body, err := n.templates.Render(p)
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, Message{
		From:    n.from,
		To:      []string{recipient},
		Subject: p.Subject(),
		HTML:    body,
	})
}

// Notify is Send for callers that must not fail on notification errors.
// Failures are logged and counted.
func (n *Notifier) Notify(ctx context.Context, recipient string, p Params) {
	if err := n.Send(ctx, recipient, p); err != nil {
		metrics.NotificationsSent.WithLabelValues(string(p.Kind()), "error").Inc()
		n.logger.Warn().Err(err).Str("kind", string(p.Kind())).Str("recipient", recipient).Msg("notification failed")
		return
	}
	metrics.NotificationsSent.WithLabelValues(string(p.Kind()), "sent").Inc()
}
