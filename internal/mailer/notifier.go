package mailer

import (
	"context"

	"github.com/Fi44er/email_attestation_bot/utils"
	"github.com/hashicorp/go-multierror"
)

type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// AdminMail emails alerts to the operator.
type AdminMail struct {
	sender *Sender
	to     string
}

func NewAdminMail(sender *Sender, to string) *AdminMail {
	return &AdminMail{sender: sender, to: to}
}

func (a *AdminMail) Notify(ctx context.Context, subject, body string) error {
	return a.sender.SendMail(ctx, Mail{To: a.to, Subject: subject, Text: body})
}

// Fanout delivers an alert to every notifier. It logs the alert first, so
// it is never lost even when every channel fails.
type Fanout struct {
	notifiers []Notifier
	logger    *utils.Logger
}

func NewFanout(logger *utils.Logger, notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, logger: logger}
}

func (f *Fanout) Notify(ctx context.Context, subject, body string) error {
	f.logger.Warnf("notifyAdmin: %s: %s", subject, body)

	var result *multierror.Error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, subject, body); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		f.logger.Errorf("admin notification %q failed: %v", subject, err)
		return err
	}
	return nil
}
