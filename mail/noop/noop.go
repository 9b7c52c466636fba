package noop

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pure-golang/exam-mailer/mail"
)

var _ mail.Sender = (*Sender)(nil)

// Sender accepts emails without delivering them. It backs dry runs.
type Sender struct {
	mx     sync.Mutex
	logger *slog.Logger
	sent   int
	closed bool
}

// NewSender creates a new no-op Sender. A nil logger disables logging.
func NewSender(logger *slog.Logger) *Sender {
	return &Sender{logger: logger}
}

// Send discards emails, logging what would have been sent at debug level.
func (n *Sender) Send(ctx context.Context, emails ...mail.Email) error {
	n.mx.Lock()
	defer n.mx.Unlock()

	for _, email := range emails {
		n.sent++
		if n.logger == nil {
			continue
		}
		attachments := make([]string, 0, len(email.Attachments))
		for _, a := range email.Attachments {
			attachments = append(attachments, a.Filename)
		}
		n.logger.DebugContext(ctx, "email discarded",
			"to", addresses(email.To),
			"subject", email.Subject,
			"attachments", attachments,
		)
	}
	return nil
}

// Sent returns the number of emails accepted so far.
func (n *Sender) Sent() int {
	n.mx.Lock()
	defer n.mx.Unlock()
	return n.sent
}

// Close is a no-op.
func (n *Sender) Close() error {
	n.mx.Lock()
	defer n.mx.Unlock()
	n.closed = true
	return nil
}

func addresses(list []mail.Address) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Address
	}
	return out
}
