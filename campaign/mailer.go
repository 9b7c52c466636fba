package campaign

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/exam-mailer/certificate"
	"github.com/pure-golang/exam-mailer/logger"
	"github.com/pure-golang/exam-mailer/mail"
)

// SendError is a failed delivery to one recipient.
type SendError struct {
	Recipient string
	Err       error
}

func (e *SendError) Error() string {
	return "failed to send email to " + e.Recipient + ": " + e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// SendObserver receives the duration of every delivery attempt.
type SendObserver interface {
	ObserveSend(d time.Duration, ok bool)
}

// MailerOptions contains options for creating a Mailer.
type MailerOptions struct {
	Observer SendObserver
}

// Mailer turns a notice and a certificate into one email and delivers it.
type Mailer struct {
	sender   mail.Sender
	from     string
	subject  string
	observer SendObserver
}

func NewMailer(sender mail.Sender, from, subject string, options *MailerOptions) *Mailer {
	if options == nil {
		options = &MailerOptions{}
	}
	return &Mailer{
		sender:   sender,
		from:     from,
		subject:  subject,
		observer: options.Observer,
	}
}

// Send delivers body to recipient with cert attached. It makes exactly one
// attempt; a failure is logged with the recipient and reported as false.
func (m *Mailer) Send(ctx context.Context, body, recipient string, cert certificate.Certificate) bool {
	if err := m.send(ctx, body, recipient, cert); err != nil {
		// The stack stays out of the status line.
		logger.FromContext(ctx).ErrorContext(ctx, "failed to send email", "email", recipient, "error", err.Error())
		return false
	}
	return true
}

func (m *Mailer) send(ctx context.Context, body, recipient string, cert certificate.Certificate) error {
	data, err := readCertificate(ctx, cert)
	if err != nil {
		return &SendError{Recipient: recipient, Err: err}
	}

	email := mail.Email{
		From:    mail.Address{Address: m.from},
		To:      []mail.Address{{Address: recipient}},
		Subject: m.subject,
		Body:    body,
		Attachments: []mail.Attachment{{
			Filename:    cert.Name,
			ContentType: mail.DefaultContentType,
			Data:        data,
		}},
	}

	start := time.Now()
	err = m.sender.Send(ctx, email)
	if m.observer != nil {
		m.observer.ObserveSend(time.Since(start), err == nil)
	}
	if err != nil {
		return &SendError{Recipient: recipient, Err: err}
	}
	return nil
}

// readCertificate loads the attachment at send time, so a file removed after
// it was located fails the send.
func readCertificate(ctx context.Context, cert certificate.Certificate) ([]byte, error) {
	rc, err := cert.Open(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read attachment")
	}
	defer rc.Close() // nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read attachment")
	}
	return data, nil
}
