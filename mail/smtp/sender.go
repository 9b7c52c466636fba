package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-gomail/gomail"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/exam-mailer/mail"
)

var _ mail.Sender = (*Sender)(nil)

var tracer = otel.Tracer("github.com/pure-golang/exam-mailer/mail/smtp")

// ErrNoSTARTTLS is returned when TLS is required but the server does not
// offer the STARTTLS extension.
var ErrNoSTARTTLS = errors.New("server does not support STARTTLS")

// Sender implements mail.Sender using net/smtp. Every Send opens and closes
// its own session.
type Sender struct {
	mx     sync.Mutex
	cfg    Config
	closed bool
}

// NewSender creates a new SMTP Sender.
func NewSender(cfg Config) *Sender {
	return &Sender{
		cfg: cfg,
	}
}

// Send sends one or more emails, stopping at the first failure.
func (s *Sender) Send(ctx context.Context, emails ...mail.Email) error {
	for _, email := range emails {
		if err := s.send(ctx, email); err != nil {
			return err
		}
	}
	return nil
}

// send sends a single email.
func (s *Sender) send(ctx context.Context, email mail.Email) error {
	ctx, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.from", email.From.Address),
		attribute.String("smtp.subject", email.Subject),
		attribute.Int("smtp.to_count", len(email.To)),
		attribute.Int("smtp.attachments", len(email.Attachments)),
		attribute.String("smtp.host", s.cfg.Host),
		attribute.Int("smtp.port", s.cfg.Port),
		attribute.Bool("smtp.tls", s.cfg.TLS),
	)

	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		span.SetStatus(codes.Error, "sender is closed")
		return errors.New("sender is closed")
	}

	from := email.From.Address
	if from == "" {
		from = s.cfg.From
	}
	if from == "" {
		return errors.New("no from address specified")
	}
	email.From.Address = from

	to := s.getEmailAddresses(email.To)
	if len(to) == 0 {
		return errors.New("no recipients specified")
	}

	msg, err := s.buildMessage(email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.deliver(ctx, addr, auth, from, to, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, "failed to send email")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// deliver runs one SMTP session: connect, STARTTLS, AUTH, MAIL, RCPT, DATA,
// QUIT.
func (s *Sender) deliver(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	ctx, span := tracer.Start(ctx, "SMTP.Session")
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.address", addr),
		attribute.Int("smtp.recipients_count", len(to)),
		attribute.Bool("smtp.auth", auth != nil),
	)

	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, "context canceled")
		return ctx.Err()
	default:
	}

	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to connect")
		return errors.Wrap(err, "failed to connect to SMTP server")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to greet")
		return errors.Wrap(err, "failed to connect to SMTP server")
	}
	// Close after a successful Quit only reports the already closed connection.
	defer client.Close() // nolint:errcheck

	if s.cfg.TLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			span.SetStatus(codes.Error, "starttls not offered")
			return ErrNoSTARTTLS
		}

		tlsConfig := &tls.Config{
			ServerName:         s.cfg.Host,
			InsecureSkipVerify: s.cfg.Insecure, // #nosec G402 -- controlled by config, user's responsibility
			MinVersion:         tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to start TLS")
			return errors.Wrap(err, "failed to start TLS")
		}
		span.SetAttributes(attribute.Bool("smtp.starttls", true))
	}

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to authenticate")
			return errors.Wrap(err, "failed to authenticate")
		}
	}

	if err := client.Mail(from); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set sender")
		return errors.Wrap(err, "failed to set sender")
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to set recipient")
			return errors.Wrapf(err, "failed to set recipient: %s", rcpt)
		}
	}

	writer, err := client.Data()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get data writer")
		return errors.Wrap(err, "failed to get data writer")
	}

	if _, err := writer.Write(msg); err != nil {
		_ = writer.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write message")
		return errors.Wrap(err, "failed to write message")
	}

	// The server accepts or rejects the message in reply to the final dot.
	if err := writer.Close(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message rejected")
		return errors.Wrap(err, "message rejected")
	}

	if err := client.Quit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to quit")
		return errors.Wrap(err, "failed to close SMTP session")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// buildMessage renders the email as RFC 5322 bytes. A body with attachments
// becomes multipart/mixed; attachments are base64 encoded.
func (s *Sender) buildMessage(email mail.Email) ([]byte, error) {
	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))

	m.SetHeader("From", s.formatAddress(m, email.From))
	m.SetHeader("To", s.formatAddressList(m, email.To)...)
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-ID", messageID(email.From.Address))

	for k, v := range email.Headers {
		m.SetHeader(k, v)
	}

	m.SetBody("text/plain", email.Body)

	for _, a := range email.Attachments {
		data := a.Data
		contentType := a.ContentType
		if contentType == "" {
			contentType = mail.DefaultContentType
		}
		m.Attach(a.Filename,
			gomail.SetHeader(map[string][]string{
				"Content-Type": {contentType + `; name="` + a.Filename + `"`},
			}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to build message")
	}
	return buf.Bytes(), nil
}

// formatAddress formats a single address.
func (s *Sender) formatAddress(m *gomail.Message, addr mail.Address) string {
	if addr.Name == "" {
		return addr.Address
	}
	return m.FormatAddress(addr.Address, addr.Name)
}

// formatAddressList formats a list of addresses.
func (s *Sender) formatAddressList(m *gomail.Message, addrs []mail.Address) []string {
	formatted := make([]string, len(addrs))
	for i, addr := range addrs {
		formatted[i] = s.formatAddress(m, addr)
	}
	return formatted
}

// getEmailAddresses extracts non-blank email addresses.
func (s *Sender) getEmailAddresses(addrs []mail.Address) []string {
	result := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if a := strings.TrimSpace(addr.Address); a != "" {
			result = append(result, a)
		}
	}
	return result
}

func messageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndexByte(from, '@'); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

// Close closes the sender.
func (s *Sender) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.closed = true
	return nil
}
