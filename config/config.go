// Package config builds the mailer configuration from the process environment.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/exam-mailer/env"
	"github.com/pure-golang/exam-mailer/logger"
	"github.com/pure-golang/exam-mailer/mail/smtp"
	"github.com/pure-golang/exam-mailer/metrics"
	"github.com/pure-golang/exam-mailer/storage/minio"
	"github.com/pure-golang/exam-mailer/tracing/jaeger"
)

// Attachment sources.
const (
	SourceFS = "fs"
	SourceS3 = "s3"
)

// Config is the immutable run configuration. The first seven fields are
// mandatory and have no defaults.
type Config struct {
	SenderEmail      string `envconfig:"SENDER_EMAIL" required:"true"`
	SenderPassword   string `envconfig:"SENDER_PASSWORD" required:"true"`
	SMTPServer       string `envconfig:"SMTP_SERVER" required:"true"`
	SMTPPort         int    `envconfig:"SMTP_PORT" required:"true"`
	RosterPath       string `envconfig:"RECIPIENT_CSV_PATH" required:"true"`
	AttachmentFolder string `envconfig:"RECIPIENT_ATTACHMENT_FOLDER" required:"true"`
	Subject          string `envconfig:"EMAIL_SUBJECT" required:"true"`

	Sheet            string `envconfig:"RECIPIENT_SHEET" default:"Sheet1"`
	AttachmentSource string `envconfig:"ATTACHMENT_SOURCE" default:"fs"` // fs or s3
	SMTPInsecure     bool   `envconfig:"SMTP_INSECURE" default:"false"`
	SMTPTimeout      int    `envconfig:"SMTP_TIMEOUT" default:"0"` // seconds, 0 keeps the dialer default
	DryRun           bool   `envconfig:"DRY_RUN" default:"false"`

	TracingEndpoint string `envconfig:"TRACING_ENDPOINT"`
	ServiceName     string `envconfig:"SERVICE_NAME" default:"exam-mailer"`
	AppVersion      string `envconfig:"APP_VERSION" default:"dev"`

	Log     logger.Config
	Metrics metrics.Config
}

// Error is returned when the environment does not describe a usable
// configuration. Missing lists every required variable that is unset or blank.
type Error struct {
	Missing []string
	Err     error
}

func (e *Error) Error() string {
	if len(e.Missing) > 0 {
		return "missing environment variables: " + strings.Join(e.Missing, ", ")
	}
	return "invalid configuration: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads the configuration. Nothing is defaulted for the required
// variables; every missing one is reported at once.
func Load() (Config, error) {
	env.LoadFile()

	var cfg Config
	if missing := env.MissingRequired(&cfg); len(missing) > 0 {
		return Config{}, &Error{Missing: missing}
	}

	if err := env.InitConfig(&cfg); err != nil {
		return Config{}, &Error{Err: err}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, &Error{Err: err}
	}

	return cfg, nil
}

// LoadStorage reads the S3 settings used when attachments live in a bucket.
func LoadStorage() (minio.Config, error) {
	var cfg minio.Config
	if missing := env.MissingRequired(&cfg); len(missing) > 0 {
		return minio.Config{}, &Error{Missing: missing}
	}
	if err := env.InitConfig(&cfg); err != nil {
		return minio.Config{}, &Error{Err: err}
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return errors.Errorf("SMTP_PORT out of range: %d", c.SMTPPort)
	}
	switch c.AttachmentSource {
	case SourceFS, SourceS3:
	default:
		return errors.Errorf("unknown ATTACHMENT_SOURCE %q", c.AttachmentSource)
	}
	if c.SMTPTimeout < 0 {
		return errors.Errorf("SMTP_TIMEOUT must not be negative: %d", c.SMTPTimeout)
	}
	return nil
}

// SMTP returns the transport settings. The sender address is also the login.
func (c Config) SMTP() smtp.Config {
	return smtp.Config{
		Host:     c.SMTPServer,
		Port:     c.SMTPPort,
		Username: c.SenderEmail,
		Password: c.SenderPassword,
		From:     c.SenderEmail,
		TLS:      true,
		Insecure: c.SMTPInsecure,
		Timeout:  time.Duration(c.SMTPTimeout) * time.Second,
	}
}

// Bucket splits the attachment folder into bucket and key prefix for the s3
// source. "s3://certs/2025/" gives ("certs", "2025").
func (c Config) Bucket() (bucket, prefix string) {
	location := strings.Trim(strings.TrimPrefix(c.AttachmentFolder, "s3://"), "/")
	bucket, prefix, _ = strings.Cut(location, "/")
	return bucket, prefix
}

// Jaeger returns the tracing exporter settings.
func (c Config) Jaeger() jaeger.Config {
	return jaeger.Config{
		EndPoint:    c.TracingEndpoint,
		ServiceName: c.ServiceName,
		AppVersion:  c.AppVersion,
	}
}

// LogValue keeps the password out of the logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("sender", c.SenderEmail),
		slog.String("smtp_server", c.SMTPServer),
		slog.Int("smtp_port", c.SMTPPort),
		slog.String("roster", c.RosterPath),
		slog.String("sheet", c.Sheet),
		slog.String("attachments", c.AttachmentFolder),
		slog.String("attachment_source", c.AttachmentSource),
		slog.Bool("dry_run", c.DryRun),
	)
}
