// Command exam-mailer mails every registrant of the roster their admission
// certificate. It is configured through the environment only.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/pure-golang/exam-mailer/campaign"
	"github.com/pure-golang/exam-mailer/certificate"
	"github.com/pure-golang/exam-mailer/config"
	"github.com/pure-golang/exam-mailer/logger"
	"github.com/pure-golang/exam-mailer/mail"
	"github.com/pure-golang/exam-mailer/mail/noop"
	"github.com/pure-golang/exam-mailer/mail/smtp"
	"github.com/pure-golang/exam-mailer/metrics"
	"github.com/pure-golang/exam-mailer/roster"
	"github.com/pure-golang/exam-mailer/storage/minio"
	"github.com/pure-golang/exam-mailer/tracing"
	"github.com/pure-golang/exam-mailer/tracing/jaeger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Fatal problems are reported and the process still exits normally.
	run(ctx, os.Stdout)
}

// run writes every status line to stdout.
func run(ctx context.Context, stdout io.Writer) {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(stdout, logger.Config{Provider: logger.ProviderStdText, Level: logger.INFO})
		logger.WithErr(err).Error("environment setup issue")
		return
	}

	l := logger.Init(stdout, cfg.Log).With("run_id", uuid.NewString())
	ctx = logger.NewContext(ctx, l)
	l.DebugContext(ctx, "configuration loaded", "config", cfg)

	tp := initTracing(ctx, cfg)
	defer closeQuietly(ctx, "tracing provider", tp)

	recorder := metrics.New(cfg.Metrics)
	if cfg.Metrics.PushURL != "" {
		if err := recorder.InitRuntime(); err != nil {
			logger.FromContextWithErr(ctx, err).WarnContext(ctx, "runtime metrics disabled")
		}
		defer func() {
			if err := recorder.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.FromContextWithErr(ctx, err).WarnContext(ctx, "failed to stop metrics")
			}
		}()
	}
	defer func() {
		if err := recorder.Push(context.WithoutCancel(ctx)); err != nil {
			logger.FromContextWithErr(ctx, err).WarnContext(ctx, "failed to push metrics")
		}
	}()

	registrants, err := roster.Load(ctx, cfg.RosterPath, cfg.Sheet)
	if err != nil {
		logger.FromContextWithErr(ctx, err).ErrorContext(ctx, "failed to load roster", "path", cfg.RosterPath)
		return
	}
	l.InfoContext(ctx, "roster loaded", "path", cfg.RosterPath, "rows", len(registrants))

	source, closer, err := newSource(cfg, l)
	if err != nil {
		logger.FromContextWithErr(ctx, err).ErrorContext(ctx, "failed to open attachment source", "source", cfg.AttachmentSource)
		return
	}
	defer closeQuietly(ctx, "attachment source", closer)

	sender := newSender(cfg, l)
	defer closeQuietly(ctx, "sender", sender)

	runner := campaign.NewRunner(
		certificate.NewLocator(source),
		campaign.NewMailer(sender, cfg.SenderEmail, cfg.Subject, &campaign.MailerOptions{Observer: recorder}),
		&campaign.RunnerOptions{Recorder: recorder, DryRun: cfg.DryRun},
	)

	report := runner.Run(ctx, registrants)
	l.InfoContext(ctx, "run finished", "report", report)
}

func initTracing(ctx context.Context, cfg config.Config) tracing.Provider {
	if cfg.TracingEndpoint == "" {
		return tracing.NoopProvider{}
	}

	tp, err := tracing.Init(jaeger.NewProviderBuilder(cfg.Jaeger()))
	if err != nil {
		logger.FromContextWithErr(ctx, err).WarnContext(ctx, "tracing disabled")
	}
	return tp
}

func newSource(cfg config.Config, l *slog.Logger) (certificate.Source, io.Closer, error) {
	if cfg.AttachmentSource != config.SourceS3 {
		return certificate.NewDir(cfg.AttachmentFolder), nopCloser{}, nil
	}

	s3cfg, err := config.LoadStorage()
	if err != nil {
		return nil, nil, err
	}

	bucket, prefix := cfg.Bucket()
	client, err := minio.NewClient(s3cfg, &minio.ClientOptions{Logger: l, Bucket: bucket})
	if err != nil {
		return nil, nil, err
	}

	store := minio.NewStorage(client, &minio.StorageOptions{Logger: l})
	return certificate.NewBucket(store, bucket, prefix), store, nil
}

func newSender(cfg config.Config, l *slog.Logger) mail.Sender {
	if cfg.DryRun {
		return noop.NewSender(l)
	}
	return smtp.NewSender(cfg.SMTP())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func closeQuietly(ctx context.Context, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.FromContextWithErr(ctx, err).WarnContext(ctx, "failed to close "+what)
	}
}
