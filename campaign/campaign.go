// Package campaign walks the roster and mails every registrant their
// certificate, one row at a time.
package campaign

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pure-golang/exam-mailer/certificate"
	"github.com/pure-golang/exam-mailer/logger"
	"github.com/pure-golang/exam-mailer/notice"
	"github.com/pure-golang/exam-mailer/roster"
)

var tracer = otel.Tracer("github.com/pure-golang/exam-mailer/campaign")

// Outcome is the terminal state of a row.
type Outcome int

const (
	SkippedNoEmail Outcome = iota + 1
	SkippedNoAttachment
	Failed
	Sent
)

func (o Outcome) String() string {
	switch o {
	case SkippedNoEmail:
		return "skipped_no_email"
	case SkippedNoAttachment:
		return "skipped_no_attachment"
	case Failed:
		return "failed"
	case Sent:
		return "sent"
	default:
		return "unknown"
	}
}

// Locator finds the certificate of a registrant.
type Locator interface {
	Locate(ctx context.Context, r roster.Registrant) (certificate.Certificate, bool)
}

// Deliverer sends one notice with its certificate.
type Deliverer interface {
	Send(ctx context.Context, body, recipient string, cert certificate.Certificate) bool
}

// OutcomeRecorder counts terminal states.
type OutcomeRecorder interface {
	Outcome(outcome string)
}

// RunnerOptions contains options for creating a Runner.
type RunnerOptions struct {
	Compose  func(roster.Registrant) string // defaults to notice.Compose
	Recorder OutcomeRecorder
	DryRun   bool // the mailer only pretends to deliver
}

// Runner processes the roster sequentially. Row failures never stop it.
type Runner struct {
	locator  Locator
	mailer   Deliverer
	compose  func(roster.Registrant) string
	recorder OutcomeRecorder
	dryRun   bool
}

func NewRunner(locator Locator, mailer Deliverer, options *RunnerOptions) *Runner {
	if options == nil {
		options = &RunnerOptions{}
	}
	compose := options.Compose
	if compose == nil {
		compose = notice.Compose
	}
	return &Runner{
		locator:  locator,
		mailer:   mailer,
		compose:  compose,
		recorder: options.Recorder,
		dryRun:   options.DryRun,
	}
}

// Result is what happened to one row.
type Result struct {
	Row     int
	Email   string
	Outcome Outcome
}

// Report summarizes a run.
type Report struct {
	Results             []Result
	Sent                int
	SkippedNoEmail      int
	SkippedNoAttachment int
	Failed              int
	Canceled            bool // rows after the last result were not attempted
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case Sent:
		r.Sent++
	case SkippedNoEmail:
		r.SkippedNoEmail++
	case SkippedNoAttachment:
		r.SkippedNoAttachment++
	case Failed:
		r.Failed++
	}
}

// Total is the number of rows that reached a terminal state.
func (r Report) Total() int {
	return len(r.Results)
}

func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("rows", r.Total()),
		slog.Int("sent", r.Sent),
		slog.Int("skipped_no_email", r.SkippedNoEmail),
		slog.Int("skipped_no_attachment", r.SkippedNoAttachment),
		slog.Int("failed", r.Failed),
		slog.Bool("canceled", r.Canceled),
	)
}

// Run processes registrants in order. Cancelling ctx stops the run before the
// next row.
func (r *Runner) Run(ctx context.Context, registrants []roster.Registrant) Report {
	ctx, span := tracer.Start(ctx, "Campaign.Run")
	defer span.End()

	span.SetAttributes(attribute.Int("campaign.rows", len(registrants)))

	var report Report
	for _, reg := range registrants {
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			logger.FromContextWithErr(ctx, err).WarnContext(ctx, "run canceled, remaining rows not attempted", "row", reg.Row)
			break
		}

		outcome := r.process(ctx, reg)
		report.add(Result{Row: reg.Row, Email: reg.Email, Outcome: outcome})
		if r.recorder != nil {
			r.recorder.Outcome(outcome.String())
		}
	}

	span.SetAttributes(
		attribute.Int("campaign.sent", report.Sent),
		attribute.Int("campaign.failed", report.Failed),
		attribute.Bool("campaign.canceled", report.Canceled),
	)
	if report.Canceled {
		span.SetStatus(codes.Error, "canceled")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return report
}

// process takes one row to its terminal state. Each state is logged once:
// here for no email and sent, by the locator and mailer otherwise. The row
// travels to them in the context logger.
func (r *Runner) process(ctx context.Context, reg roster.Registrant) Outcome {
	ctx, span := tracer.Start(ctx, "Campaign.Row")
	defer span.End()

	span.SetAttributes(attribute.Int("campaign.row", reg.Row))

	l := logger.FromContext(ctx).With("row", reg.Row)
	ctx = logger.NewContext(ctx, l)

	outcome := r.decide(ctx, l, reg)
	span.SetAttributes(attribute.String("campaign.outcome", outcome.String()))
	if outcome == Failed {
		span.SetStatus(codes.Error, "send failed")
	}
	return outcome
}

func (r *Runner) decide(ctx context.Context, l *slog.Logger, reg roster.Registrant) Outcome {
	if !reg.HasEmail() {
		l.InfoContext(ctx, fmt.Sprintf("Skipping row %d: no email address", reg.Row))
		return SkippedNoEmail
	}

	cert, ok := r.locator.Locate(ctx, reg)
	if !ok {
		return SkippedNoAttachment
	}

	if !r.mailer.Send(ctx, r.compose(reg), reg.Email, cert) {
		return Failed
	}

	if r.dryRun {
		l.InfoContext(ctx, "dry run, email not sent", "email", reg.Email)
	} else {
		l.InfoContext(ctx, "email successfully sent", "email", reg.Email)
	}
	return Sent
}
