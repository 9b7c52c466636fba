// Package certificate finds the admission card file of a registrant.
package certificate

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pure-golang/exam-mailer/logger"
	"github.com/pure-golang/exam-mailer/roster"
)

var tracer = otel.Tracer("github.com/pure-golang/exam-mailer/certificate")

// ErrNotFound is returned by a Source when the certificate does not exist.
var ErrNotFound = errors.New("certificate not found")

// FileName is the name of the certificate issued for examID.
func FileName(examID string) string {
	return "cer_" + examID + ".txt"
}

// Source is where certificates live.
type Source interface {
	// Stat returns the certificate called name, or ErrNotFound.
	Stat(ctx context.Context, name string) (Certificate, error)

	// Open returns the content of the certificate called name.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Certificate is a located certificate file.
type Certificate struct {
	Name string // base name, used as the attachment file name
	Path string // where it was found, for logs

	source Source
}

// Open reads the certificate from the source it was found in.
func (c Certificate) Open(ctx context.Context) (io.ReadCloser, error) {
	if c.source == nil {
		return nil, errors.Errorf("certificate %s has no source", c.Name)
	}
	return c.source.Open(ctx, c.Name)
}

// Locator maps registrants onto their certificates.
type Locator struct {
	source Source
}

func NewLocator(source Source) *Locator {
	return &Locator{source: source}
}

// Locate returns the certificate of r. A row without exam id, a missing
// certificate or any error while looking for it is logged and reported as
// false.
func (l *Locator) Locate(ctx context.Context, r roster.Registrant) (Certificate, bool) {
	ctx, span := tracer.Start(ctx, "Certificate.Locate")
	defer span.End()

	if r.ExamID == "" {
		span.SetStatus(codes.Error, "no exam id")
		logger.FromContext(ctx).WarnContext(ctx, "no exam id, certificate cannot be located",
			"student_id", r.ID(),
			"email", r.Email,
		)
		return Certificate{}, false
	}

	name := FileName(r.ExamID)
	span.SetAttributes(attribute.String("certificate.name", name))

	cert, err := l.source.Stat(ctx, name)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("certificate.path", cert.Path))
		span.SetStatus(codes.Ok, "")
		return cert, true
	case errors.Is(err, ErrNotFound):
		span.SetStatus(codes.Error, "not found")
		logger.FromContext(ctx).WarnContext(ctx, "certificate file does not exist",
			"student_id", r.ID(),
			"file", name,
		)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.FromContextWithErr(ctx, err).ErrorContext(ctx, "failed to get certificate file",
			"student_id", r.ID(),
			"file", name,
		)
	}

	return Certificate{}, false
}
