package mail

import (
	"context"
	"io"
)

// Sender delivers emails.
type Sender interface {
	Send(ctx context.Context, emails ...Email) error
	io.Closer
}

// Email represents an email message.
type Email struct {
	// Envelope
	From    Address
	To      []Address
	Subject string

	// Headers
	Headers map[string]string

	// Body
	Body string // Plain text body

	Attachments []Attachment
}

// Address represents an email address.
type Address struct {
	Name    string // "Somchai Dee"
	Address string // "somchai@example.com"
}

// Attachment is a file carried in the message, base64 encoded on the wire.
type Attachment struct {
	Filename    string // base name shown to the recipient
	ContentType string // defaults to application/octet-stream
	Data        []byte
}

// DefaultContentType is used for attachments without a content type.
const DefaultContentType = "application/octet-stream"
