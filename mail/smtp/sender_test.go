package smtp

import (
	"context"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	netmail "net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/exam-mailer/mail"
)

func certificateEmail() mail.Email {
	return mail.Email{
		From:    mail.Address{Address: "contest@example.com"},
		To:      []mail.Address{{Address: "somchai@example.com"}},
		Subject: "Exam admission card",
		Body:    "ถึง Somchai Dee\nรหัสประจำตัวของผู้เข้าสอบ: A123",
		Attachments: []mail.Attachment{{
			Filename: "cer_A123.txt",
			Data:     []byte("admission card A123\n"),
		}},
	}
}

type parsedPart struct {
	header multipart.Part
	body   []byte
}

// parseMessage splits a multipart/mixed message into its parts. Quoted
// printable parts are decoded by the multipart reader.
func parseMessage(t *testing.T, raw string) (*netmail.Message, []parsedPart) {
	t.Helper()

	msg, err := netmail.ReadMessage(strings.NewReader(raw))
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	var parts []parsedPart
	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(p)
		require.NoError(t, err)
		parts = append(parts, parsedPart{header: *p, body: body})
	}
	return msg, parts
}

func TestSender_BuildMessage_TextAndAttachment(t *testing.T) {
	sender := NewSender(Config{Host: "smtp.example.com"})

	raw, err := sender.buildMessage(certificateEmail())
	require.NoError(t, err)

	msg, parts := parseMessage(t, string(raw))

	assert.Equal(t, "contest@example.com", msg.Header.Get("From"))
	assert.Equal(t, "somchai@example.com", msg.Header.Get("To"))
	assert.Equal(t, "Exam admission card", msg.Header.Get("Subject"))
	assert.Equal(t, "1.0", msg.Header.Get("Mime-Version"))
	assert.NotEmpty(t, msg.Header.Get("Date"))
	assert.True(t, strings.HasSuffix(msg.Header.Get("Message-Id"), "@example.com>"))

	require.Len(t, parts, 2)

	text := parts[0]
	assert.True(t, strings.HasPrefix(text.header.Header.Get("Content-Type"), "text/plain"))
	assert.Contains(t, text.header.Header.Get("Content-Type"), "UTF-8")
	assert.Equal(t, "ถึง Somchai Dee\nรหัสประจำตัวของผู้เข้าสอบ: A123", strings.ReplaceAll(string(text.body), "\r\n", "\n"))

	file := parts[1]
	assert.Equal(t, "base64", file.header.Header.Get("Content-Transfer-Encoding"))
	assert.True(t, strings.HasPrefix(file.header.Header.Get("Content-Type"), "application/octet-stream"))
	assert.Equal(t, "cer_A123.txt", file.header.FileName())
	assert.True(t, strings.HasPrefix(file.header.Header.Get("Content-Disposition"), "attachment"))

	decoded, err := base64.StdEncoding.DecodeString(strings.NewReplacer("\r", "", "\n", "").Replace(string(file.body)))
	require.NoError(t, err)
	assert.Equal(t, "admission card A123\n", string(decoded))
}

func TestSender_BuildMessage_CustomContentTypeAndHeaders(t *testing.T) {
	sender := NewSender(Config{})
	email := certificateEmail()
	email.Attachments[0].ContentType = "text/plain"
	email.Headers = map[string]string{"X-Exam-Id": "A123"}

	raw, err := sender.buildMessage(email)
	require.NoError(t, err)

	msg, parts := parseMessage(t, string(raw))
	assert.Equal(t, "A123", msg.Header.Get("X-Exam-Id"))
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[1].header.Header.Get("Content-Type"), "text/plain"))
}

func TestSender_BuildMessage_NonASCIISubjectIsEncoded(t *testing.T) {
	sender := NewSender(Config{})
	email := certificateEmail()
	email.Subject = "บัตรประจำตัวผู้เข้าสอบ"

	raw, err := sender.buildMessage(email)
	require.NoError(t, err)

	msg, _ := parseMessage(t, string(raw))
	encoded := msg.Header.Get("Subject")
	assert.True(t, strings.HasPrefix(encoded, "=?UTF-8?"))

	decoded, err := new(mime.WordDecoder).DecodeHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, "บัตรประจำตัวผู้เข้าสอบ", decoded)
}

func TestSender_FormatAddress(t *testing.T) {
	sender := NewSender(Config{})
	email := certificateEmail()
	email.To = []mail.Address{{Name: "Somchai Dee", Address: "somchai@example.com"}}

	raw, err := sender.buildMessage(email)
	require.NoError(t, err)

	msg, _ := parseMessage(t, string(raw))
	to, err := msg.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "Somchai Dee", to[0].Name)
	assert.Equal(t, "somchai@example.com", to[0].Address)
}

func TestSender_GetEmailAddresses_SkipsBlank(t *testing.T) {
	sender := NewSender(Config{})

	got := sender.getEmailAddresses([]mail.Address{{Address: " a@example.com "}, {Address: "  "}})

	assert.Equal(t, []string{"a@example.com"}, got)
}

func TestSender_Send_STARTTLSWithAuth(t *testing.T) {
	server := startFakeServer(t, serverOptions{starttls: true})

	sender := NewSender(Config{
		Host:     "127.0.0.1",
		Port:     server.port(),
		Username: "contest@example.com",
		Password: "app-password",
		TLS:      true,
		Insecure: true,
	})
	defer sender.Close()

	err := sender.Send(context.Background(), certificateEmail())
	require.NoError(t, err)

	assert.True(t, server.usedTLS())
	assert.Equal(t, []string{"EHLO", "STARTTLS", "EHLO", "AUTH", "MAIL", "RCPT", "DATA", "QUIT"}, server.seen())

	received := server.received()
	require.Len(t, received, 1)
	_, parts := parseMessage(t, received[0])
	require.Len(t, parts, 2)
	assert.Equal(t, "cer_A123.txt", parts[1].header.FileName())
}

func TestSender_Send_RequiresSTARTTLS(t *testing.T) {
	server := startFakeServer(t, serverOptions{starttls: false})

	sender := NewSender(Config{Host: "127.0.0.1", Port: server.port(), TLS: true})

	err := sender.Send(context.Background(), certificateEmail())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSTARTTLS)
	assert.Empty(t, server.received())
}

func TestSender_Send_PlainWhenTLSDisabled(t *testing.T) {
	server := startFakeServer(t, serverOptions{})

	sender := NewSender(Config{
		Host:     "127.0.0.1",
		Port:     server.port(),
		Username: "contest@example.com",
		Password: "app-password",
	})

	err := sender.Send(context.Background(), certificateEmail())

	require.NoError(t, err)
	assert.False(t, server.usedTLS())
	assert.Len(t, server.received(), 1)
}

func TestSender_Send_AuthRejected(t *testing.T) {
	server := startFakeServer(t, serverOptions{starttls: true, authReply: "535 5.7.8 Authentication failed"})

	sender := NewSender(Config{
		Host:     "127.0.0.1",
		Port:     server.port(),
		Username: "contest@example.com",
		Password: "wrong",
		TLS:      true,
		Insecure: true,
	})

	err := sender.Send(context.Background(), certificateEmail())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to authenticate")
	assert.Empty(t, server.received())
}

func TestSender_Send_RecipientRejected(t *testing.T) {
	server := startFakeServer(t, serverOptions{rcptReply: "550 5.1.1 No such user"})

	sender := NewSender(Config{Host: "127.0.0.1", Port: server.port()})

	err := sender.Send(context.Background(), certificateEmail())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set recipient: somchai@example.com")
}

func TestSender_Send_MessageRejected(t *testing.T) {
	server := startFakeServer(t, serverOptions{dataReply: "554 5.7.1 Message rejected"})

	sender := NewSender(Config{Host: "127.0.0.1", Port: server.port()})

	err := sender.Send(context.Background(), certificateEmail())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "message rejected")
}

func TestSender_Send_ConnectionRefused(t *testing.T) {
	server := startFakeServer(t, serverOptions{})
	port := server.port()
	server.close()

	sender := NewSender(Config{Host: "127.0.0.1", Port: port})

	err := sender.Send(context.Background(), certificateEmail())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to SMTP server")
}

func TestSender_Send_ContextCancellation(t *testing.T) {
	server := startFakeServer(t, serverOptions{})
	sender := NewSender(Config{Host: "127.0.0.1", Port: server.port()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sender.Send(ctx, certificateEmail())

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, server.seen())
}

func TestSender_Send_WhenClosed(t *testing.T) {
	sender := NewSender(Config{Host: "127.0.0.1", Port: 1})
	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close())

	err := sender.Send(context.Background(), certificateEmail())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sender is closed")
}

func TestSender_Send_Validation(t *testing.T) {
	sender := NewSender(Config{Host: "127.0.0.1", Port: 1})

	email := certificateEmail()
	email.From = mail.Address{}
	err := sender.Send(context.Background(), email)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no from address specified")

	email = certificateEmail()
	email.To = nil
	err = sender.Send(context.Background(), email)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipients specified")
}

func TestSender_Send_DefaultFrom(t *testing.T) {
	server := startFakeServer(t, serverOptions{})
	sender := NewSender(Config{Host: "127.0.0.1", Port: server.port(), From: "contest@example.com"})

	email := certificateEmail()
	email.From = mail.Address{}

	require.NoError(t, sender.Send(context.Background(), email))

	received := server.received()
	require.Len(t, received, 1)
	msg, _ := parseMessage(t, received[0])
	assert.Equal(t, "contest@example.com", msg.Header.Get("From"))
}

func TestMessageID(t *testing.T) {
	assert.True(t, strings.HasSuffix(messageID("a@example.com"), "@example.com>"))
	assert.True(t, strings.HasSuffix(messageID("nodomain"), "@localhost>"))
	assert.NotEqual(t, messageID("a@example.com"), messageID("a@example.com"))
}
