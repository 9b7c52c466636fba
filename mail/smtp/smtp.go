package smtp

import "time"

// Config contains SMTP connection parameters. It is built by the caller, the
// mailer fills it from its own environment variables.
type Config struct {
	Host     string        // smtp.gmail.com
	Port     int           // 587 for STARTTLS submission
	Username string        // username or email
	Password string        // password or app password
	From     string        // default from address (optional)
	TLS      bool          // require STARTTLS
	Insecure bool          // skip certificate verification
	Timeout  time.Duration // 0 keeps the dialer default
}
