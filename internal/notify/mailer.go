package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
)

type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// TLSMode selects how the connection to the relay is secured.
type TLSMode string

const (
	// TLSStartTLS upgrades a plain connection and fails when the relay does
	// not offer STARTTLS. It is the zero value's behaviour.
	TLSStartTLS TLSMode = "starttls"
	// TLSImplicit connects with TLS from the first byte (port 465).
	TLSImplicit TLSMode = "tls"
	// TLSNone sends in plaintext. Only for relays on a trusted network.
	TLSNone TLSMode = "none"
)

// ParseTLSMode accepts "starttls", "tls" and "none"; empty means starttls.
func ParseTLSMode(s string) (TLSMode, error) {
	switch m := TLSMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", TLSStartTLS:
		return TLSStartTLS, nil
	case TLSImplicit, TLSNone:
		return m, nil
	default:
		return "", fmt.Errorf("unknown smtp tls mode %q", s)
	}
}

// SMTPMailer submits mail to a relay and authenticates with PLAIN when a
// username is set.
type SMTPMailer struct {
	Addr     string
	Username string
	Password string
	Timeout  time.Duration
	TLS      TLSMode
	// TLSConfig overrides the client TLS settings, e.g. to trust a private CA.
	TLSConfig *tls.Config
}

func NewSMTPMailer(addr, username, password string, timeout time.Duration) *SMTPMailer {
	return &SMTPMailer{Addr: addr, Username: username, Password: password, Timeout: timeout, TLS: TLSStartTLS}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	c, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if m.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", m.Username, m.Password)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.SendMail(msg.From, msg.To, bytes.NewReader(buildMessage(msg, time.Now()))); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return c.Quit()
}

func (m *SMTPMailer) dial(ctx context.Context) (*smtp.Client, error) {
	mode, err := ParseTLSMode(string(m.TLS))
	if err != nil {
		return nil, err
	}
	tlsConfig := m.tlsConfig()

	var conn net.Conn
	if mode == TLSImplicit {
		d := tls.Dialer{Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", m.Addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", m.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial smtp %s: %w", m.Addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if mode != TLSStartTLS {
		return smtp.NewClient(conn), nil
	}
	c, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("starttls with %s: %w", m.Addr, err)
	}
	return c, nil
}

func (m *SMTPMailer) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if m.TLSConfig != nil {
		cfg = m.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName, _, _ = net.SplitHostPort(m.Addr)
	}
	return cfg
}

func buildMessage(msg Message, now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.HTML, "\n", "\r\n"))
	return b.Bytes()
}

// LogMailer is used when no relay is configured. It records the message and
// reports success.
type LogMailer struct {
	Logger zerolog.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	m.Logger.Info().Strs("to", msg.To).Str("subject", msg.Subject).Msg("mail relay not configured, message not sent")
	return nil
}
