package notifier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/dcm-project/vmrequest-service/internal/config"
)

var errStartTLSUnsupported = errors.New("relay does not offer STARTTLS")

// SMTPMailer delivers messages through an authenticated STARTTLS relay.
// Every call opens its own session.
type SMTPMailer struct {
	host      string
	port      int
	user      string
	pass      string
	timeout   time.Duration
	tlsConfig *tls.Config
}

type SMTPOption func(*SMTPMailer)

// WithTLSConfig uses a copy of c for the STARTTLS upgrade. ServerName
// defaults to the relay host.
func WithTLSConfig(c *tls.Config) SMTPOption {
	return func(m *SMTPMailer) {
		m.tlsConfig = c.Clone()
	}
}

func NewSMTPMailer(cfg *config.MailConfig, opts ...SMTPOption) *SMTPMailer {
	m := &SMTPMailer{
		host:    cfg.SMTPServer,
		port:    cfg.SMTPPort,
		user:    cfg.User,
		pass:    cfg.Pass,
		timeout: cfg.Timeout,
		tlsConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tlsConfig.ServerName == "" {
		m.tlsConfig.ServerName = m.host
	}
	return m
}

// Send delivers msg from the envelope sender to every recipient.
func (m *SMTPMailer) Send(ctx context.Context, from string, recipients []string, msg []byte) error {
	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s rejected: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}
	return client.Quit()
}

// CheckRelay opens an authenticated session and closes it without sending.
func (m *SMTPMailer) CheckRelay(ctx context.Context) error {
	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Quit()
}

func (m *SMTPMailer) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	dialer := &net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	deadline := time.Now().Add(m.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake with %s: %w", addr, err)
	}

	if ok, _ := client.Extension("STARTTLS"); !ok {
		client.Close()
		return nil, fmt.Errorf("%s: %w", addr, errStartTLSUnsupported)
	}
	if err := client.StartTLS(m.tlsConfig); err != nil {
		client.Close()
		return nil, fmt.Errorf("STARTTLS with %s: %w", addr, err)
	}
	if err := client.Auth(smtp.PlainAuth("", m.user, m.pass, m.host)); err != nil {
		client.Close()
		return nil, fmt.Errorf("authenticating as %s: %w", m.user, err)
	}
	return client, nil
}
