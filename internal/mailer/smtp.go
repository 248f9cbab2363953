package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// SMTPConfig describes the outbound relay.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	ImplicitTLS bool
	Timeout     time.Duration

	// Keyring, when set, is used to encrypt messages marked Encrypt.
	Keyring openpgp.EntityList
}

// SMTPTransport delivers messages through an SMTP relay, one connection per
// message.
type SMTPTransport struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTPTransport returns a transport for cfg.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPTransport{cfg: cfg, now: time.Now}
}

// Send encodes and delivers msg.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	var keyring openpgp.EntityList
	if msg.Encrypt {
		keyring = t.cfg.Keyring
	}

	raw, err := buildMessage(msg, keyring, t.now())
	if err != nil {
		return fmt.Errorf("failed to build email: %w", err)
	}

	c, release, err := t.open(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := c.Mail(msg.From.Address); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO: %w", err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end body: %w", err)
	}

	return c.Quit()
}

// Verify connects, authenticates and disconnects without sending.
func (t *SMTPTransport) Verify(ctx context.Context) error {
	c, release, err := t.open(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp NOOP: %w", err)
	}
	return c.Quit()
}

// open dials the relay, upgrades to TLS when offered and authenticates.
// The connection is abandoned as soon as ctx is done. release closes it.
func (t *SMTPTransport) open(ctx context.Context) (c *smtp.Client, release func(), err error) {
	if t.cfg.Host == "" {
		return nil, nil, fmt.Errorf("smtp: host not configured")
	}
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	tlsConfig := &tls.Config{ServerName: t.cfg.Host}

	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	var conn net.Conn
	if t.cfg.ImplicitTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}

	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})

	c, err = smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		stop()
		conn.Close()
		return nil, nil, fmt.Errorf("smtp handshake: %w", err)
	}
	release = func() {
		stop()
		c.Close()
	}

	if err := t.hello(c, tlsConfig); err != nil {
		release()
		return nil, nil, err
	}
	return c, release, nil
}

func (t *SMTPTransport) hello(c *smtp.Client, tlsConfig *tls.Config) error {
	if !t.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp STARTTLS: %w", err)
			}
		}
	}

	if t.cfg.Username == "" {
		return nil
	}
	if ok, _ := c.Extension("AUTH"); !ok {
		return fmt.Errorf("smtp: server does not support AUTH")
	}
	auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp AUTH: %w", err)
	}
	return nil
}
