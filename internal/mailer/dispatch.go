// Package mailer composes the notification emails for a submission and
// delivers them through an SMTP relay.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/driverjobs/formrelay/internal/submission"
	"github.com/driverjobs/formrelay/internal/upload"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Transport delivers a single message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Verify(ctx context.Context) error
}

// DeliveryError reports a failed send. Recipient is "admin" or "submitter".
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s email: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Config controls who mail comes from and goes to.
type Config struct {
	From         mail.Address
	AdminAddress string

	// Disabled logs admin notices instead of sending anything.
	Disabled bool

	// SendRate caps outbound messages per minute. Zero means unlimited.
	SendRate int

	// EncryptAdmin marks admin notices for PGP encryption.
	EncryptAdmin bool
}

// Dispatcher sends the admin notice and the submitter confirmation for each
// submission.
type Dispatcher struct {
	transport Transport
	composer  *Composer
	cfg       Config
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewDispatcher returns a Dispatcher delivering through t.
func NewDispatcher(t Transport, cfg Config, logger *slog.Logger) *Dispatcher {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.SendRate)), 2)
	}
	return &Dispatcher{
		transport: t,
		composer:  NewComposer(),
		cfg:       cfg,
		limiter:   limiter,
		logger:    logger,
	}
}

// Disabled reports whether outbound mail is switched off.
func (d *Dispatcher) Disabled() bool {
	return d.cfg.Disabled
}

// Verify checks that the relay accepts a connection. It never blocks request
// handling; callers log the result.
func (d *Dispatcher) Verify(ctx context.Context) error {
	if d.cfg.Disabled {
		return nil
	}
	return d.transport.Verify(ctx)
}

// NotifyDriverApplication emails the application to the admin, attaching
// file when present, then confirms receipt to the applicant.
func (d *Dispatcher) NotifyDriverApplication(ctx context.Context, app *submission.DriverApplication, file *upload.File) error {
	var (
		att        *Attachment
		resumeName string
	)
	if file != nil {
		att = &Attachment{Filename: file.OriginalName, ContentType: file.ContentType, Path: file.Path}
		resumeName = file.OriginalName
	}

	notice, err := d.composer.DriverNotice(app, resumeName)
	if err != nil {
		return err
	}
	if d.cfg.Disabled {
		d.logSkipped(notice, att != nil)
		return nil
	}
	if err := d.send(ctx, "admin", d.adminMessage(notice, att)); err != nil {
		return err
	}

	confirmation, err := d.composer.DriverConfirmation(app)
	if err != nil {
		return err
	}
	return d.send(ctx, "submitter", d.message(app.Email, confirmation))
}

// NotifyHiringRequest emails the request to the admin, then confirms
// receipt to the company contact.
func (d *Dispatcher) NotifyHiringRequest(ctx context.Context, req *submission.HiringRequest) error {
	notice, err := d.composer.HiringNotice(req)
	if err != nil {
		return err
	}
	if d.cfg.Disabled {
		d.logSkipped(notice, false)
		return nil
	}
	if err := d.send(ctx, "admin", d.adminMessage(notice, nil)); err != nil {
		return err
	}

	confirmation, err := d.composer.HiringConfirmation(req)
	if err != nil {
		return err
	}
	return d.send(ctx, "submitter", d.message(req.Email, confirmation))
}

func (d *Dispatcher) adminMessage(c Content, att *Attachment) Message {
	msg := d.message(d.cfg.AdminAddress, c)
	msg.Attachment = att
	msg.Encrypt = d.cfg.EncryptAdmin
	return msg
}

func (d *Dispatcher) message(to string, c Content) Message {
	return Message{
		ID:      uuid.NewString(),
		From:    d.cfg.From,
		To:      []string{to},
		Subject: c.Subject,
		HTML:    c.HTML,
	}
}

func (d *Dispatcher) send(ctx context.Context, recipient string, msg Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return &DeliveryError{Recipient: recipient, Err: err}
	}

	start := time.Now()
	if err := d.transport.Send(ctx, msg); err != nil {
		d.logger.Error("mailer: send failed", "recipient", recipient, "message_id", msg.ID, "err", err)
		return &DeliveryError{Recipient: recipient, Err: err}
	}
	d.logger.Info("mailer: sent", "recipient", recipient, "message_id", msg.ID,
		"attachment", msg.Attachment != nil, "duration", time.Since(start))
	return nil
}

func (d *Dispatcher) logSkipped(notice Content, attachment bool) {
	d.logger.Info("mailer: emails disabled, admin notice not sent",
		"subject", notice.Subject,
		"attachment", attachment,
		"body", notice.HTML,
	)
}
