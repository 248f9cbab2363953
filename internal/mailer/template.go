package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/driverjobs/formrelay/internal/submission"
)

//go:embed templates/*.html
var templateFS embed.FS

var emailTemplates = template.Must(template.New("").Funcs(template.FuncMap{
	"fallback": fallback,
}).ParseFS(templateFS, "templates/*.html"))

// Content is a rendered subject and HTML body.
type Content struct {
	Subject string
	HTML    string
}

// Composer renders submissions into the four notification emails. It does
// no validation of its own.
type Composer struct {
	tmpl *template.Template
	now  func() time.Time
}

// NewComposer returns a Composer using the embedded templates.
func NewComposer() *Composer {
	return &Composer{tmpl: emailTemplates, now: time.Now}
}

type driverNoticeData struct {
	App         *submission.DriverApplication
	ResumeName  string
	SubmittedAt string
}

type hiringNoticeData struct {
	Req         *submission.HiringRequest
	SubmittedAt string
}

// DriverNotice renders the administrator notice for an application.
// resumeName is empty when no document was attached.
func (c *Composer) DriverNotice(app *submission.DriverApplication, resumeName string) (Content, error) {
	return c.render("driver_notice.html",
		"New Driver Application: "+app.FullName(),
		driverNoticeData{App: app, ResumeName: resumeName, SubmittedAt: c.timestamp()},
	)
}

// DriverConfirmation renders the acknowledgement sent to the applicant.
func (c *Composer) DriverConfirmation(app *submission.DriverApplication) (Content, error) {
	return c.render("driver_confirmation.html",
		"Application Received - Thank You for Applying",
		driverNoticeData{App: app, SubmittedAt: c.timestamp()},
	)
}

// HiringNotice renders the administrator notice for a hiring request.
func (c *Composer) HiringNotice(req *submission.HiringRequest) (Content, error) {
	return c.render("hiring_notice.html",
		"New Hiring Request: "+req.CompanyName,
		hiringNoticeData{Req: req, SubmittedAt: c.timestamp()},
	)
}

// HiringConfirmation renders the acknowledgement sent to the company contact.
func (c *Composer) HiringConfirmation(req *submission.HiringRequest) (Content, error) {
	return c.render("hiring_confirmation.html",
		"Hiring Request Received - We'll Be in Touch",
		hiringNoticeData{Req: req, SubmittedAt: c.timestamp()},
	)
}

func (c *Composer) render(name, subject string, data any) (Content, error) {
	var buf bytes.Buffer
	if err := c.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return Content{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Content{Subject: subject, HTML: buf.String()}, nil
}

func (c *Composer) timestamp() string {
	return c.now().Format("January 2, 2006 at 3:04 PM MST")
}

// fallback returns placeholder when v renders as blank. Lists render
// comma-joined through their String method.
func fallback(v any, placeholder string) string {
	var s string
	switch x := v.(type) {
	case nil:
	case string:
		s = x
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}
