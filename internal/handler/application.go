package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/driverjobs/formrelay/internal/submission"
	"github.com/driverjobs/formrelay/internal/upload"
)

const (
	msgApplicationSubmitted = "Application submitted successfully"
	msgApplicationFailed    = "Failed to submit application. Please try again later."
)

type applicationNotifier interface {
	NotifyDriverApplication(ctx context.Context, app *submission.DriverApplication, file *upload.File) error
	Disabled() bool
}

// ApplicationHandler accepts driver job applications.
type ApplicationHandler struct {
	BaseHandler
	uploads  *upload.Handler
	notifier applicationNotifier
}

func NewApplicationHandler(logger *slog.Logger, uploads *upload.Handler, notifier applicationNotifier) *ApplicationHandler {
	return &ApplicationHandler{BaseHandler: BaseHandler{logger: logger}, uploads: uploads, notifier: notifier}
}

// Submit handles POST /api/submit-application. The stored resume is removed
// before the response is written, whatever the outcome.
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	file, err := h.uploads.Accept(w, r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	defer h.discard(r, file)

	if err != nil {
		h.submissionErrorResponse(w, r, err, msgApplicationFailed)
		return
	}

	fields, err := h.readFields(w, r)
	if err != nil {
		h.submissionErrorResponse(w, r, err, msgApplicationFailed)
		return
	}

	app := submission.NewDriverApplication(submission.SanitizeFields(fields))
	if err := submission.Validate(app); err != nil {
		h.submissionErrorResponse(w, r, err, msgApplicationFailed)
		return
	}

	if err := h.notifier.NotifyDriverApplication(r.Context(), app, file); err != nil {
		h.submissionErrorResponse(w, r, err, msgApplicationFailed)
		return
	}
	h.discard(r, file)

	h.logger.Info("application submitted", "resume", file != nil)

	message := successMessage(msgApplicationSubmitted, h.notifier.Disabled())
	if err := h.writeJSON(w, http.StatusOK, envelope{"message": message}, nil); err != nil {
		h.logError(r, err)
	}
}

func (h *ApplicationHandler) discard(r *http.Request, file *upload.File) {
	if err := file.Remove(); err != nil {
		h.logError(r, err)
	}
}
