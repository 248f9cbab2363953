package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/driverjobs/formrelay/internal/submission"
)

const (
	msgHiringSubmitted = "Hiring request submitted successfully"
	msgHiringFailed    = "Failed to submit hiring request. Please try again later."
)

type hiringNotifier interface {
	NotifyHiringRequest(ctx context.Context, req *submission.HiringRequest) error
	Disabled() bool
}

// HiringHandler accepts company hiring requests.
type HiringHandler struct {
	BaseHandler
	notifier hiringNotifier
}

func NewHiringHandler(logger *slog.Logger, notifier hiringNotifier) *HiringHandler {
	return &HiringHandler{BaseHandler: BaseHandler{logger: logger}, notifier: notifier}
}

// Submit handles POST /api/company-hiring.
func (h *HiringHandler) Submit(w http.ResponseWriter, r *http.Request) {
	fields, err := h.readFields(w, r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		h.submissionErrorResponse(w, r, err, msgHiringFailed)
		return
	}

	req := submission.NewHiringRequest(submission.SanitizeFields(fields))
	if err := submission.Validate(req); err != nil {
		h.submissionErrorResponse(w, r, err, msgHiringFailed)
		return
	}

	if err := h.notifier.NotifyHiringRequest(r.Context(), req); err != nil {
		h.submissionErrorResponse(w, r, err, msgHiringFailed)
		return
	}

	h.logger.Info("hiring request submitted", "positions", len(req.Positions))

	message := successMessage(msgHiringSubmitted, h.notifier.Disabled())
	if err := h.writeJSON(w, http.StatusOK, envelope{"message": message}, nil); err != nil {
		h.logError(r, err)
	}
}
