package handler

import (
	"log/slog"
	"net/http"
)

// ErrorHandler answers requests the router could not match.
type ErrorHandler struct {
	BaseHandler
}

func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{BaseHandler: BaseHandler{logger: logger}}
}

func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.errorResponse(w, r, http.StatusNotFound, "Endpoint not found")
}

func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	message := "the " + r.Method + " method is not supported for this resource"
	h.errorResponse(w, r, http.StatusMethodNotAllowed, message)
}
