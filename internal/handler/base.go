package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/driverjobs/formrelay/internal/mailer"
	"github.com/driverjobs/formrelay/internal/submission"
	"github.com/driverjobs/formrelay/internal/upload"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes caps JSON and urlencoded submissions.
const maxBodyBytes = 1_048_576

const (
	msgServerError = "Something went wrong!"
	msgTestMode    = " (test mode)"
)

type envelope map[string]any

// badRequestError carries a message that is safe to show the client.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

type BaseHandler struct {
	logger *slog.Logger
}

func (h *BaseHandler) logError(r *http.Request, err error) {
	method := r.Method
	uri := r.URL.RequestURI()

	h.logger.Error(err.Error(), "method", method, "uri", uri, "request_id", chimw.GetReqID(r.Context()))
}

func (h *BaseHandler) errorResponse(w http.ResponseWriter, r *http.Request, status int, message any) {
	env := envelope{"error": message}

	err := h.writeJSON(w, status, env, nil)
	if err != nil {
		h.logError(r, err)
		w.WriteHeader(500)
	}
}

func (h *BaseHandler) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	h.logError(r, err)
	h.errorResponse(w, r, http.StatusInternalServerError, msgServerError)
}

// submissionErrorResponse maps a failed submission onto its status code.
// deliveryMessage is returned when the mail relay rejected the notice.
func (h *BaseHandler) submissionErrorResponse(w http.ResponseWriter, r *http.Request, err error, deliveryMessage string) {
	var (
		validationErr *submission.ValidationError
		rejectedErr   *upload.FileRejected
		badRequestErr *badRequestError
		deliveryErr   *mailer.DeliveryError
	)

	switch {
	case errors.As(err, &validationErr):
		h.logger.Info("submission rejected", "reason", validationErr.Reason, "fields", validationErr.Fields)
		h.errorResponse(w, r, http.StatusBadRequest, validationErr.Reason)
	case errors.As(err, &rejectedErr):
		h.logger.Info("upload rejected", "reason", rejectedErr.Reason)
		h.errorResponse(w, r, http.StatusBadRequest, rejectedErr.Reason)
	case errors.Is(err, upload.ErrMalformedForm):
		h.logError(r, err)
		h.errorResponse(w, r, http.StatusBadRequest, "Malformed multipart form")
	case errors.As(err, &badRequestErr):
		h.errorResponse(w, r, http.StatusBadRequest, badRequestErr.msg)
	case errors.As(err, &deliveryErr):
		h.logError(r, err)
		h.errorResponse(w, r, http.StatusInternalServerError, deliveryMessage)
	default:
		h.serverErrorResponse(w, r, err)
	}
}

func (h *BaseHandler) writeJSON(w http.ResponseWriter, status int, data any, headers http.Header) error {
	for k, v := range headers {
		for _, value := range v {
			w.Header().Add(k, value)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)

	if err := encoder.Encode(data); err != nil {
		return err
	}

	return nil
}

// readFields decodes the submitted fields from whichever body encoding the
// client used. An empty body yields empty fields so that validation reports
// what is missing.
func (h *BaseHandler) readFields(w http.ResponseWriter, r *http.Request) (submission.Fields, error) {
	if r.MultipartForm != nil {
		return submission.FieldsFromForm(r.MultipartForm.Value), nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", upload.ErrMalformedForm, err)
		}
		return submission.FieldsFromForm(r.MultipartForm.Value), nil
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, &badRequestError{msg: "body contains a malformed form"}
		}
		return submission.FieldsFromForm(r.PostForm), nil
	}

	fields := submission.Fields{}
	if err := h.readJSON(w, r, &fields); err != nil {
		if errors.Is(err, errEmptyBody) {
			return submission.Fields{}, nil
		}
		return nil, &badRequestError{msg: err.Error()}
	}
	return fields, nil
}

var errEmptyBody = errors.New("body must not be empty")

func (h *BaseHandler) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errEmptyBody
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytesError.Limit)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	// Ensure only a single JSON value is present in the body
	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func successMessage(message string, testMode bool) string {
	if testMode {
		return message + msgTestMode
	}
	return message
}
