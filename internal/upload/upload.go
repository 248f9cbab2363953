// Package upload accepts the optional resume attached to a driver application
// and keeps it on disk only for the lifetime of the request.
package upload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// FieldName is the only multipart field that may carry a file.
	FieldName = "resume"

	// MaxFileSize is the largest accepted document.
	MaxFileSize = 5 << 20

	// formOverhead leaves room for the text fields sent alongside the file.
	formOverhead = 1 << 20

	// maxMemory is how much of the form is buffered before spilling to disk.
	maxMemory = 1 << 20

	// maxFilenameBytes caps the original name carried into the email.
	maxFilenameBytes = 100
)

const (
	ReasonTooLarge        = "File too large. Maximum size is 5MB."
	ReasonInvalidType     = "Invalid file type. Only PDF, DOC, and DOCX files are allowed."
	ReasonTooManyFiles    = "Only one file may be uploaded."
	ReasonUnexpectedField = "Unexpected file field. Upload the document as \"resume\"."
)

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

var allowedContentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// ErrMalformedForm is returned when the multipart body cannot be parsed.
var ErrMalformedForm = errors.New("upload: malformed multipart form")

// FileRejected reports an upload that broke the size or type rules. Reason
// is safe to return to the client.
type FileRejected struct {
	Reason string
}

func (e *FileRejected) Error() string {
	return e.Reason
}

// File is an accepted upload stored under a randomized name.
type File struct {
	Path         string
	OriginalName string
	ContentType  string
	Size         int64

	once      sync.Once
	removeErr error
}

// Remove deletes the stored file. It is safe to call more than once and on a
// nil *File.
func (f *File) Remove() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.removeErr = err
		}
	})
	return f.removeErr
}

// Handler validates and stores uploads in dir.
type Handler struct {
	dir     string
	maxSize int64
	now     func() time.Time
}

// NewHandler returns a Handler writing into dir. Call Prepare before use.
func NewHandler(dir string) *Handler {
	return &Handler{
		dir:     dir,
		maxSize: MaxFileSize,
		now:     time.Now,
	}
}

// Prepare creates the upload directory if it does not exist.
func (h *Handler) Prepare() error {
	if err := os.MkdirAll(h.dir, 0o750); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	return nil
}

// Accept parses a multipart request and stores its resume, if any. It
// returns a nil File when the request is not multipart or carries no file.
// The caller owns the returned File and must Remove it, and must call
// RemoveAll on r.MultipartForm once done with the request.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) (*File, error) {
	if !isMultipart(r) {
		return nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+formOverhead)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		if isTooLarge(err) {
			return nil, &FileRejected{Reason: ReasonTooLarge}
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedForm, err)
	}

	for field := range r.MultipartForm.File {
		if field != FieldName {
			return nil, &FileRejected{Reason: ReasonUnexpectedField}
		}
	}

	headers := r.MultipartForm.File[FieldName]
	switch len(headers) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, &FileRejected{Reason: ReasonTooManyFiles}
	}

	fh := headers[0]
	if fh.Size > h.maxSize {
		return nil, &FileRejected{Reason: ReasonTooLarge}
	}
	contentType, err := checkType(fh)
	if err != nil {
		return nil, err
	}

	return h.store(fh, contentType)
}

// isMultipart reports whether r declares a multipart/form-data body.
func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// checkType requires both an allowed extension and an allowed declared
// content type.
func checkType(fh *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExtensions[ext] {
		return "", &FileRejected{Reason: ReasonInvalidType}
	}

	mediaType, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if err != nil || !allowedContentTypes[mediaType] {
		return "", &FileRejected{Reason: ReasonInvalidType}
	}
	return mediaType, nil
}

func (h *Handler) store(fh *multipart.FileHeader, contentType string) (*File, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	name := fmt.Sprintf("%s-%d-%d%s", FieldName, h.now().UnixMilli(), rand.Intn(1e9), ext)
	path := filepath.Join(h.dir, name)

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	size, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close upload file: %w", err)
	}

	return &File{
		Path:         path,
		OriginalName: sanitizeFilename(fh.Filename),
		ContentType:  contentType,
		Size:         size,
	}, nil
}

func isTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large") ||
		errors.Is(err, multipart.ErrMessageTooLarge)
}

// sanitizeFilename removes path components and dangerous characters
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r == '"' {
			return -1
		}
		return r
	}, name)
	if len(name) > maxFilenameBytes {
		cut := maxFilenameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	if name == "" || name == "." || name == "/" {
		name = "attachment"
	}
	return name
}
