package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/driverjobs/formrelay/internal/mailer"
	"github.com/driverjobs/formrelay/internal/submission"
	"github.com/driverjobs/formrelay/internal/upload"
)

const pdfType = "application/pdf"

type fakeNotifier struct {
	disabled bool
	err      error

	apps          []*submission.DriverApplication
	requests      []*submission.HiringRequest
	fileOnDisk    bool
	attachedNames []string
}

func (f *fakeNotifier) NotifyDriverApplication(_ context.Context, app *submission.DriverApplication, file *upload.File) error {
	f.apps = append(f.apps, app)
	if file != nil {
		_, err := os.Stat(file.Path)
		f.fileOnDisk = err == nil
		f.attachedNames = append(f.attachedNames, file.OriginalName)
	}
	return f.err
}

func (f *fakeNotifier) NotifyHiringRequest(_ context.Context, req *submission.HiringRequest) error {
	f.requests = append(f.requests, req)
	return f.err
}

func (f *fakeNotifier) Disabled() bool {
	return f.disabled
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testFile struct {
	name        string
	contentType string
	data        []byte
}

// buildMultipartForm creates a multipart form body from key-value pairs and
// an optional resume
func buildMultipartForm(t *testing.T, fields map[string]string, file *testFile) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if file != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="resume"; filename=%q`, file.name))
		h.Set("Content-Type", file.contentType)
		part, err := writer.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(file.data)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func janeDoe() map[string]string {
	return map[string]string{
		"firstName": "Jane",
		"lastName":  "Doe",
		"email":     "jane@x.com",
		"phone":     "555-1234",
	}
}

type applicationFixture struct {
	handler  *ApplicationHandler
	notifier *fakeNotifier
	dir      string
}

func newApplicationFixture(t *testing.T) *applicationFixture {
	t.Helper()
	dir := t.TempDir()
	n := &fakeNotifier{}
	return &applicationFixture{
		handler:  NewApplicationHandler(testLogger(), upload.NewHandler(dir), n),
		notifier: n,
		dir:      dir,
	}
}

func (f *applicationFixture) postMultipart(t *testing.T, fields map[string]string, file *testFile) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := buildMultipartForm(t, fields, file)
	req := httptest.NewRequest(http.MethodPost, "/api/submit-application", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	f.handler.Submit(rr, req)
	return rr
}

func (f *applicationFixture) assertNoFilesLeft(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("upload dir still holds %d file(s)", len(entries))
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func assertJSON(t *testing.T, rr *httptest.ResponseRecorder, status int, key, want string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := decodeBody(t, rr)[key]; got != want {
		t.Errorf("%s = %v, want %q", key, got, want)
	}
}

func TestSubmitApplication(t *testing.T) {
	f := newApplicationFixture(t)

	rr := f.postMultipart(t, janeDoe(), nil)

	assertJSON(t, rr, http.StatusOK, "message", "Application submitted successfully")
	if len(f.notifier.apps) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(f.notifier.apps))
	}
	app := f.notifier.apps[0]
	if app.FullName() != "Jane Doe" || app.Email != "jane@x.com" || app.Phone != "555-1234" {
		t.Errorf("unexpected application: %+v", app)
	}
}

func TestSubmitApplicationWithResume(t *testing.T) {
	f := newApplicationFixture(t)

	rr := f.postMultipart(t, janeDoe(), &testFile{name: "jane_cv.pdf", contentType: pdfType, data: []byte("%PDF-1.4")})

	assertJSON(t, rr, http.StatusOK, "message", "Application submitted successfully")
	if !f.notifier.fileOnDisk {
		t.Error("resume was not on disk while notifying")
	}
	if len(f.notifier.attachedNames) != 1 || f.notifier.attachedNames[0] != "jane_cv.pdf" {
		t.Errorf("attached = %v", f.notifier.attachedNames)
	}
	f.assertNoFilesLeft(t)
}

func TestSubmitApplicationRejections(t *testing.T) {
	resume := &testFile{name: "jane_cv.pdf", contentType: pdfType, data: []byte("%PDF-1.4")}

	cases := []struct {
		name   string
		fields func(map[string]string)
		file   *testFile
		want   string
	}{
		{
			name:   "missing phone",
			fields: func(m map[string]string) { delete(m, "phone") },
			want:   "Missing required fields",
		},
		{
			name:   "blank after sanitizing",
			fields: func(m map[string]string) { m["lastName"] = " <> " },
			file:   resume,
			want:   "Missing required fields",
		},
		{
			name:   "invalid email",
			fields: func(m map[string]string) { m["email"] = "jane@x" },
			file:   resume,
			want:   "Invalid email address",
		},
		{
			name: "wrong extension",
			file: &testFile{name: "jane_cv.txt", contentType: pdfType, data: []byte("text")},
			want: upload.ReasonInvalidType,
		},
		{
			name: "wrong content type",
			file: &testFile{name: "jane_cv.pdf", contentType: "image/png", data: []byte("png")},
			want: upload.ReasonInvalidType,
		},
		{
			name: "too large",
			file: &testFile{name: "big.pdf", contentType: pdfType, data: bytes.Repeat([]byte("a"), 6<<20)},
			want: upload.ReasonTooLarge,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newApplicationFixture(t)
			fields := janeDoe()
			if tc.fields != nil {
				tc.fields(fields)
			}

			rr := f.postMultipart(t, fields, tc.file)

			assertJSON(t, rr, http.StatusBadRequest, "error", tc.want)
			if len(f.notifier.apps) != 0 {
				t.Error("notifier called for a rejected submission")
			}
			f.assertNoFilesLeft(t)
		})
	}
}

func TestSubmitApplicationDeliveryFailure(t *testing.T) {
	f := newApplicationFixture(t)
	f.notifier.err = &mailer.DeliveryError{Recipient: "admin", Err: errors.New("connection refused")}

	rr := f.postMultipart(t, janeDoe(), &testFile{name: "cv.docx", contentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", data: []byte("PK")})

	assertJSON(t, rr, http.StatusInternalServerError, "error", "Failed to submit application. Please try again later.")
	f.assertNoFilesLeft(t)
}

func TestSubmitApplicationUnexpectedError(t *testing.T) {
	f := newApplicationFixture(t)
	f.notifier.err = errors.New("template exploded")

	rr := f.postMultipart(t, janeDoe(), nil)

	assertJSON(t, rr, http.StatusInternalServerError, "error", "Something went wrong!")
	if strings.Contains(rr.Body.String(), "exploded") {
		t.Error("internal error detail leaked to the client")
	}
}

func TestSubmitApplicationTestMode(t *testing.T) {
	f := newApplicationFixture(t)
	f.notifier.disabled = true

	rr := f.postMultipart(t, janeDoe(), &testFile{name: "jane_cv.pdf", contentType: pdfType, data: []byte("%PDF-1.4")})

	assertJSON(t, rr, http.StatusOK, "message", "Application submitted successfully (test mode)")
	f.assertNoFilesLeft(t)
}

func TestSubmitApplicationSanitizes(t *testing.T) {
	f := newApplicationFixture(t)
	fields := janeDoe()
	fields["firstName"] = "  <b>Jane</b> "
	fields["additionalInfo"] = "<script>alert(1)</script>"

	rr := f.postMultipart(t, fields, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	app := f.notifier.apps[0]
	if app.FirstName != "bJane/b" {
		t.Errorf("FirstName = %q", app.FirstName)
	}
	if strings.ContainsAny(app.AdditionalInfo, "<>") {
		t.Errorf("AdditionalInfo = %q", app.AdditionalInfo)
	}
}

func TestSubmitApplicationJSON(t *testing.T) {
	f := newApplicationFixture(t)
	body := `{"firstName":"Jane","lastName":"Doe","email":"jane@x.com","phone":"555-1234","yearsExperience":5,"routeType":["OTR","Regional"]}`

	req := httptest.NewRequest(http.MethodPost, "/api/submit-application", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.handler.Submit(rr, req)

	assertJSON(t, rr, http.StatusOK, "message", "Application submitted successfully")
	app := f.notifier.apps[0]
	if app.YearsExperience != "5" {
		t.Errorf("YearsExperience = %q", app.YearsExperience)
	}
	if app.RouteType.String() != "OTR, Regional" {
		t.Errorf("RouteType = %v", app.RouteType)
	}
}

type hiringFixture struct {
	handler  *HiringHandler
	notifier *fakeNotifier
}

func newHiringFixture() *hiringFixture {
	n := &fakeNotifier{}
	return &hiringFixture{handler: NewHiringHandler(testLogger(), n), notifier: n}
}

func (f *hiringFixture) post(contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/company-hiring", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	f.handler.Submit(rr, req)
	return rr
}

func TestSubmitHiringJSON(t *testing.T) {
	f := newHiringFixture()

	rr := f.post("application/json", `{
		"companyName": "Acme Freight",
		"contactPerson": "Sam Lee",
		"email": "sam@acme.example",
		"phone": "555-0199",
		"positions": ["Class A CDL", "Owner Operator"]
	}`)

	assertJSON(t, rr, http.StatusOK, "message", "Hiring request submitted successfully")
	req := f.notifier.requests[0]
	if req.CompanyName != "Acme Freight" || req.Positions.String() != "Class A CDL, Owner Operator" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestSubmitHiringForm(t *testing.T) {
	f := newHiringFixture()
	form := url.Values{
		"companyName":   {"Acme Freight"},
		"contactPerson": {"Sam Lee"},
		"email":         {"sam@acme.example"},
		"phone":         {"555-0199"},
		"positions[]":   {"Local", "Regional"},
	}

	rr := f.post("application/x-www-form-urlencoded", form.Encode())

	assertJSON(t, rr, http.StatusOK, "message", "Hiring request submitted successfully")
	if got := f.notifier.requests[0].Positions; len(got) != 2 || got[1] != "Regional" {
		t.Errorf("Positions = %v", got)
	}
}

func TestSubmitHiringRejections(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"empty body", "application/json", "", "Missing required fields"},
		{"missing contact", "application/json", `{"companyName":"Acme","email":"sam@acme.example","phone":"1"}`, "Missing required fields"},
		{"invalid email", "application/json", `{"companyName":"Acme","contactPerson":"Sam","email":"sam at acme","phone":"1"}`, "Invalid email address"},
		{"badly formed", "application/json", `{"companyName":`, "body contains badly-formed JSON"},
		{"not an object", "application/json", `["Acme"]`, "body contains incorrect JSON type"},
		{"two values", "application/json", `{} {}`, "body must only contain a single JSON value"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newHiringFixture()

			rr := f.post(tc.contentType, tc.body)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d (%s)", http.StatusBadRequest, rr.Code, rr.Body.String())
			}
			if got, _ := decodeBody(t, rr)["error"].(string); !strings.HasPrefix(got, tc.want) {
				t.Errorf("error = %q, want prefix %q", got, tc.want)
			}
			if len(f.notifier.requests) != 0 {
				t.Error("notifier called for a rejected request")
			}
		})
	}
}

func TestSubmitHiringDeliveryFailure(t *testing.T) {
	f := newHiringFixture()
	f.notifier.err = fmt.Errorf("notify: %w", &mailer.DeliveryError{Recipient: "submitter", Err: errors.New("550 mailbox unavailable")})

	rr := f.post("application/json", `{"companyName":"Acme","contactPerson":"Sam","email":"sam@acme.example","phone":"1"}`)

	assertJSON(t, rr, http.StatusInternalServerError, "error", "Failed to submit hiring request. Please try again later.")
}

func TestSubmitHiringTestMode(t *testing.T) {
	f := newHiringFixture()
	f.notifier.disabled = true

	rr := f.post("application/json", `{"companyName":"Acme","contactPerson":"Sam","email":"sam@acme.example","phone":"1"}`)

	assertJSON(t, rr, http.StatusOK, "message", "Hiring request submitted successfully (test mode)")
}

func TestHealth(t *testing.T) {
	started := time.Now().Add(-90 * time.Second)
	rr := httptest.NewRecorder()
	Health(started)(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "OK" {
		t.Errorf("status = %v", body["status"])
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
		t.Errorf("timestamp not RFC3339: %v", err)
	}
	if uptime, ok := body["uptime"].(float64); !ok || uptime < 90 {
		t.Errorf("uptime = %v", body["uptime"])
	}
}

func TestHealthcheck(t *testing.T) {
	rr := httptest.NewRecorder()
	Healthcheck(rr, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Errorf("got %d %q", rr.Code, rr.Body.String())
	}
}

func TestNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	NewErrorHandler(testLogger()).NotFound(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assertJSON(t, rr, http.StatusNotFound, "error", "Endpoint not found")
}
