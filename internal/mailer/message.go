package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Message is one outbound email. It is built by the Dispatcher, sent once
// and then discarded.
type Message struct {
	ID         string
	From       mail.Address
	To         []string
	Subject    string
	HTML       string
	Attachment *Attachment

	// Encrypt asks the transport to wrap the body in PGP/MIME when it has
	// a recipient key.
	Encrypt bool
}

// Attachment references a file on disk. It is read when the message is
// encoded, so the file must exist until Send returns.
type Attachment struct {
	Filename    string
	ContentType string
	Path        string
}

// entity is a MIME part: its headers and encoded body.
type entity struct {
	header textproto.MIMEHeader
	body   []byte
}

func (e entity) bytes() []byte {
	var buf bytes.Buffer
	writeHeaders(&buf, e.header)
	buf.WriteString("\r\n")
	buf.Write(e.body)
	return buf.Bytes()
}

// buildMessage encodes msg as an RFC 5322 message. When keyring is non-nil
// the body and attachment are encrypted as PGP/MIME (RFC 3156).
func buildMessage(msg Message, keyring openpgp.EntityList, now time.Time) ([]byte, error) {
	body, err := buildBody(msg)
	if err != nil {
		return nil, err
	}

	if keyring != nil {
		body, err = encryptEntity(keyring, body)
		if err != nil {
			return nil, fmt.Errorf("pgp encryption: %w", err)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("From: " + msg.From.String() + "\r\n")
	buf.WriteString("To: " + headerSafe(strings.Join(msg.To, ", ")) + "\r\n")
	buf.WriteString("Subject: " + mime.QEncoding.Encode("UTF-8", headerSafe(msg.Subject)) + "\r\n")
	buf.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	if msg.ID != "" {
		buf.WriteString("Message-ID: <" + msg.ID + "@" + domainOf(msg.From.Address) + ">\r\n")
	}
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.Write(body.bytes())
	return buf.Bytes(), nil
}

// buildBody returns the HTML part alone, or a multipart/mixed entity when
// the message carries an attachment.
func buildBody(msg Message) (entity, error) {
	html, err := htmlEntity(msg.HTML)
	if err != nil {
		return entity{}, err
	}
	if msg.Attachment == nil {
		return html, nil
	}

	att, err := attachmentEntity(msg.Attachment)
	if err != nil {
		return entity{}, err
	}
	return multipartEntity("multipart/mixed", nil, html, att)
}

func htmlEntity(html string) (entity, error) {
	var buf bytes.Buffer
	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(html)); err != nil {
		return entity{}, err
	}
	if err := qp.Close(); err != nil {
		return entity{}, err
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "text/html; charset=UTF-8")
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	return entity{header: h, body: buf.Bytes()}, nil
}

func attachmentEntity(a *Attachment) (entity, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return entity{}, fmt.Errorf("read attachment: %w", err)
	}

	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := headerSafe(a.Filename)

	h := textproto.MIMEHeader{}
	h.Set("Content-Type", mime.FormatMediaType(contentType, map[string]string{"name": filename}))
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))

	encoded := base64.StdEncoding.EncodeToString(data)
	var buf bytes.Buffer
	// Write in 76-character lines per RFC 2045
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		buf.WriteString(encoded[i:end])
		buf.WriteString("\r\n")
	}
	return entity{header: h, body: buf.Bytes()}, nil
}

func multipartEntity(mediaType string, params map[string]string, parts ...entity) (entity, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		pw, err := w.CreatePart(p.header)
		if err != nil {
			return entity{}, err
		}
		if _, err := pw.Write(p.body); err != nil {
			return entity{}, err
		}
	}
	if err := w.Close(); err != nil {
		return entity{}, err
	}

	all := map[string]string{"boundary": w.Boundary()}
	for k, v := range params {
		all[k] = v
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", mime.FormatMediaType(mediaType, all))
	return entity{header: h, body: buf.Bytes()}, nil
}

func writeHeaders(buf *bytes.Buffer, h textproto.MIMEHeader) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			buf.WriteString(k + ": " + v + "\r\n")
		}
	}
}

// headerSafe removes line breaks so submitted values cannot inject headers.
func headerSafe(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == '\r' || r == '\n'
	}), " ")
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
