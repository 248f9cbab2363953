package mailer

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSMTP is a minimal relay that accepts every message.
type fakeSMTP struct {
	ln   net.Listener
	auth bool

	mu       sync.Mutex
	commands []string
	messages []string
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSMTP{ln: ln}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTP) config() SMTPConfig {
	addr := s.ln.Addr().(*net.TCPAddr)
	return SMTPConfig{Host: addr.IP.String(), Port: addr.Port, Timeout: 5 * time.Second}
}

func (s *fakeSMTP) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	tp.PrintfLine("220 localhost ESMTP ready")

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, _, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)
		s.record(verb, "")

		switch verb {
		case "EHLO":
			if s.auth {
				tp.PrintfLine("250-localhost")
				tp.PrintfLine("250 AUTH PLAIN")
			} else {
				tp.PrintfLine("250-localhost")
				tp.PrintfLine("250 8BITMIME")
			}
		case "HELO", "MAIL", "RCPT", "NOOP", "RSET":
			tp.PrintfLine("250 OK")
		case "DATA":
			tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
			lines, err := tp.ReadDotLines()
			if err != nil {
				return
			}
			s.record("", strings.Join(lines, "\n"))
			tp.PrintfLine("250 OK queued")
		case "QUIT":
			tp.PrintfLine("221 Bye")
			return
		default:
			tp.PrintfLine("502 Command not implemented")
		}
	}
}

func (s *fakeSMTP) record(verb, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if verb != "" {
		s.commands = append(s.commands, verb)
	}
	if message != "" {
		s.messages = append(s.messages, message)
	}
}

func (s *fakeSMTP) snapshot() (commands, messages []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...), append([]string(nil), s.messages...)
}

func TestSMTPTransportSend(t *testing.T) {
	srv := newFakeSMTP(t)
	tr := NewSMTPTransport(srv.config())
	tr.now = func() time.Time { return testTime }

	if err := tr.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	commands, messages := srv.snapshot()
	want := []string{"EHLO", "MAIL", "RCPT", "DATA", "QUIT"}
	if strings.Join(commands, " ") != strings.Join(want, " ") {
		t.Errorf("commands = %v, want %v", commands, want)
	}
	if len(messages) != 1 {
		t.Fatalf("relay received %d messages, want 1", len(messages))
	}
	for _, want := range []string{"Subject: Test Subject", "<p>This is a test email.</p>"} {
		if !strings.Contains(messages[0], want) {
			t.Errorf("expected %q in relayed message:\n%s", want, messages[0])
		}
	}
}

func TestSMTPTransportEncryptsMarkedMessages(t *testing.T) {
	pubKey, privKey := generateTestKey(t)
	keyring, err := ParsePublicKey([]byte(pubKey))
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}

	srv := newFakeSMTP(t)
	cfg := srv.config()
	cfg.Keyring = keyring
	tr := NewSMTPTransport(cfg)

	msg := testMessage()
	msg.Encrypt = true
	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, messages := srv.snapshot()
	if len(messages) != 1 {
		t.Fatalf("relay received %d messages, want 1", len(messages))
	}
	if strings.Contains(messages[0], "This is a test email.") {
		t.Error("plaintext reached the relay")
	}
	decrypted := mustDecrypt(t, privKey, extractArmored(t, messages[0]))
	if !strings.Contains(decrypted, "This is a test email.") {
		t.Errorf("decrypted body = %s", decrypted)
	}
}

func TestSMTPTransportVerify(t *testing.T) {
	srv := newFakeSMTP(t)
	tr := NewSMTPTransport(srv.config())

	if err := tr.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	commands, messages := srv.snapshot()
	if strings.Join(commands, " ") != "EHLO NOOP QUIT" {
		t.Errorf("commands = %v", commands)
	}
	if len(messages) != 0 {
		t.Error("Verify must not send mail")
	}
}

func TestSMTPTransportRequiresAuthSupport(t *testing.T) {
	srv := newFakeSMTP(t)
	cfg := srv.config()
	cfg.Username = "relay@example.org"
	cfg.Password = "secret"

	err := NewSMTPTransport(cfg).Verify(context.Background())
	if err == nil || !strings.Contains(err.Error(), "does not support AUTH") {
		t.Errorf("expected AUTH support error, got %v", err)
	}
}

func TestSMTPTransportErrors(t *testing.T) {
	t.Run("no host", func(t *testing.T) {
		err := NewSMTPTransport(SMTPConfig{}).Verify(context.Background())
		if err == nil || !strings.Contains(err.Error(), "host not configured") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addr := ln.Addr().(*net.TCPAddr)
		ln.Close()

		err = NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: addr.Port, Timeout: time.Second}).
			Send(context.Background(), testMessage())
		if err == nil || !strings.Contains(err.Error(), "smtp dial") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := newFakeSMTP(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := NewSMTPTransport(srv.config()).Send(ctx, testMessage()); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
