package mail

import (
	"bytes"
	"context"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
)

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	if err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "Kod", Body: "123456"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), `"to":"a@example.com"`) {
		t.Fatalf("log output = %s", buf.String())
	}
}

func TestMessageValidateRejectsHeaderInjection(t *testing.T) {
	err := Message{To: "a@example.com", Subject: "hi\r\nBcc: x@example.com"}.Validate()
	if err == nil {
		t.Fatal("expected header injection to be rejected")
	}
	if err := (Message{}).Validate(); err == nil {
		t.Fatal("expected missing recipient to be rejected")
	}
}

func TestSMTPSenderRendersMessage(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p", From: "noreply@ilanhub.test"})
	if err != nil {
		t.Fatal(err)
	}
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		if a == nil {
			t.Fatal("expected auth when username is set")
		}
		return nil
	}
	if err := s.Send(context.Background(), Message{To: "b@example.com", Subject: "İlanınız onaylandı", Body: "line1\nline2"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("addr = %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "b@example.com" {
		t.Fatalf("to = %v", gotTo)
	}
	if !strings.Contains(string(gotMsg), "Subject: İlanınız onaylandı\r\n") || !strings.HasSuffix(string(gotMsg), "line1\r\nline2") {
		t.Fatalf("message = %q", gotMsg)
	}
}

func TestRecorderLast(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	_ = r.Send(ctx, Message{To: "a@x", Body: "1"})
	_ = r.Send(ctx, Message{To: "b@x", Body: "2"})
	_ = r.Send(ctx, Message{To: "a@x", Body: "3"})
	m, ok := r.Last("a@x")
	if !ok || m.Body != "3" {
		t.Fatalf("last = %+v, %v", m, ok)
	}
	if len(r.Sent()) != 3 {
		t.Fatalf("sent = %d", len(r.Sent()))
	}
}
