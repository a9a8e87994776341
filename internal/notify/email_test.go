package notify

import (
	"strings"
	"testing"
)

func TestBuildMessage_Headers(t *testing.T) {
	msg := buildMessage("no-reply@yoyaku.local", "taro@example.com", "Your booking is confirmed", "Hello Taro,\n\nSee you soon.\n")

	headerEnd := strings.Index(msg, "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatal("message has no header/body separator")
	}
	headers := msg[:headerEnd]

	for _, want := range []string{
		"From: no-reply@yoyaku.local",
		"To: taro@example.com",
		"Subject: Your booking is confirmed",
		"Content-Type: text/plain; charset=utf-8",
	} {
		if !strings.Contains(headers, want) {
			t.Fatalf("headers missing %q:\n%s", want, headers)
		}
	}
	if !strings.Contains(msg[headerEnd+4:], "Hello Taro,") {
		t.Fatal("body missing greeting")
	}
}

func TestNewEmailNotifier_Defaults(t *testing.T) {
	n := NewEmailNotifier(" mail.local ", " 1025 ", "", "ops@example.com")
	if n.addr != "mail.local:1025" {
		t.Fatalf("addr = %q", n.addr)
	}
	if n.from != "no-reply@yoyaku.local" {
		t.Fatalf("from = %q", n.from)
	}
	if n.adminTo != "ops@example.com" {
		t.Fatalf("adminTo = %q", n.adminTo)
	}
}
