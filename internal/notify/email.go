package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailNotifier sends confirmations via unauthenticated SMTP
// (Mailpit-compatible). A copy goes to the admin address when configured.
type EmailNotifier struct {
	addr    string
	from    string
	adminTo string
}

func NewEmailNotifier(host, port, from, adminTo string) *EmailNotifier {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@yoyaku.local"
	}
	return &EmailNotifier{
		addr:    fmt.Sprintf("%s:%s", strings.TrimSpace(host), strings.TrimSpace(port)),
		from:    from,
		adminTo: strings.TrimSpace(adminTo),
	}
}

func (n *EmailNotifier) BookingConfirmed(_ context.Context, c Confirmation) error {
	name := c.Name
	if name == "" {
		name = c.Email
	}

	userBody := fmt.Sprintf(
		"Hello %s,\n\nYour booking is confirmed.\n\nBooking ID: %s\nResource: %s\nDate/time: %s\n\nTo cancel, use the link in your booking page with the ID above.\n",
		name, c.ReservationID, c.ResourceName, c.LocalLabel,
	)
	userErr := n.send(c.Email, "Your booking is confirmed", userBody)

	var adminErr error
	if n.adminTo != "" {
		adminBody := fmt.Sprintf(
			"A new booking was created.\n\nBooking ID: %s\nResource: %s\nCustomer: %s <%s>\nDate/time: %s\n",
			c.ReservationID, c.ResourceName, name, c.Email, c.LocalLabel,
		)
		adminErr = n.send(n.adminTo, "New booking received", adminBody)
	}

	return errors.Join(userErr, adminErr)
}

func (n *EmailNotifier) send(to, subject, body string) error {
	msg := buildMessage(n.from, to, subject, body)
	return smtp.SendMail(n.addr, nil, n.from, []string{to}, []byte(msg))
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}
