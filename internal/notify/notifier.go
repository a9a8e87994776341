// Package notify delivers booking confirmations. One concrete implementation
// is selected at process startup; the booking engine only sees the Notifier
// interface and treats delivery as fire-and-forget.
package notify

import (
	"context"
	"time"
)

type Confirmation struct {
	ReservationID string
	ResourceName  string
	Email         string
	Name          string
	LocalLabel    string // local date-time range, e.g. "2026-01-28 10:00-10:15 (Asia/Tokyo)"
	StartAt       time.Time
	EndAt         time.Time
}

type Notifier interface {
	BookingConfirmed(ctx context.Context, c Confirmation) error
}

// Noop discards confirmations. Used when no provider is configured.
type Noop struct{}

func (Noop) BookingConfirmed(context.Context, Confirmation) error { return nil }
