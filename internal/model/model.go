package model

import "time"

type ReservationStatus string

const (
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCanceled  ReservationStatus = "canceled"
)

// Resource is a bookable entity. Lifecycle is managed outside the engine.
type Resource struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Reservation is a confirmed or canceled interval booking against one
// resource. StartAt/EndAt form the half-open interval [StartAt, EndAt) and
// are always absolute instants (UTC), never wall-clock-plus-offset.
type Reservation struct {
	ID         string
	ResourceID string
	Email      string
	Name       string
	StartAt    time.Time
	EndAt      time.Time
	Status     ReservationStatus
	CreatedAt  time.Time
}
