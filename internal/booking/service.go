// Package booking implements the slot availability and conflict-free booking
// engine. The engine is stateless per request: all concurrency correctness is
// delegated to the Store's atomic exclusion guarantee.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yoyaku-app/yoyaku/internal/localtime"
	"github.com/yoyaku-app/yoyaku/internal/model"
	"github.com/yoyaku-app/yoyaku/internal/notify"
	"github.com/yoyaku-app/yoyaku/internal/slots"
)

// Store is the narrow interface the engine consumes from the datastore.
//
// Implementations must return the package's typed errors where noted and must
// enforce the exclusion invariant atomically at insert time: for a fixed
// resource, confirmed reservations never overlap, even under concurrent
// inserts.
type Store interface {
	// GetResource returns ErrResourceNotFound when no such resource exists.
	GetResource(ctx context.Context, id string) (model.Resource, error)
	// GetReservation returns ErrBookingNotFound when no such reservation exists.
	GetReservation(ctx context.Context, id string) (model.Reservation, error)
	// ConfirmedOverlapping returns confirmed reservations for the resource
	// whose [StartAt, EndAt) intersects [start, end). Canceled reservations
	// are excluded by the fetch predicate.
	ConfirmedOverlapping(ctx context.Context, resourceID string, start, end time.Time) ([]model.Reservation, error)
	// Insert atomically persists a confirmed reservation, returning
	// ErrTimeSlotConflict when it would overlap an existing confirmed
	// reservation for the same resource.
	Insert(ctx context.Context, r model.Reservation) (model.Reservation, error)
	// MarkCanceled sets the reservation's status to canceled and returns the
	// updated record, or ErrBookingNotFound.
	MarkCanceled(ctx context.Context, id string) (model.Reservation, error)
}

type Config struct {
	Zone         *localtime.Zone
	Hours        slots.Hours
	SlotDuration time.Duration
}

type Service struct {
	store    Store
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(store Store, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = 15 * time.Minute
	}
	if cfg.Hours.EndHour <= cfg.Hours.StartHour {
		cfg.Hours = slots.Hours{StartHour: 9, EndHour: 18}
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SlotView is one candidate slot with both local and absolute bounds.
type SlotView struct {
	StartAt      time.Time
	EndAt        time.Time
	StartAtLocal string
	EndAtLocal   string
	Available    bool
}

// Availability is the day view for one resource.
type Availability struct {
	Date       string
	ResourceID string
	TimeZone   string
	Slots      []SlotView
}

// GetAvailability computes the slot list for a local calendar date. A resource
// with no bookable slots is a valid empty answer; an unknown resource is
// ErrResourceNotFound.
func (s *Service) GetAvailability(ctx context.Context, resourceID, date string) (Availability, error) {
	if _, err := s.store.GetResource(ctx, resourceID); err != nil {
		return Availability{}, s.wrap("get resource", err)
	}

	day, err := s.cfg.Zone.ParseDate(date)
	if err != nil {
		return Availability{}, errors.Join(ErrInvalidTimeSlot, err)
	}

	dayStart, dayEnd := s.cfg.Zone.DayBounds(day)
	existing, err := s.store.ConfirmedOverlapping(ctx, resourceID, dayStart, dayEnd)
	if err != nil {
		return Availability{}, s.wrap("list reservations", err)
	}

	busy := make([]slots.Interval, 0, len(existing))
	for _, r := range existing {
		busy = append(busy, slots.Interval{Start: r.StartAt, End: r.EndAt})
	}

	candidates := slots.Generate(day, s.cfg.Hours, s.cfg.SlotDuration)
	slots.MarkBusy(candidates, busy)

	views := make([]SlotView, 0, len(candidates))
	for _, sl := range candidates {
		views = append(views, SlotView{
			StartAt:      sl.StartAt.UTC(),
			EndAt:        sl.EndAt.UTC(),
			StartAtLocal: s.cfg.Zone.FormatLocal(sl.StartAt),
			EndAtLocal:   s.cfg.Zone.FormatLocal(sl.EndAt),
			Available:    sl.Available,
		})
	}

	return Availability{
		Date:       date,
		ResourceID: resourceID,
		TimeZone:   s.cfg.Zone.Name(),
		Slots:      views,
	}, nil
}

type CreateRequest struct {
	ResourceID   string
	Email        string
	Name         string
	StartAtLocal string
	EndAtLocal   string
}

// CreateBooking drives the Requested → Confirmed transition. Preconditions
// are checked in order, first failure wins: resource existence, slot validity,
// then the atomic insert that enforces the exclusion invariant. On success the
// notifier is invoked fire-and-forget; its failure never rolls back or fails
// the booking.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (model.Reservation, error) {
	resource, err := s.store.GetResource(ctx, req.ResourceID)
	if err != nil {
		return model.Reservation{}, s.wrap("get resource", err)
	}

	start, err := s.cfg.Zone.ParseLocal(req.StartAtLocal)
	if err != nil {
		return model.Reservation{}, errors.Join(ErrInvalidTimeSlot, err)
	}
	end, err := s.cfg.Zone.ParseLocal(req.EndAtLocal)
	if err != nil {
		return model.Reservation{}, errors.Join(ErrInvalidTimeSlot, err)
	}
	if err := s.validateSlot(start, end); err != nil {
		return model.Reservation{}, err
	}

	created, err := s.store.Insert(ctx, model.Reservation{
		ResourceID: req.ResourceID,
		Email:      req.Email,
		Name:       req.Name,
		StartAt:    start,
		EndAt:      end,
		Status:     model.StatusConfirmed,
	})
	if err != nil {
		return model.Reservation{}, s.wrap("insert reservation", err)
	}

	// Delivery outlives the request but must not block or fail it; detach
	// from the request's cancellation and surface the outcome via logs only.
	go s.sendConfirmation(context.WithoutCancel(ctx), created, resource.Name)

	return created, nil
}

// CancelBooking drives Confirmed → Canceled. Canceling an already canceled
// reservation is an idempotent no-op success; Canceled is terminal.
func (s *Service) CancelBooking(ctx context.Context, id string) error {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return s.wrap("get reservation", err)
	}
	if r.Status == model.StatusCanceled {
		return nil
	}
	if _, err := s.store.MarkCanceled(ctx, id); err != nil {
		return s.wrap("cancel reservation", err)
	}
	return nil
}

func (s *Service) GetBooking(ctx context.Context, id string) (model.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return model.Reservation{}, s.wrap("get reservation", err)
	}
	return r, nil
}

// Zone exposes the business timezone for callers that render local times.
func (s *Service) Zone() *localtime.Zone { return s.cfg.Zone }

// validateSlot enforces that [start, end) is exactly one slot long, aligned to
// the slot grid within business hours of its local day, and strictly in the
// future.
func (s *Service) validateSlot(start, end time.Time) error {
	if end.Sub(start) != s.cfg.SlotDuration {
		return ErrInvalidTimeSlot
	}

	loc := s.cfg.Zone.Location()
	localStart := start.In(loc)
	y, m, d := localStart.Date()
	open := time.Date(y, m, d, s.cfg.Hours.StartHour, 0, 0, 0, loc)
	close := time.Date(y, m, d, s.cfg.Hours.EndHour, 0, 0, 0, loc)

	if localStart.Before(open) || end.In(loc).After(close) {
		return ErrInvalidTimeSlot
	}
	if localStart.Sub(open)%s.cfg.SlotDuration != 0 {
		return ErrInvalidTimeSlot
	}
	if !start.After(s.now()) {
		return ErrInvalidTimeSlot
	}
	return nil
}

func (s *Service) sendConfirmation(ctx context.Context, r model.Reservation, resourceName string) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err := s.notifier.BookingConfirmed(ctx, notify.Confirmation{
		ReservationID: r.ID,
		ResourceName:  resourceName,
		Email:         r.Email,
		Name:          r.Name,
		LocalLabel:    s.cfg.Zone.FormatLabel(r.StartAt, r.EndAt),
		StartAt:       r.StartAt,
		EndAt:         r.EndAt,
	})
	if err != nil {
		s.logger.Error("booking confirmation notify failed", "reservation_id", r.ID, "err", err)
		return
	}
	s.logger.Info("booking confirmation sent", "reservation_id", r.ID)
}

// wrap passes the engine's typed errors through and converts anything else
// into a StorageError so unexpected datastore failures stay distinguishable
// without leaking driver details into the taxonomy.
func (s *Service) wrap(op string, err error) error {
	if err == nil || isTyped(err) {
		return err
	}
	return storageErr(op, err)
}
