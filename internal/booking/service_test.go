package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yoyaku-app/yoyaku/internal/localtime"
	"github.com/yoyaku-app/yoyaku/internal/model"
	"github.com/yoyaku-app/yoyaku/internal/notify"
	"github.com/yoyaku-app/yoyaku/internal/slots"
)

// memStore implements Store in memory with the same semantics the Postgres
// exclusion constraint provides: Insert is atomic and only confirmed rows
// block new confirmed rows.
type memStore struct {
	mu           sync.Mutex
	resources    map[string]model.Resource
	reservations map[string]model.Reservation
	insertCalls  int
	nextID       int
}

func newMemStore(resourceIDs ...string) *memStore {
	s := &memStore{
		resources:    map[string]model.Resource{},
		reservations: map[string]model.Reservation{},
	}
	for _, id := range resourceIDs {
		s.resources[id] = model.Resource{ID: id, Name: "Room " + id}
	}
	return s
}

func (s *memStore) GetResource(_ context.Context, id string) (model.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok {
		return model.Resource{}, ErrResourceNotFound
	}
	return r, nil
}

func (s *memStore) GetReservation(_ context.Context, id string) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return model.Reservation{}, ErrBookingNotFound
	}
	return r, nil
}

func (s *memStore) ConfirmedOverlapping(_ context.Context, resourceID string, start, end time.Time) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.reservations {
		if r.ResourceID == resourceID && r.Status == model.StatusConfirmed &&
			slots.Overlaps(r.StartAt, r.EndAt, start, end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) Insert(_ context.Context, r model.Reservation) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	for _, existing := range s.reservations {
		if existing.ResourceID == r.ResourceID && existing.Status == model.StatusConfirmed &&
			slots.Overlaps(existing.StartAt, existing.EndAt, r.StartAt, r.EndAt) {
			return model.Reservation{}, ErrTimeSlotConflict
		}
	}
	s.nextID++
	r.ID = fmt.Sprintf("res-%d", s.nextID)
	r.CreatedAt = time.Now().UTC()
	s.reservations[r.ID] = r
	return r, nil
}

func (s *memStore) MarkCanceled(_ context.Context, id string) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return model.Reservation{}, ErrBookingNotFound
	}
	r.Status = model.StatusCanceled
	s.reservations[id] = r
	return r, nil
}

type captureNotifier struct {
	ch  chan notify.Confirmation
	err error
}

func (n *captureNotifier) BookingConfirmed(_ context.Context, c notify.Confirmation) error {
	if n.ch != nil {
		n.ch <- c
	}
	return n.err
}

func testZone(t *testing.T) *localtime.Zone {
	t.Helper()
	z, err := localtime.Load("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return z
}

func newTestService(t *testing.T, store Store, notifier notify.Notifier) *Service {
	t.Helper()
	s := NewService(store, notifier, slog.Default(), Config{
		Zone:         testZone(t),
		Hours:        slots.Hours{StartHour: 9, EndHour: 18},
		SlotDuration: 15 * time.Minute,
	})
	// Pin "now" before the test day so every slot of 2027-03-10 is future.
	s.now = func() time.Time { return time.Date(2027, 3, 9, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestCreateBooking_Success(t *testing.T) {
	store := newMemStore("room-a")
	notifier := &captureNotifier{ch: make(chan notify.Confirmation, 1)}
	svc := newTestService(t, store, notifier)

	created, err := svc.CreateBooking(context.Background(), CreateRequest{
		ResourceID:   "room-a",
		Email:        "taro@example.com",
		Name:         "Taro",
		StartAtLocal: "2027-03-10T10:00:00+09:00",
		EndAtLocal:   "2027-03-10T10:15:00+09:00",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", created.Status)
	}
	wantStart := time.Date(2027, 3, 10, 1, 0, 0, 0, time.UTC)
	if !created.StartAt.Equal(wantStart) {
		t.Fatalf("start = %s, want %s", created.StartAt, wantStart)
	}

	select {
	case c := <-notifier.ch:
		if c.ReservationID != created.ID {
			t.Fatalf("notified id %s, want %s", c.ReservationID, created.ID)
		}
		if c.ResourceName != "Room room-a" {
			t.Fatalf("notified resource %q", c.ResourceName)
		}
		if c.LocalLabel != "2027-03-10 10:00-10:15 (Asia/Tokyo)" {
			t.Fatalf("notified label %q", c.LocalLabel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not invoked")
	}
}

func TestCreateBooking_ResourceNotFound(t *testing.T) {
	svc := newTestService(t, newMemStore(), notify.Noop{})

	_, err := svc.CreateBooking(context.Background(), CreateRequest{
		ResourceID:   "ghost",
		Email:        "taro@example.com",
		StartAtLocal: "2027-03-10T10:00:00+09:00",
		EndAtLocal:   "2027-03-10T10:15:00+09:00",
	})
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("err = %v, want ErrResourceNotFound", err)
	}
}

func TestCreateBooking_RejectsInvalidSlotsBeforeInsert(t *testing.T) {
	cases := []struct {
		name       string
		start, end string
	}{
		{"wrong duration", "2027-03-10T10:00:00+09:00", "2027-03-10T10:20:00+09:00"},
		{"misaligned", "2027-03-10T10:05:00+09:00", "2027-03-10T10:20:00+09:00"},
		{"before opening", "2027-03-10T08:45:00+09:00", "2027-03-10T09:00:00+09:00"},
		{"past closing", "2027-03-10T17:50:00+09:00", "2027-03-10T18:05:00+09:00"},
		{"in the past", "2020-03-10T10:00:00+09:00", "2020-03-10T10:15:00+09:00"},
		{"unparseable", "tomorrow-ish", "2027-03-10T10:15:00+09:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore("room-a")
			svc := newTestService(t, store, notify.Noop{})
			_, err := svc.CreateBooking(context.Background(), CreateRequest{
				ResourceID:   "room-a",
				Email:        "taro@example.com",
				StartAtLocal: tc.start,
				EndAtLocal:   tc.end,
			})
			if !errors.Is(err, ErrInvalidTimeSlot) {
				t.Fatalf("err = %v, want ErrInvalidTimeSlot", err)
			}
			if store.insertCalls != 0 {
				t.Fatalf("insert attempted %d times for invalid slot", store.insertCalls)
			}
		})
	}
}

func TestCreateBooking_ConcurrentSameSlotSingleWinner(t *testing.T) {
	store := newMemStore("room-a")
	svc := newTestService(t, store, notify.Noop{})

	const n = 10
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateBooking(context.Background(), CreateRequest{
				ResourceID:   "room-a",
				Email:        "taro@example.com",
				StartAtLocal: "2027-03-10T10:00:00+09:00",
				EndAtLocal:   "2027-03-10T10:15:00+09:00",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrTimeSlotConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != n-1 {
		t.Fatalf("wins = %d, conflicts = %d; want 1 and %d", wins, conflicts, n-1)
	}
}

func TestCreateBooking_SameSlotDifferentResources(t *testing.T) {
	store := newMemStore("room-a", "room-b")
	svc := newTestService(t, store, notify.Noop{})

	for _, resource := range []string{"room-a", "room-b"} {
		_, err := svc.CreateBooking(context.Background(), CreateRequest{
			ResourceID:   resource,
			Email:        "taro@example.com",
			StartAtLocal: "2027-03-10T10:00:00+09:00",
			EndAtLocal:   "2027-03-10T10:15:00+09:00",
		})
		if err != nil {
			t.Fatalf("create for %s: %v", resource, err)
		}
	}
}

func TestCreateBooking_NotifierFailureDoesNotFailBooking(t *testing.T) {
	store := newMemStore("room-a")
	notifier := &captureNotifier{ch: make(chan notify.Confirmation, 1), err: errors.New("smtp down")}
	svc := newTestService(t, store, notifier)

	created, err := svc.CreateBooking(context.Background(), CreateRequest{
		ResourceID:   "room-a",
		Email:        "taro@example.com",
		StartAtLocal: "2027-03-10T10:00:00+09:00",
		EndAtLocal:   "2027-03-10T10:15:00+09:00",
	})
	if err != nil {
		t.Fatalf("create should succeed despite notifier failure: %v", err)
	}

	select {
	case <-notifier.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not invoked")
	}
	if _, err := svc.GetBooking(context.Background(), created.ID); err != nil {
		t.Fatalf("booking should exist: %v", err)
	}
}

func TestCancelBooking_Idempotent(t *testing.T) {
	store := newMemStore("room-a")
	svc := newTestService(t, store, notify.Noop{})

	created, err := svc.CreateBooking(context.Background(), CreateRequest{
		ResourceID:   "room-a",
		Email:        "taro@example.com",
		StartAtLocal: "2027-03-10T10:00:00+09:00",
		EndAtLocal:   "2027-03-10T10:15:00+09:00",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.CancelBooking(context.Background(), created.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := svc.CancelBooking(context.Background(), created.ID); err != nil {
		t.Fatalf("second cancel should be a no-op success: %v", err)
	}

	got, err := svc.GetBooking(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusCanceled {
		t.Fatalf("status = %s, want canceled", got.Status)
	}
}

func TestCancelBooking_NotFound(t *testing.T) {
	svc := newTestService(t, newMemStore("room-a"), notify.Noop{})
	if err := svc.CancelBooking(context.Background(), "ghost"); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("err = %v, want ErrBookingNotFound", err)
	}
}

func TestCancelBooking_FreesSlotForRebooking(t *testing.T) {
	store := newMemStore("room-a")
	svc := newTestService(t, store, notify.Noop{})
	req := CreateRequest{
		ResourceID:   "room-a",
		Email:        "taro@example.com",
		StartAtLocal: "2027-03-10T10:00:00+09:00",
		EndAtLocal:   "2027-03-10T10:15:00+09:00",
	}

	created, err := svc.CreateBooking(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateBooking(context.Background(), req); !errors.Is(err, ErrTimeSlotConflict) {
		t.Fatalf("duplicate create err = %v, want ErrTimeSlotConflict", err)
	}
	if err := svc.CancelBooking(context.Background(), created.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.CreateBooking(context.Background(), req); err != nil {
		t.Fatalf("rebooking a canceled slot should succeed: %v", err)
	}
}

func TestGetAvailability_MarksOverlaps(t *testing.T) {
	store := newMemStore("room-a")
	svc := newTestService(t, store, notify.Noop{})

	// Confirmed 10:00-10:15 JST.
	jst := svc.cfg.Zone.Location()
	if _, err := store.Insert(context.Background(), model.Reservation{
		ResourceID: "room-a",
		Email:      "taro@example.com",
		StartAt:    time.Date(2027, 3, 10, 10, 0, 0, 0, jst).UTC(),
		EndAt:      time.Date(2027, 3, 10, 10, 15, 0, 0, jst).UTC(),
		Status:     model.StatusConfirmed,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	av, err := svc.GetAvailability(context.Background(), "room-a", "2027-03-10")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if av.TimeZone != "Asia/Tokyo" {
		t.Fatalf("timezone = %s", av.TimeZone)
	}
	if len(av.Slots) != 36 {
		t.Fatalf("slots = %d, want 36", len(av.Slots))
	}

	byLocal := map[string]SlotView{}
	for _, sl := range av.Slots {
		byLocal[sl.StartAtLocal] = sl
	}
	if byLocal["2027-03-10T10:00:00+09:00"].Available {
		t.Fatal("10:00 slot should be unavailable")
	}
	if !byLocal["2027-03-10T09:45:00+09:00"].Available {
		t.Fatal("09:45 slot should be available")
	}
	if !byLocal["2027-03-10T10:15:00+09:00"].Available {
		t.Fatal("10:15 slot should be available")
	}
}

func TestGetAvailability_PartialOverlapBlocksBothSlots(t *testing.T) {
	store := newMemStore("room-a")
	svc := newTestService(t, store, notify.Noop{})

	jst := svc.cfg.Zone.Location()
	if _, err := store.Insert(context.Background(), model.Reservation{
		ResourceID: "room-a",
		Email:      "taro@example.com",
		StartAt:    time.Date(2027, 3, 10, 10, 10, 0, 0, jst).UTC(),
		EndAt:      time.Date(2027, 3, 10, 10, 25, 0, 0, jst).UTC(),
		Status:     model.StatusConfirmed,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	av, err := svc.GetAvailability(context.Background(), "room-a", "2027-03-10")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	var unavailable []string
	for _, sl := range av.Slots {
		if !sl.Available {
			unavailable = append(unavailable, sl.StartAtLocal)
		}
	}
	want := []string{"2027-03-10T10:00:00+09:00", "2027-03-10T10:15:00+09:00"}
	if len(unavailable) != len(want) || unavailable[0] != want[0] || unavailable[1] != want[1] {
		t.Fatalf("unavailable = %v, want %v", unavailable, want)
	}
}

func TestGetAvailability_CanceledReservationDoesNotBlock(t *testing.T) {
	store := newMemStore("room-a")
	svc := newTestService(t, store, notify.Noop{})

	jst := svc.cfg.Zone.Location()
	seeded, err := store.Insert(context.Background(), model.Reservation{
		ResourceID: "room-a",
		Email:      "taro@example.com",
		StartAt:    time.Date(2027, 3, 10, 10, 0, 0, 0, jst).UTC(),
		EndAt:      time.Date(2027, 3, 10, 10, 15, 0, 0, jst).UTC(),
		Status:     model.StatusConfirmed,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.MarkCanceled(context.Background(), seeded.ID); err != nil {
		t.Fatalf("cancel seed: %v", err)
	}

	av, err := svc.GetAvailability(context.Background(), "room-a", "2027-03-10")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	for _, sl := range av.Slots {
		if !sl.Available {
			t.Fatalf("slot %s should be available after cancellation", sl.StartAtLocal)
		}
	}
}

func TestGetAvailability_ResourceNotFound(t *testing.T) {
	svc := newTestService(t, newMemStore(), notify.Noop{})
	if _, err := svc.GetAvailability(context.Background(), "ghost", "2027-03-10"); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("err = %v, want ErrResourceNotFound", err)
	}
}

func TestGetAvailability_BadDate(t *testing.T) {
	svc := newTestService(t, newMemStore("room-a"), notify.Noop{})
	if _, err := svc.GetAvailability(context.Background(), "room-a", "03/10/2027"); !errors.Is(err, ErrInvalidTimeSlot) {
		t.Fatalf("err = %v, want ErrInvalidTimeSlot", err)
	}
}

func TestStorageErrorWrapping(t *testing.T) {
	svc := newTestService(t, failingStore{}, notify.Noop{})
	_, err := svc.GetBooking(context.Background(), "any")
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StorageError", err)
	}
	if !errors.Is(err, errDiskOnFire) {
		t.Fatal("wrapped cause should be preserved")
	}
}

var errDiskOnFire = errors.New("disk on fire")

type failingStore struct{}

func (failingStore) GetResource(context.Context, string) (model.Resource, error) {
	return model.Resource{}, errDiskOnFire
}

func (failingStore) GetReservation(context.Context, string) (model.Reservation, error) {
	return model.Reservation{}, errDiskOnFire
}

func (failingStore) ConfirmedOverlapping(context.Context, string, time.Time, time.Time) ([]model.Reservation, error) {
	return nil, errDiskOnFire
}

func (failingStore) Insert(context.Context, model.Reservation) (model.Reservation, error) {
	return model.Reservation{}, errDiskOnFire
}

func (failingStore) MarkCanceled(context.Context, string) (model.Reservation, error) {
	return model.Reservation{}, errDiskOnFire
}
