package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/yoyaku-app/yoyaku/internal/booking"
	"github.com/yoyaku-app/yoyaku/internal/idempotency"
	"github.com/yoyaku-app/yoyaku/internal/model"
)

const idempotencyKeyHeader = "X-Idempotency-Key"

// IdempotencyStore records create outcomes under a client key for replay.
// Satisfied by *idempotency.Store; nil disables replay.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (idempotency.Record, bool, error)
	Put(ctx context.Context, key string, rec idempotency.Record) error
}

type BookingHandler struct {
	svc    *booking.Service
	idem   IdempotencyStore
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, idem IdempotencyStore, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, idem: idem, logger: logger}
}

type createBookingRequest struct {
	ResourceID   string `json:"resourceId"`
	StartAtLocal string `json:"startAtLocal"`
	EndAtLocal   string `json:"endAtLocal"`
	Email        string `json:"email"`
	Name         string `json:"name"`
}

type reservationView struct {
	ID           string `json:"id"`
	ResourceID   string `json:"resourceId"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	StartAt      string `json:"startAt"`
	EndAt        string `json:"endAt"`
	StartAtLocal string `json:"startAtLocal"`
	EndAtLocal   string `json:"endAtLocal"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt"`
}

type slotView struct {
	StartAt      string `json:"startAt"`
	EndAt        string `json:"endAt"`
	StartAtLocal string `json:"startAtLocal"`
	EndAtLocal   string `json:"endAtLocal"`
	Available    bool   `json:"available"`
}

type availabilityView struct {
	Date       string     `json:"date"`
	ResourceID string     `json:"resourceId"`
	TimeZone   string     `json:"timeZone"`
	Slots      []slotView `json:"slots"`
}

func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeInvalidRequest, "method not allowed")
		return
	}

	resourceID := strings.TrimSpace(r.URL.Query().Get("resourceId"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if resourceID == "" || date == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "resourceId and date are required")
		return
	}

	av, err := h.svc.GetAvailability(r.Context(), resourceID, date)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}

	out := availabilityView{
		Date:       av.Date,
		ResourceID: av.ResourceID,
		TimeZone:   av.TimeZone,
		Slots:      make([]slotView, 0, len(av.Slots)),
	}
	for _, sl := range av.Slots {
		out.Slots = append(out.Slots, slotView{
			StartAt:      sl.StartAt.Format(time.RFC3339),
			EndAt:        sl.EndAt.Format(time.RFC3339),
			StartAtLocal: sl.StartAtLocal,
			EndAtLocal:   sl.EndAtLocal,
			Available:    sl.Available,
		})
	}
	writeData(w, http.StatusOK, out)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeInvalidRequest, "method not allowed")
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if h.idem != nil && idemKey != "" {
		rec, ok, err := h.idem.Get(r.Context(), idemKey)
		if err != nil {
			h.logger.Warn("idempotency lookup failed", "err", err)
		} else if ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.Status)
			_, _ = w.Write(rec.Body)
			return
		}
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid json body")
		return
	}

	req.ResourceID = strings.TrimSpace(req.ResourceID)
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.ResourceID == "" || req.StartAtLocal == "" || req.EndAtLocal == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "resourceId, startAtLocal, endAtLocal and email are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid email address")
		return
	}
	if len(req.Name) > 100 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "name must be at most 100 characters")
		return
	}

	status := http.StatusCreated
	var body bytes.Buffer

	created, err := h.svc.CreateBooking(r.Context(), booking.CreateRequest{
		ResourceID:   req.ResourceID,
		Email:        req.Email,
		Name:         req.Name,
		StartAtLocal: req.StartAtLocal,
		EndAtLocal:   req.EndAtLocal,
	})
	if err != nil {
		rec := responseRecorder{}
		writeEngineError(&rec, h.logger, err)
		status = rec.status
		body = rec.body
	} else {
		_ = json.NewEncoder(&body).Encode(map[string]any{"data": h.view(created)})
	}

	// Replay the same outcome for retried keys, but never pin a transient
	// server-side failure.
	if h.idem != nil && idemKey != "" && status < http.StatusInternalServerError {
		if err := h.idem.Put(r.Context(), idemKey, idempotency.Record{
			Status: status,
			Body:   json.RawMessage(body.Bytes()),
		}); err != nil {
			h.logger.Warn("idempotency store failed", "err", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
}

// ByID serves GET (fetch) and DELETE (cancel) for /api/v1/bookings/{id}.
func (h *BookingHandler) ByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "booking id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		res, err := h.svc.GetBooking(r.Context(), id)
		if err != nil {
			writeEngineError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, h.view(res))
	case http.MethodDelete:
		if err := h.svc.CancelBooking(r.Context(), id); err != nil {
			writeEngineError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{
			"id":     id,
			"status": string(model.StatusCanceled),
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, codeInvalidRequest, "method not allowed")
	}
}

func (h *BookingHandler) view(res model.Reservation) reservationView {
	zone := h.svc.Zone()
	return reservationView{
		ID:           res.ID,
		ResourceID:   res.ResourceID,
		Email:        res.Email,
		Name:         res.Name,
		StartAt:      res.StartAt.UTC().Format(time.RFC3339),
		EndAt:        res.EndAt.UTC().Format(time.RFC3339),
		StartAtLocal: zone.FormatLocal(res.StartAt),
		EndAtLocal:   zone.FormatLocal(res.EndAt),
		Status:       string(res.Status),
		CreatedAt:    res.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// responseRecorder captures a response so create outcomes can be both sent
// and stored for idempotent replay.
type responseRecorder struct {
	status int
	body   bytes.Buffer
	header http.Header
}

func (r *responseRecorder) Header() http.Header {
	if r.header == nil {
		r.header = http.Header{}
	}
	return r.header
}

func (r *responseRecorder) WriteHeader(code int) { r.status = code }

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}
