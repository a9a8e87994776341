package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yoyaku-app/yoyaku/internal/localtime"
	"github.com/yoyaku-app/yoyaku/internal/model"
)

type reservationLister interface {
	ListRecent(ctx context.Context, resourceID string, limit int) ([]model.Reservation, error)
}

// AdminHandler exposes the back-office reservation list, guarded by a shared
// secret compared against its bcrypt hash.
type AdminHandler struct {
	store      reservationLister
	zone       *localtime.Zone
	secretHash []byte
	logger     *slog.Logger
}

func NewAdminHandler(store reservationLister, zone *localtime.Zone, secret string, logger *slog.Logger) (*AdminHandler, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &AdminHandler{store: store, zone: zone, secretHash: hash, logger: logger}, nil
}

func (h *AdminHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeInvalidRequest, "method not allowed")
		return
	}
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, codeInvalidRequest, "unauthorized")
		return
	}

	resourceID := strings.TrimSpace(r.URL.Query().Get("resourceId"))
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	reservations, err := h.store.ListRecent(r.Context(), resourceID, limit)
	if err != nil {
		h.logger.Error("admin booking list failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}

	out := make([]reservationView, 0, len(reservations))
	for _, res := range reservations {
		out = append(out, adminView(h.zone, res))
	}
	writeData(w, http.StatusOK, out)
}

func (h *AdminHandler) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.secretHash, []byte(token)) == nil
}

func adminView(zone *localtime.Zone, res model.Reservation) reservationView {
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
