package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yoyaku-app/yoyaku/internal/model"
)

type resourceLister interface {
	ListResources(ctx context.Context) ([]model.Resource, error)
}

type ResourceHandler struct {
	store  resourceLister
	logger *slog.Logger
}

func NewResourceHandler(store resourceLister, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{store: store, logger: logger}
}

type resourceView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeInvalidRequest, "method not allowed")
		return
	}

	resources, err := h.store.ListResources(r.Context())
	if err != nil {
		h.logger.Error("list resources failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}

	out := make([]resourceView, 0, len(resources))
	for _, res := range resources {
		out = append(out, resourceView{
			ID:        res.ID,
			Name:      res.Name,
			CreatedAt: res.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeData(w, http.StatusOK, out)
}
