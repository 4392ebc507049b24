package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mediastash/offline_downloader/internal/coordinator"
	"github.com/mediastash/offline_downloader/internal/logctx"
)

// Engine is the slice of the coordinator the REST surface drives.
type Engine interface {
	EnqueueItem(ctx context.Context, itemID string, resources []coordinator.Resource) error
	Pause(itemID string) error
	Resume(ctx context.Context, itemID string) error
	CancelAndDelete(ctx context.Context, itemID string) error
	ItemProgress(itemID string) (coordinator.Progress, error)
}

// EnqueueRequest is the body of an enqueue call.
type EnqueueRequest struct {
	Resources []ResourcePayload `json:"resources"`
}

// ResourcePayload is one resource of an item.
type ResourcePayload struct {
	SourceURL  string `json:"source_url"`
	TargetPath string `json:"target_path"`
	TrackRef   string `json:"track_ref,omitempty"`
}

// ProgressResponse is the aggregate progress of an item.
type ProgressResponse struct {
	ItemID       string `json:"item_id"`
	BytesDone    int64  `json:"bytes_done"`
	BytesTotal   int64  `json:"bytes_total"` // -1 while still unknown
	UnitsTotal   int    `json:"units_total"`
	UnitsDone    int    `json:"units_done"`
	UnitsStarted int    `json:"units_started"`
}

// ItemsHandler exposes the coordinator's item operations over HTTP.
type ItemsHandler struct {
	username string
	password string
	engine   Engine
}

// NewItemsHandler creates a new items handler. Empty credentials disable auth.
func NewItemsHandler(username, password string, engine Engine) *ItemsHandler {
	return &ItemsHandler{
		username: username,
		password: password,
		engine:   engine,
	}
}

func (h *ItemsHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.basicAuthMiddleware)

	r.Post("/items/{itemID}", h.HandleEnqueue)
	r.Post("/items/{itemID}/pause", h.HandlePause)
	r.Post("/items/{itemID}/resume", h.HandleResume)
	r.Delete("/items/{itemID}", h.HandleDelete)
	r.Get("/items/{itemID}/progress", h.HandleProgress)

	return r
}

// HandleEnqueue registers an item's resources and schedules their download.
func (h *ItemsHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())
	itemID := chi.URLParam(r, "itemID")

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode enqueue request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if len(req.Resources) == 0 {
		http.Error(w, "no resources given", http.StatusBadRequest)

		return
	}

	resources := make([]coordinator.Resource, 0, len(req.Resources))

	for _, res := range req.Resources {
		if res.SourceURL == "" || res.TargetPath == "" {
			http.Error(w, "resource needs source_url and target_path", http.StatusBadRequest)

			return
		}

		resources = append(resources, coordinator.Resource{
			SourceURL:  res.SourceURL,
			TargetPath: res.TargetPath,
			TrackRef:   res.TrackRef,
		})
	}

	if err := h.engine.EnqueueItem(r.Context(), itemID, resources); err != nil {
		logger.Error("failed to enqueue item", "item_id", itemID, "err", err)
		http.Error(w, "failed to enqueue item", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandlePause cancels the item's running units. Settlement is asynchronous, so the
// call answers 202 immediately.
func (h *ItemsHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	if err := h.engine.Pause(itemID); err != nil {
		h.writeEngineError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleResume re-submits the item's unfinished units.
func (h *ItemsHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	if err := h.engine.Resume(r.Context(), itemID); err != nil {
		h.writeEngineError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleDelete cancels the item, removes its files and drops its catalog state.
func (h *ItemsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	if err := h.engine.CancelAndDelete(r.Context(), itemID); err != nil {
		h.writeEngineError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleProgress returns the item's aggregated byte progress.
func (h *ItemsHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	progress, err := h.engine.ItemProgress(itemID)
	if err != nil {
		h.writeEngineError(w, r, err)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(ProgressResponse{
		ItemID:       itemID,
		BytesDone:    progress.BytesDone,
		BytesTotal:   progress.BytesTotal,
		UnitsTotal:   progress.UnitsTotal,
		UnitsDone:    progress.UnitsDone,
		UnitsStarted: progress.UnitsStarted,
	})
}

func (h *ItemsHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	if errors.Is(err, coordinator.ErrUnknownItem) {
		http.Error(w, "unknown item", http.StatusNotFound)

		return
	}

	logger.Error("item operation failed", "err", err)
	http.Error(w, "operation failed", http.StatusInternalServerError)
}

func (h *ItemsHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.username == "" && h.password == "" {
			next.ServeHTTP(w, r)

			return
		}

		username, password, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="offline_downloader"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}
