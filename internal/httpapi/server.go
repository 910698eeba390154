// Package httpapi exposes the grid services over JSON/HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/service"
)

// PersonHeader identifies the acting person on every grid route.
const PersonHeader = contract.PersonHeader

// Services are the use cases the handler dispatches to. Ready reports
// whether the backing store answers; nil means always ready.
type Services struct {
	Rows   service.RowService
	Items  service.ItemService
	Layout service.LayoutService
	Sync   service.SyncService
	Actors service.ActorResolver
	Ready  func(ctx context.Context) error
}

type handler struct {
	Services
	logger *slog.Logger
}

// NewHandler builds the routed HTTP handler.
func NewHandler(svc Services, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{Services: svc, logger: logger}
	mux := http.NewServeMux()

	h.route(mux, "POST /api/items/{id}/row", h.updateRow)
	h.route(mux, "POST /api/projects/{id}/estimate", h.updateProjectEstimate)
	h.route(mux, "POST /api/items/delete", h.deleteItems)
	h.route(mux, "POST /api/projects/{id}/items", h.createItems)
	h.route(mux, "POST /api/items/copy", h.copyItems)
	h.route(mux, "POST /api/items/color", h.recolor)
	h.route(mux, "POST /api/sort-orders", h.reorder)
	h.route(mux, "POST /api/projects/{id}/dates", h.updateProjectDates)
	h.route(mux, "POST /api/milestones/{id}/dates", h.updateMilestoneDates)
	h.route(mux, "GET /api/staleness", h.staleness)
	h.route(mux, "GET /api/snapshot", h.snapshot)
	h.route(mux, "GET /api/health", h.health)
	h.route(mux, "GET /api/ready", h.ready)

	return mux
}

func (h *handler) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, withTracing(h.withLogging(fn)))
}

// actor resolves the calling person. On failure the error response has
// already been written.
func (h *handler) actor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, err := h.Actors.ResolveActor(r.Context(), r.Header.Get(PersonHeader))
	if err != nil {
		h.writeError(w, r, err)
		return service.Actor{}, false
	}
	return actor, true
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// staleness answers the poll probe. It is unauthenticated: the marker
// carries no grid data.
func (h *handler) staleness(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	rec, err := h.Sync.LastUpdate(r.Context(), projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rec.Scope == "" {
		rec.Scope = domain.ScopeFor(projectID)
	}
	writeJSON(w, http.StatusOK, stalenessOf(rec))
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	snap, err := h.Sync.Snapshot(r.Context(), actor, r.URL.Query().Get("project_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotOf(snap))
}
