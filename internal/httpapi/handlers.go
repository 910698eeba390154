package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/alexanderramin/workgrid/internal/contract"
	"github.com/alexanderramin/workgrid/internal/domain"
	"github.com/alexanderramin/workgrid/internal/service"
)

func (h *handler) updateRow(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req contract.RowRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	res, err := h.Rows.UpdateRow(r.Context(), actor, service.RowUpdate{
		ItemID:  id,
		Version: req.EffectiveVersion(),
		Fields:  req.MergedFields(),
		Entries: req.Entries,
	})
	if err != nil {
		h.writeRowError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, rowResponseOf(res))
}

// writeRowError names the row in conflict and validation answers so the
// client can mark it.
func (h *handler) writeRowError(w http.ResponseWriter, r *http.Request, id string, err error) {
	status, body := errorResponse(err)
	if status == http.StatusInternalServerError {
		h.writeError(w, r, err)
		return
	}
	if body.ItemID == "" {
		body.ItemID = id
	}
	writeJSON(w, status, body)
}

func (h *handler) updateProjectEstimate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req contract.ProjectEstimateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Rows.UpdateProjectEstimate(r.Context(), actor, r.PathValue("id"), req.EstimatedEffort)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.ProjectEstimateResponse{
		OK:              true,
		ID:              res.ProjectID,
		EstimatedEffort: contract.Effort(res.Estimate),
		ScheduledEffort: contract.Effort(res.Scheduled),
		CheckValue:      contract.Effort(res.Check),
	})
}

func (h *handler) deleteItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req contract.DeleteRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	rows := make([]service.RowRef, 0, len(req.Rows))
	for _, row := range req.Rows {
		rows = append(rows, service.RowRef{ID: row.ID, Kind: domain.RowKind(row.Kind)})
	}
	res, err := h.Items.DeleteItems(r.Context(), actor, rows)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.DeleteResponse{OK: true, Deleted: nonNil(res.Deleted)})
}

func (h *handler) createItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req contract.CreateItemsRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ids, err := h.Items.CreateItems(r.Context(), actor, r.PathValue("id"), req.Count)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, contract.CreateItemsResponse{OK: true, IDs: nonNil(ids)})
}

func (h *handler) copyItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req contract.CopyRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Items.CopyItems(r.Context(), actor, req.ItemIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := contract.CopyResponse{OK: true, Items: make([]contract.CopiedItem, 0, len(res.Created))}
	for _, pair := range res.Created {
		out.Items = append(out.Items, contract.CopiedItem{SourceID: pair.SourceID, ID: pair.CopyID})
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *handler) recolor(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req contract.RecolorRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Items.Recolor(r.Context(), actor, req.ItemIDs, req.Versions, domain.Color(req.Color))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.RecolorResponse{
		OK:       true,
		Versions: res.Versions,
		Skipped:  nonNil(res.Skipped),
	})
}

func (h *handler) reorder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req contract.ReorderRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ranks := make([]service.Rank, 0, len(req.Order))
	for _, e := range req.Order {
		ranks = append(ranks, service.Rank{ItemID: e.ItemID, Rank: e.Rank})
	}
	applied, err := h.Layout.Reorder(r.Context(), actor, ranks)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.ReorderResponse{OK: true, Applied: applied})
}

func (h *handler) updateProjectDates(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req contract.DatesRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	fe := domain.FieldErrors{}
	start := parseOptionalDate(fe, "start_date", req.StartDate)
	end := parseOptionalDate(fe, "end_date", req.EndDate)
	if err := fe.Err(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Layout.UpdateProjectDates(r.Context(), actor, r.PathValue("id"), start, end); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.OKResponse{OK: true})
}

func (h *handler) updateMilestoneDates(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req contract.DatesRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	fe := domain.FieldErrors{}
	start := parseOptionalDate(fe, "start_date", req.StartDate)
	effective := parseOptionalDate(fe, "effective_date", req.EffectiveDate)
	if err := fe.Err(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Layout.UpdateMilestoneDates(r.Context(), actor, r.PathValue("id"), start, effective); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.OKResponse{OK: true})
}

// parseOptionalDate treats null and "" as clearing the date.
func parseOptionalDate(fe domain.FieldErrors, field string, raw *string) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	t, err := domain.ParseDate(*raw)
	if err != nil {
		fe.Add(field, "is not a valid date")
		return nil
	}
	return &t
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
