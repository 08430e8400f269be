package server

import (
	"net/http"

	"github.com/decivue/decivue/internal/model"
	"github.com/decivue/decivue/internal/storage"
)

// HandleCreateAssumption handles POST /v1/assumptions. Decision links in
// the request are created atomically with the assumption, then conflict
// detection runs against category peers.
func (h *Handlers) HandleCreateAssumption(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAssumptionRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	a := model.Assumption{
		Description: req.Description,
		Status:      model.AssumptionStatus(req.Status),
		Scope:       model.AssumptionScope(req.Scope),
		Category:    model.AssumptionCategory(req.Category),
		Params:      req.Params,
	}

	created, err := h.db.CreateAssumption(r.Context(), a, req.DecisionIDs)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	detected, err := h.detector.DetectAssumptionConflicts(r.Context(), created.ID)
	if err != nil {
		// The assumption exists; failed detection degrades, not fails.
		h.logger.Warn("conflict detection failed", "assumption_id", created.ID, "error", err)
	}

	writeJSON(w, r, http.StatusCreated, map[string]any{
		"assumption": created,
		"conflicts":  detected,
	})
}

// HandleListAssumptions handles GET /v1/assumptions.
func (h *Handlers) HandleListAssumptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filters storage.AssumptionFilters
	if v := q.Get("status"); v != "" {
		if !model.ValidAssumptionStatus(v) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown status "+v)
			return
		}
		status := model.AssumptionStatus(v)
		filters.Status = &status
	}
	if v := q.Get("scope"); v != "" {
		scope := model.AssumptionScope(v)
		filters.Scope = &scope
	}
	if v := q.Get("category"); v != "" {
		category := model.AssumptionCategory(v)
		filters.Category = &category
	}

	assumptions, total, err := h.db.ListAssumptions(r.Context(), filters,
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"assumptions": assumptions,
		"total":       total,
	})
}

// HandleGetAssumption handles GET /v1/assumptions/{id}.
func (h *Handlers) HandleGetAssumption(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid assumption id")
		return
	}

	a, err := h.db.GetAssumption(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

// HandleUpdateAssumptionStatus handles PATCH /v1/assumptions/{id}/status.
// Changing status does not automatically re-evaluate linked decisions;
// evaluation stays an explicit operation.
func (h *Handlers) HandleUpdateAssumptionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid assumption id")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := h.decodeJSON(w, r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if !model.ValidAssumptionStatus(req.Status) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "status must be VALID, SHAKY, or BROKEN")
		return
	}

	if err := h.db.UpdateAssumptionStatus(r.Context(), id, model.AssumptionStatus(req.Status)); err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	h.logger.Info("assumption status updated", "assumption_id", id, "status", req.Status, "user_id", userIDFrom(r))
	writeJSON(w, r, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

// HandleDeleteAssumption handles DELETE /v1/assumptions/{id}.
func (h *Handlers) HandleDeleteAssumption(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid assumption id")
		return
	}

	if err := h.db.DeleteAssumption(r.Context(), id); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// HandleLinkAssumption handles POST /v1/decisions/{id}/assumptions/{assumption_id}.
func (h *Handlers) HandleLinkAssumption(w http.ResponseWriter, r *http.Request) {
	decisionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}
	assumptionID, err := pathUUID(r, "assumption_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid assumption id")
		return
	}

	// Verify both sides exist so the link error surfaces as 404, not a
	// foreign key violation.
	if _, err := h.db.GetDecision(r.Context(), decisionID, false, false); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	if _, err := h.db.GetAssumption(r.Context(), assumptionID); err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	if err := h.db.LinkAssumption(r.Context(), decisionID, assumptionID); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"decision_id":   decisionID,
		"assumption_id": assumptionID,
		"linked":        true,
	})
}

// HandleUnlinkAssumption handles DELETE /v1/decisions/{id}/assumptions/{assumption_id}.
func (h *Handlers) HandleUnlinkAssumption(w http.ResponseWriter, r *http.Request) {
	decisionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}
	assumptionID, err := pathUUID(r, "assumption_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid assumption id")
		return
	}

	if err := h.db.UnlinkAssumption(r.Context(), decisionID, assumptionID); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"decision_id":   decisionID,
		"assumption_id": assumptionID,
		"linked":        false,
	})
}
