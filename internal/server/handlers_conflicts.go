package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/decivue/decivue/internal/model"
)

func conflictStatusFilter(w http.ResponseWriter, r *http.Request) (*model.ConflictStatus, bool) {
	v := r.URL.Query().Get("status")
	if v == "" {
		return nil, true
	}
	status := model.ConflictStatus(v)
	if status != model.ConflictOpen && status != model.ConflictResolved {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "status must be open or resolved")
		return nil, false
	}
	return &status, true
}

// HandleListAssumptionConflicts handles GET /v1/conflicts/assumptions.
func (h *Handlers) HandleListAssumptionConflicts(w http.ResponseWriter, r *http.Request) {
	status, ok := conflictStatusFilter(w, r)
	if !ok {
		return
	}

	list, total, err := h.db.ListAssumptionConflicts(r.Context(), status,
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"conflicts": list,
		"total":     total,
	})
}

// HandleDetectConflicts handles POST /v1/assumptions/{id}/detect: runs
// conflict detection for one assumption on demand.
func (h *Handlers) HandleDetectConflicts(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid assumption id")
		return
	}

	detected, err := h.detector.DetectAssumptionConflicts(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"conflicts": detected})
}

// HandleResolveAssumptionConflict handles POST /v1/conflicts/assumptions/{id}/resolve.
func (h *Handlers) HandleResolveAssumptionConflict(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid conflict id")
		return
	}

	var req model.ResolveConflictRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	var winner *uuid.UUID
	if req.WinnerID != uuid.Nil {
		winner = &req.WinnerID
	}

	resolved, err := h.db.ResolveAssumptionConflict(r.Context(), id, userIDFrom(r), winner, req.Notes)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	h.logger.Info("assumption conflict resolved", "conflict_id", id, "user_id", userIDFrom(r))
	writeJSON(w, r, http.StatusOK, resolved)
}

// HandleCreateDecisionConflict handles POST /v1/conflicts/decisions:
// manual declaration that two decisions are incompatible.
func (h *Handlers) HandleCreateDecisionConflict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DecisionAID  uuid.UUID `json:"decision_a_id"`
		DecisionBID  uuid.UUID `json:"decision_b_id"`
		ConflictType string    `json:"conflict_type"`
		Explanation  string    `json:"explanation"`
		Confidence   float64   `json:"confidence"`
	}
	if err := h.decodeJSON(w, r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.DecisionAID == uuid.Nil || req.DecisionBID == uuid.Nil || req.DecisionAID == req.DecisionBID {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "two distinct decision ids are required")
		return
	}
	switch model.ConflictType(req.ConflictType) {
	case model.ConflictContradictory, model.ConflictMutuallyExclusive, model.ConflictIncompatible,
		model.ConflictResourceCompetition, model.ConflictTimelineOverlap:
	default:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown conflict_type")
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "confidence must be in [0, 1]")
		return
	}

	for _, id := range []uuid.UUID{req.DecisionAID, req.DecisionBID} {
		if _, err := h.db.GetDecision(r.Context(), id, false, false); err != nil {
			h.writeStorageError(w, r, err)
			return
		}
	}

	// Manual entries default to full confidence; a human asserted it.
	confidence := req.Confidence
	if confidence == 0 {
		confidence = 1.0
	}

	created, err := h.db.CreateDecisionConflict(r.Context(), model.DecisionConflict{
		DecisionAID:  req.DecisionAID,
		DecisionBID:  req.DecisionBID,
		ConflictType: model.ConflictType(req.ConflictType),
		Confidence:   confidence,
		Explanation:  req.Explanation,
	})
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// HandleListDecisionConflicts handles GET /v1/conflicts/decisions.
func (h *Handlers) HandleListDecisionConflicts(w http.ResponseWriter, r *http.Request) {
	status, ok := conflictStatusFilter(w, r)
	if !ok {
		return
	}

	list, total, err := h.db.ListDecisionConflicts(r.Context(), status,
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"conflicts": list,
		"total":     total,
	})
}

// HandleResolveDecisionConflict handles POST /v1/conflicts/decisions/{id}/resolve.
func (h *Handlers) HandleResolveDecisionConflict(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid conflict id")
		return
	}

	var req model.ResolveConflictRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	var winner *uuid.UUID
	if req.WinnerID != uuid.Nil {
		winner = &req.WinnerID
	}

	resolved, err := h.db.ResolveDecisionConflict(r.Context(), id, userIDFrom(r), winner, req.Notes)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	h.logger.Info("decision conflict resolved", "conflict_id", id, "user_id", userIDFrom(r))
	writeJSON(w, r, http.StatusOK, resolved)
}
