package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/decivue/decivue/internal/model"
)

// HandleCreateConstraint handles POST /v1/constraints.
func (h *Handlers) HandleCreateConstraint(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConstraintRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	c := model.Constraint{
		Name:      req.Name,
		Rule:      req.Rule,
		Type:      model.ConstraintType(req.Type),
		Immutable: req.Immutable,
	}

	created, err := h.db.CreateConstraint(r.Context(), c, req.DecisionIDs)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// HandleListConstraints handles GET /v1/constraints.
func (h *Handlers) HandleListConstraints(w http.ResponseWriter, r *http.Request) {
	var typ *model.ConstraintType
	if v := r.URL.Query().Get("type"); v != "" {
		if !model.ValidConstraintType(v) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown constraint type "+v)
			return
		}
		t := model.ConstraintType(v)
		typ = &t
	}

	constraints, total, err := h.db.ListConstraints(r.Context(), typ,
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"constraints": constraints,
		"total":       total,
	})
}

// HandleGetConstraint handles GET /v1/constraints/{id}.
func (h *Handlers) HandleGetConstraint(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid constraint id")
		return
	}

	c, err := h.db.GetConstraint(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// HandleUpdateConstraint handles PATCH /v1/constraints/{id}. Only the rule
// text is mutable; immutable constraints reject updates.
func (h *Handlers) HandleUpdateConstraint(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid constraint id")
		return
	}

	var req struct {
		Rule string `json:"rule"`
	}
	if err := h.decodeJSON(w, r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Rule == "" || len(req.Rule) > model.MaxRuleLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "rule is required and bounded")
		return
	}

	if err := h.db.UpdateConstraintRule(r.Context(), id, req.Rule); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"id": id, "rule": req.Rule})
}

// HandleLinkConstraint handles POST /v1/decisions/{id}/constraints/{constraint_id}.
func (h *Handlers) HandleLinkConstraint(w http.ResponseWriter, r *http.Request) {
	decisionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}
	constraintID, err := pathUUID(r, "constraint_id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid constraint id")
		return
	}

	if _, err := h.db.GetDecision(r.Context(), decisionID, false, false); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	if _, err := h.db.GetConstraint(r.Context(), constraintID); err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	if err := h.db.LinkConstraint(r.Context(), decisionID, constraintID); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"decision_id":   decisionID,
		"constraint_id": constraintID,
		"linked":        true,
	})
}

// HandleRecordViolation handles POST /v1/constraints/{id}/violations:
// records that a decision violates this constraint.
func (h *Handlers) HandleRecordViolation(w http.ResponseWriter, r *http.Request) {
	constraintID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid constraint id")
		return
	}

	var req struct {
		DecisionID string `json:"decision_id"`
		Detail     string `json:"detail"`
	}
	if err := h.decodeJSON(w, r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	decisionID, err := uuid.Parse(req.DecisionID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}

	if _, err := h.db.GetConstraint(r.Context(), constraintID); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	if _, err := h.db.GetDecision(r.Context(), decisionID, false, false); err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	v, err := h.db.RecordViolation(r.Context(), model.ConstraintViolation{
		ConstraintID: constraintID,
		DecisionID:   decisionID,
		Detail:       req.Detail,
	})
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, v)
}

// HandleResolveViolation handles POST /v1/violations/{id}/resolve.
func (h *Handlers) HandleResolveViolation(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid violation id")
		return
	}

	if err := h.db.ResolveViolation(r.Context(), id); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"id": id, "resolved": true})
}

// HandleDecisionViolations handles GET /v1/decisions/{id}/violations.
func (h *Handlers) HandleDecisionViolations(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}

	violations, err := h.db.GetViolationsByDecision(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"violations": violations})
}
