package server

import (
	"net/http"
	"time"

	"github.com/decivue/decivue/internal/model"
	"github.com/decivue/decivue/internal/storage"
)

// HandleCreateDecision handles POST /v1/decisions.
func (h *Handlers) HandleCreateDecision(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDecisionRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	d := model.Decision{
		Title:                  req.Title,
		Description:            req.Description,
		ExpiryDate:             req.ExpiryDate,
		RequiresSecondReviewer: req.RequiresSecondReviewer,
	}
	if req.Tier != "" {
		d.Tier = model.GovernanceTier(req.Tier)
	}

	created, err := h.db.CreateDecision(r.Context(), d)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// HandleListDecisions handles GET /v1/decisions with filter, sort, and
// pagination query parameters.
func (h *Handlers) HandleListDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filters model.DecisionFilters
	if v := q.Get("lifecycle"); v != "" {
		if !model.ValidLifecycle(v) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown lifecycle "+v)
			return
		}
		lc := model.Lifecycle(v)
		filters.Lifecycle = &lc
	}
	if v := q.Get("tier"); v != "" {
		tier := model.GovernanceTier(v)
		filters.Tier = &tier
	}
	if v := q.Get("health_max"); v != "" {
		hm := queryInt(r, "health_max", -1)
		if hm < 0 || hm > 100 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "health_max must be 0-100")
			return
		}
		filters.HealthMax = &hm
	}
	if v := q.Get("locked"); v != "" {
		locked := v == "true"
		filters.Locked = &locked
	}
	if v := q.Get("expiring_by"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "expiring_by must be RFC 3339")
			return
		}
		filters.ExpiringBy = &t
	}

	decisions, total, err := h.db.ListDecisions(r.Context(), filters,
		q.Get("order_by"), q.Get("order_dir"),
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"decisions": decisions,
		"total":     total,
	})
}

// HandleGetDecision handles GET /v1/decisions/{id}. Linked assumptions and
// constraints are included by default; pass include=none to skip them.
func (h *Handlers) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}

	include := r.URL.Query().Get("include") != "none"
	d, err := h.db.GetDecision(r.Context(), id, include, include)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

// HandleUpdateDecision handles PATCH /v1/decisions/{id}.
func (h *Handlers) HandleUpdateDecision(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}

	var req model.UpdateDecisionRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	upd := storage.DecisionUpdate{
		Title:       req.Title,
		Description: req.Description,
		ExpiryDate:  req.ExpiryDate,
	}
	if req.Lifecycle != nil {
		lc := model.Lifecycle(*req.Lifecycle)
		upd.Lifecycle = &lc
	}

	d, err := h.db.UpdateDecision(r.Context(), id, upd)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	if err := h.db.RecordDecisionVersion(r.Context(), id, "update"); err != nil {
		h.logger.Warn("version snapshot failed", "decision_id", id, "error", err)
	}
	writeJSON(w, r, http.StatusOK, d)
}

// HandleDeleteDecision handles DELETE /v1/decisions/{id}. Cascades to
// exclusively-linked assumptions; shared assumptions survive.
func (h *Handlers) HandleDeleteDecision(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}

	result, err := h.db.DeleteDecision(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	h.logger.Info("decision deleted",
		"decision_id", id,
		"orphaned_assumptions", result.OrphanedAssumptions,
		"user_id", userIDFrom(r),
	)
	writeJSON(w, r, http.StatusOK, result)
}

// HandleLockDecision handles POST /v1/decisions/{id}/lock (admin).
func (h *Handlers) HandleLockDecision(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, true)
}

// HandleUnlockDecision handles POST /v1/decisions/{id}/unlock (admin).
func (h *Handlers) HandleUnlockDecision(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, false)
}

func (h *Handlers) setLock(w http.ResponseWriter, r *http.Request, locked bool) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}

	if err := h.db.SetDecisionLock(r.Context(), id, locked); err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	if err := h.db.RecordDecisionVersion(r.Context(), id, "lock"); err != nil {
		h.logger.Warn("version snapshot failed", "decision_id", id, "error", err)
	}

	h.logger.Info("decision lock changed", "decision_id", id, "locked", locked, "user_id", userIDFrom(r))
	writeJSON(w, r, http.StatusOK, map[string]any{"id": id, "locked": locked})
}

// HandleReviewDecision handles POST /v1/decisions/{id}/review: records an
// explicit human review by stamping last_reviewed_at. Locked decisions
// reject review.
func (h *Handlers) HandleReviewDecision(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}

	now := time.Now().UTC()
	if err := h.db.MarkReviewed(r.Context(), id, now); err != nil {
		h.writeStorageError(w, r, err)
		return
	}

	h.logger.Info("decision reviewed", "decision_id", id, "user_id", userIDFrom(r))
	writeJSON(w, r, http.StatusOK, map[string]any{"id": id, "last_reviewed_at": now})
}

// HandleEvaluateDecision handles POST /v1/decisions/{id}/evaluate.
func (h *Handlers) HandleEvaluateDecision(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}

	history, err := h.evalSvc.Evaluate(r.Context(), id)
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, history)
}

// HandleEvaluationHistory handles GET /v1/decisions/{id}/history.
func (h *Handlers) HandleEvaluationHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}

	history, total, err := h.db.GetEvaluationHistory(r.Context(), id,
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"history": history,
		"total":   total,
	})
}

// HandleDecisionVersions handles GET /v1/decisions/{id}/versions.
func (h *Handlers) HandleDecisionVersions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid decision id")
		return
	}

	versions, err := h.db.GetDecisionVersions(r.Context(), id, queryInt(r, "limit", 50))
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"versions": versions})
}

// HandleReviewQueue handles GET /v1/reviews/due: decisions ordered by
// review urgency.
func (h *Handlers) HandleReviewQueue(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.db.ListDecisionsDueForReview(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"due": candidates})
}

func userIDFrom(r *http.Request) string {
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		return claims.UserID
	}
	return ""
}
