package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

type patchResponse struct {
	Incident domain.Incident `json:"incident"`
	Changes  domain.Diff     `json:"changes"`
}

func (h *Handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	summaries, err := h.incidents.List(r.Context(), domain.IncidentListFilter{
		Status: domain.Status(q.Get("status")),
		Tag:    q.Get("tag"),
		After:  q.Get("after"),
		Limit:  limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": summaries})
}

func (h *Handler) createIncident(w http.ResponseWriter, r *http.Request) {
	var inc domain.Incident
	if !decodeJSON(w, r, &inc, true) {
		return
	}

	created, err := h.incidents.Create(r.Context(), inc, mutationMetadata(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/incidents/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// patchIncident takes a sparse JSON object of field name to new value. Notes
// and timeline entries are lists of {"id": ..., field: value} objects.
func (h *Handler) patchIncident(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangeRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req == nil {
		writeError(w, http.StatusBadRequest, "body must be a json object")
		return
	}

	out, err := h.incidents.Patch(r.Context(), chi.URLParam(r, "id"), req, mutationMetadata(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patchResponse{Incident: out.Incident, Changes: out.Changes})
}

func (h *Handler) deleteIncident(w http.ResponseWriter, r *http.Request) {
	if err := h.incidents.Delete(r.Context(), chi.URLParam(r, "id"), mutationMetadata(r)); err != nil {
		handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listAudits(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.incidents.Get(r.Context(), id); err != nil {
		handleDomainError(w, err)
		return
	}
	audits, err := h.audits.ListForIncident(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if audits == nil {
		audits = []domain.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": audits})
}
