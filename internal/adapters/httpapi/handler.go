package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atvirokodosprendimai/incidents/internal/adapters/metrics"
	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
	"github.com/atvirokodosprendimai/incidents/internal/core/usecase"
)

type ctxKey string

const (
	apiActorCtxKey  ctxKey = "api_actor"
	maxJSONBodySize        = 1 << 20
	requestSource          = "http"
)

type Handler struct {
	incidents *usecase.IncidentService
	audits    *usecase.AuditService
	auth      *usecase.AuthService
	metrics   *metrics.Metrics
}

type Option func(*Handler)

// WithAuth protects the /v1 routes with API keys. Without it every caller is
// recorded as actor "api".
func WithAuth(auth *usecase.AuthService) Option {
	return func(h *Handler) { h.auth = auth }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(incidents *usecase.IncidentService, audits *usecase.AuditService, opts ...Option) *Handler {
	h := &Handler{incidents: incidents, audits: audits}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/v1/incidents", func(pr chi.Router) {
		if h.auth != nil {
			pr.Use(h.requireAPIKey)
		}
		pr.Get("/", h.listIncidents)
		pr.Post("/", h.createIncident)
		pr.Get("/{id}", h.getIncident)
		pr.Patch("/{id}", h.patchIncident)
		pr.Delete("/{id}", h.deleteIncident)
		pr.Get("/{id}/audits", h.listAudits)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			log.Printf("authenticate: %v", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), apiActorCtxKey, apiKey.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observe records request latency under the matched route pattern, so ids in
// the path do not blow up label cardinality.
func (h *Handler) observe(next http.Handler) http.Handler {
	if h.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.ObserveRequest(route, r.Method, strconv.Itoa(status), time.Since(start))
	})
}

func mutationMetadata(r *http.Request) domain.MutationMetadata {
	actor, _ := r.Context().Value(apiActorCtxKey).(string)
	if actor == "" {
		actor = "api"
	}
	return domain.MutationMetadata{
		Actor:     actor,
		Source:    requestSource,
		RequestID: middleware.GetReqID(r.Context()),
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

// decodeJSON reads exactly one JSON value from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, strict bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	if strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("encode json response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

type validationErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

func handleDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		details := make([]string, 0, len(ve.Violations))
		for _, v := range ve.Violations {
			details = append(details, v.String())
		}
		writeJSON(w, http.StatusBadRequest, validationErrorResponse{
			Error:   domain.ErrPatchValidationFailed.Error(),
			Details: details,
		})
	case errors.Is(err, domain.ErrUnknownField),
		errors.Is(err, domain.ErrMalformedSubPatch),
		errors.Is(err, domain.ErrSubRecordNotFound),
		errors.Is(err, domain.ErrInvalidFieldValue),
		errors.Is(err, domain.ErrUnsupportedFieldConversion),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
