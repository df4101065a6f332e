package control

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/die-net/streamhost/internal/logging"
)

// ActivateRequest is the body of POST /activate.
type ActivateRequest struct {
	SID       string `json:"sid"`
	Initiator string `json:"initiator"`
	Target    string `json:"target"`
}

// ActivateResponse is the body of a successful POST /activate.
type ActivateResponse struct {
	Key string `json:"key"`
}

// ErrorResponse is the body of a failed control request.
type ErrorResponse struct {
	Condition string `json:"condition"`
	Message   string `json:"message"`
}

const maxActivateBody = 4096

// Handler exposes svc over HTTP. When token is non-empty the control routes
// require "Authorization: Bearer <token>"; /healthz and /metrics stay open.
func Handler(svc *Service, token string) http.Handler {
	h := &handler{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		if token != "" {
			r.Use(requireToken(token))
		}
		r.Get("/endpoints", h.endpoints)
		r.Get("/capabilities", h.capabilities)
		r.Post("/activate", h.activate)
	})

	return r
}

type handler struct {
	svc *Service
}

func (h *handler) endpoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.QueryEndpoints())
}

func (h *handler) capabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.QueryCapabilities())
}

func (h *handler) activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivateBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, &Error{Condition: ConditionBadRequest, Err: err})
		return
	}

	if err := h.svc.Activate(r.Context(), req.SID, req.Initiator, req.Target); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActivateResponse{Key: string(SessionKey(req.SID, req.Initiator, req.Target))})
}

func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Condition: "not-authorized", Message: "missing or invalid token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	var cerr *Error
	if !errors.As(err, &cerr) {
		cerr = &Error{Condition: ConditionInternal, Err: err}
	}
	writeJSON(w, statusFor(cerr.Condition), ErrorResponse{Condition: cerr.Condition, Message: cerr.Err.Error()})
}

func statusFor(condition string) int {
	switch condition {
	case ConditionItemNotFound:
		return http.StatusNotFound
	case ConditionNotAllowed:
		return http.StatusForbidden
	case ConditionBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	doc, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode control response", logging.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(doc)
}
