// File: internal/api/handlers.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/locator"
	"github.com/xkilldash9x/docketpilot/internal/service"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

const maxBodyBytes = 64 << 10

// Handlers holds the dependencies for the HTTP API handlers.
type Handlers struct {
	sessions Sessions
	version  string
	log      *zap.Logger
}

func NewHandlers(sessions Sessions, version string, logger *zap.Logger) *Handlers {
	return &Handlers{sessions: sessions, version: version, log: logger}
}

// RegisterRoutes mounts every endpoint. auth, when non-nil, guards /api/v1.
func (h *Handlers) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/", h.HandleRoot)
	r.Get("/health", h.HandleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		if auth != nil {
			r.Use(auth)
		}
		r.Get("/docket-categories", h.HandleCategories)
		r.Get("/states", h.HandleStates)
		r.Get("/districts", h.HandleDistricts)

		r.Post("/automation/start", h.HandleStart)
		r.Post("/docket/select", h.HandleDocketSelect)
		r.Post("/district/select", h.HandleDistrictSelect)
		r.Post("/docket/search", h.HandleDocketSearch)
		r.Post("/alert/create", h.HandleAlertCreate)
		r.Post("/alert/complete-setup", h.HandleAlertComplete)

		r.Post("/session/back", h.HandleBack)
		r.Post("/session/reset", h.HandleReset)
		r.Post("/session/cleanup", h.HandleCleanup)
		r.Get("/session/{sessionID}", h.HandleGetSession)
		r.Get("/sessions", h.HandleListSessions)
	})
}

// -- Request and response bodies --

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Message string `json:"message"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type docketSelectRequest struct {
	SessionID      string `json:"session_id"`
	Category       string `json:"category"`
	SpecificDocket string `json:"specific_docket"`
}

type districtSelectRequest struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	District  string `json:"district"`
}

type docketSearchRequest struct {
	SessionID    string `json:"session_id"`
	DocketNumber string `json:"docket_number"`
}

type alertSetupRequest struct {
	SessionID string `json:"session_id"`
	workflow.AlertSettings
}

// PhaseResponse is the body of every phase endpoint.
type PhaseResponse struct {
	Status         string             `json:"status"`
	Message        string             `json:"message"`
	SessionID      string             `json:"session_id"`
	Phase          workflow.Phase     `json:"phase,omitempty"`
	View           workflow.Phase     `json:"view,omitempty"`
	Selection      workflow.Selection `json:"selection"`
	ErrorKind      workflow.ErrorKind `json:"error_kind,omitempty"`
	DiagnosticsRef string             `json:"diagnostics_ref,omitempty"`
}

// -- Catalog endpoints --

func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: h.version, Message: "Docket alert automation API is running"})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, healthResponse{Status: "healthy", Version: h.version, Message: "API is operational"})
}

func (h *Handlers) HandleCategories(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"categories": locator.DocketCategories})
}

func (h *Handlers) HandleStates(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"states": locator.SupportedSubJurisdictions})
}

func (h *Handlers) HandleDistricts(w http.ResponseWriter, r *http.Request) {
	state := strings.TrimSpace(r.URL.Query().Get("state"))
	if state == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'state' is required.")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"state": state, "districts": locator.SubRegions})
}

// -- Session lifecycle --

// HandleStart opens a tab and signs in. The session exists only if sign-in succeeded.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	session, res, err := h.sessions.Start(phaseContext(r))
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "login_success",
			"message":    "Signed in and ready for docket selection.",
			"session_id": session.ID,
		})
	case errors.Is(err, service.ErrCapacity), errors.Is(err, service.ErrManagerClosed):
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrBootstrapFailed):
		h.log.Warn("Sign-in failed.", zap.String("kind", string(res.ErrorKind)), zap.String("diagnostics_ref", res.DiagnosticsRef))
		respondWithJSON(w, http.StatusBadGateway, map[string]interface{}{
			"status":          "error",
			"message":         err.Error(),
			"error_kind":      res.ErrorKind,
			"diagnostics_ref": res.DiagnosticsRef,
		})
	default:
		h.log.Error("Failed to start session.", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to start session.")
	}
}

func (h *Handlers) HandleDocketSelect(w http.ResponseWriter, r *http.Request) {
	var req docketSelectRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, ok := h.lookup(w, req.SessionID)
	if !ok {
		return
	}
	res := session.StartPhase(phaseContext(r), workflow.TriggerChooseCategory, workflow.Input{
		Category:        req.Category,
		SubJurisdiction: req.SpecificDocket,
	})
	msg := fmt.Sprintf("Successfully selected %s", req.Category)
	if req.SpecificDocket != "" {
		msg = fmt.Sprintf("Successfully selected %s → %s", req.Category, req.SpecificDocket)
	}
	h.respondWithPhase(w, session.ID, res, msg)
}

func (h *Handlers) HandleDistrictSelect(w http.ResponseWriter, r *http.Request) {
	var req districtSelectRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, ok := h.lookup(w, req.SessionID)
	if !ok {
		return
	}
	if chosen := session.Selection().SubJurisdiction; req.State != "" && chosen != "" && !strings.EqualFold(req.State, chosen) {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("State '%s' does not match the selected state '%s'.", req.State, chosen))
		return
	}
	res := session.StartPhase(phaseContext(r), workflow.TriggerChooseSubRegion, workflow.Input{SubRegion: req.District})
	h.respondWithPhase(w, session.ID, res, fmt.Sprintf("Successfully selected district: %s", req.District))
}

func (h *Handlers) HandleDocketSearch(w http.ResponseWriter, r *http.Request) {
	var req docketSearchRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, ok := h.lookup(w, req.SessionID)
	if !ok {
		return
	}
	res := session.StartPhase(phaseContext(r), workflow.TriggerSubmitIdentifier, workflow.Input{Identifier: req.DocketNumber})
	h.respondWithPhase(w, session.ID, res, fmt.Sprintf("Searched for docket %s", req.DocketNumber))
}

func (h *Handlers) HandleAlertCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, ok := h.lookup(w, req.SessionID)
	if !ok {
		return
	}
	res := session.StartPhase(phaseContext(r), workflow.TriggerRequestFollowUp, workflow.Input{})
	h.respondWithPhase(w, session.ID, res, "Alert setup opened.")
}

func (h *Handlers) HandleAlertComplete(w http.ResponseWriter, r *http.Request) {
	var req alertSetupRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, ok := h.lookup(w, req.SessionID)
	if !ok {
		return
	}
	alert := req.AlertSettings
	res := session.StartPhase(phaseContext(r), workflow.TriggerCompleteFollowUp, workflow.Input{Alert: &alert})
	h.respondWithPhase(w, session.ID, res, fmt.Sprintf("Alert '%s' created.", alert.Name))
}

func (h *Handlers) HandleBack(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, ok := h.lookup(w, req.SessionID)
	if !ok {
		return
	}
	res := session.GoBack(phaseContext(r))
	h.respondWithPhase(w, session.ID, res, fmt.Sprintf("Returned to %s.", res.View))
}

func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, ok := h.lookup(w, req.SessionID)
	if !ok {
		return
	}
	res := session.ResetSession(phaseContext(r))
	h.respondWithPhase(w, session.ID, res, "Session reset.")
}

func (h *Handlers) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.sessions.Close(req.SessionID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			respondWithError(w, http.StatusNotFound, "Session not found")
			return
		}
		// The session is unregistered even when its tab refused to close.
		h.log.Warn("Session closed with errors.", zap.String("session_id", req.SessionID), zap.Error(err))
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Session %s cleaned up successfully", req.SessionID),
	})
}

func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, chi.URLParam(r, "sessionID"))
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	states := h.sessions.List()
	ids := make([]string, len(states))
	for i, st := range states {
		ids[i] = st.ID
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"active_sessions": ids,
		"count":           len(ids),
		"sessions":        states,
	})
}

// -- Helpers --

// phaseContext detaches phase work from request cancellation. A phase runs to
// completion once started.
func phaseContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

func (h *Handlers) lookup(w http.ResponseWriter, id string) (*workflow.Session, bool) {
	if strings.TrimSpace(id) == "" {
		respondWithError(w, http.StatusBadRequest, "session_id is required.")
		return nil, false
	}
	session, err := h.sessions.Get(id)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return session, true
}

func (h *Handlers) respondWithPhase(w http.ResponseWriter, sessionID string, res workflow.PhaseResult, okMessage string) {
	body := PhaseResponse{
		Status:         "success",
		Message:        okMessage,
		SessionID:      sessionID,
		Phase:          res.Phase,
		View:           res.View,
		Selection:      res.Selection,
		DiagnosticsRef: res.DiagnosticsRef,
	}
	if res.OK() {
		respondWithJSON(w, http.StatusOK, body)
		return
	}
	body.Status = "error"
	body.Message = res.Message
	body.ErrorKind = res.ErrorKind
	respondWithJSON(w, statusForKind(res.ErrorKind), body)
}

// statusForKind maps a failed phase to its HTTP status.
func statusForKind(k workflow.ErrorKind) int {
	switch k {
	case workflow.KindNotFound, workflow.KindMismatch, workflow.KindActivation:
		return http.StatusUnprocessableEntity
	case workflow.KindNavigation:
		return http.StatusBadGateway
	case workflow.KindInvalidTransition:
		return http.StatusConflict
	case workflow.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"status": "error", "message": message})
}
