package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/internal/parser"
	"github.com/yegors/atlas/internal/readback"
	"github.com/yegors/atlas/internal/sequence"
	"github.com/yegors/atlas/internal/storage/sqlite"
	"github.com/yegors/atlas/pkg/logger"
)

// maxTextLength bounds a single utterance accepted over HTTP
const maxTextLength = 4096

// Handler holds the HTTP handlers
type Handler struct {
	pipeline   *parser.Pipeline
	tracker    *sequence.Tracker
	comparator *readback.Comparator
	sessions   *SessionStore
	records    *sqlite.RecordStorage // nil when storage is disabled
	startedAt  time.Time
	logger     *logger.Logger
}

// NewHandler creates a new handler. records may be nil.
func NewHandler(pipeline *parser.Pipeline, sessions *SessionStore, records *sqlite.RecordStorage, logger *logger.Logger) *Handler {
	return &Handler{
		pipeline:   pipeline,
		tracker:    sequence.NewTracker(pipeline, logger),
		comparator: readback.NewComparator(pipeline),
		sessions:   sessions,
		records:    records,
		startedAt:  time.Now().UTC(),
		logger:     logger.Named("api-handler"),
	}
}

// ParseRequest is the body of a stateless parse
type ParseRequest struct {
	Text         string `json:"text"`
	Speaker      string `json:"speaker,omitempty"`
	UtteranceID  string `json:"utterance_id,omitempty"`
	EnableHybrid *bool  `json:"enable_hybrid,omitempty"`
	IncludeTrace bool   `json:"include_trace,omitempty"`
}

// ReadbackRequest is the body of a readback comparison
type ReadbackRequest struct {
	ATC   string `json:"atc"`
	Pilot string `json:"pilot"`
}

// TurnRequest is the body of a session turn
type TurnRequest struct {
	Text        string `json:"text"`
	Speaker     string `json:"speaker,omitempty"`
	UtteranceID string `json:"utterance_id,omitempty"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Parse handles POST /parse
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := validateText("text", req.Text); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	opts := parser.Options{
		Speaker:      req.Speaker,
		UtteranceID:  req.UtteranceID,
		IncludeTrace: req.IncludeTrace,
	}
	if req.EnableHybrid != nil && !*req.EnableHybrid {
		opts.DisableHybrid = true
	}

	h.writeJSON(w, http.StatusOK, h.pipeline.Parse(req.Text, opts))
}

// Readback handles POST /readback
func (h *Handler) Readback(w http.ResponseWriter, r *http.Request) {
	var req ReadbackRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := validateText("atc", req.ATC); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := validateText("pilot", req.Pilot); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.comparator.Compare(req.ATC, req.Pilot))
}

// CreateSession handles POST /sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Create()
	h.writeJSON(w, http.StatusCreated, session.Status())
}

// GetSession handles GET /sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, r, http.StatusNotFound, errors.New("session not found"))
		return
	}
	h.writeJSON(w, http.StatusOK, session.Status())
}

// DeleteSession handles DELETE /sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(chi.URLParam(r, "id")) {
		h.writeError(w, r, http.StatusNotFound, errors.New("session not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyTurn handles POST /sessions/{id}/turns
func (h *Handler) ApplyTurn(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, r, http.StatusNotFound, errors.New("session not found"))
		return
	}

	var req TurnRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := validateText("text", req.Text); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var turn *sequence.Turn
	session.Apply(func(state *sequence.State, n int) {
		id := req.UtteranceID
		if id == "" {
			id = fmt.Sprintf("turn-%04d", n)
		}
		turn = h.tracker.Apply(req.Text, state, parser.Options{Speaker: req.Speaker, UtteranceID: id})
	})
	h.sessions.Touch(session)

	h.writeJSON(w, http.StatusOK, turn)
}

// GetRecentRecords handles GET /records?limit=N&status=S
func (h *Handler) GetRecentRecords(w http.ResponseWriter, r *http.Request) {
	if !h.requireRecords(w, r) {
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var records []*sqlite.ParseRecord
	if status := r.URL.Query().Get("status"); status != "" {
		records, err = h.records.GetRecordsByStatus(intent.Status(status), limit)
	} else {
		records, err = h.records.GetRecentRecords(limit)
	}
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// GetRecordsByCallsign handles GET /records/callsign/{callsign}
func (h *Handler) GetRecordsByCallsign(w http.ResponseWriter, r *http.Request) {
	if !h.requireRecords(w, r) {
		return
	}
	callsign, err := intent.ParseCallsign(strings.ToUpper(chi.URLParam(r, "callsign")))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	records, err := h.records.GetRecordsByCallsign(callsign, limit)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// GetRecordsByTimeRange handles GET /records/time-range?start=..&end=..
// Both bounds are RFC3339; the range defaults to the last hour.
func (h *Handler) GetRecordsByTimeRange(w http.ResponseWriter, r *http.Request) {
	if !h.requireRecords(w, r) {
		return
	}

	end := time.Now().UTC()
	if s := r.URL.Query().Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid end time: %w", err))
			return
		}
		end = t
	}
	start := end.Add(-time.Hour)
	if s := r.URL.Query().Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid start time: %w", err))
			return
		}
		start = t
	}
	if start.After(end) {
		h.writeError(w, r, http.StatusBadRequest, errors.New("start time is after end time"))
		return
	}

	records, err := h.records.GetRecordsByTimeRange(start, end)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// GetHealth handles GET /health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"schema_version": intent.SchemaVersion,
		"sessions":       h.sessions.Len(),
		"storage":        h.records != nil,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

func (h *Handler) requireRecords(w http.ResponseWriter, r *http.Request) bool {
	if h.records == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, errors.New("record storage is disabled"))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
	}
	h.writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}

func validateText(field, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(text) > maxTextLength {
		return fmt.Errorf("%s exceeds %d bytes", field, maxTextLength)
	}
	return nil
}

func limitParam(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return sqlite.DefaultQueryLimit, nil
	}
	limit, err := strconv.Atoi(s)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit: %q", s)
	}
	return limit, nil
}
