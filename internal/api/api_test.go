package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/atlas/internal/config"
	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/internal/parser"
	"github.com/yegors/atlas/internal/readback"
	"github.com/yegors/atlas/internal/sequence"
	"github.com/yegors/atlas/internal/storage/sqlite"
	"github.com/yegors/atlas/pkg/logger"
)

type testServer struct {
	handler  http.Handler
	sessions *SessionStore
}

func newTestServer(t *testing.T, withStorage bool) *testServer {
	t.Helper()
	log := logger.NewNop()
	cfg := config.Default()

	var records *sqlite.RecordStorage
	pc := cfg.Parser.PipelineConfig()
	if withStorage {
		db, err := sqlite.Open(filepath.Join(t.TempDir(), "atlas.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		records, err = sqlite.NewRecordStorage(db, log)
		require.NoError(t, err)
		pc.Sink = records
	}

	sessions := NewSessionStore(2, time.Hour, log)
	router := NewRouter(parser.New(pc, log), sessions, records, cfg, log)
	return &testServer{handler: router.Routes(), sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestParseEndpoint(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/v1/parse", ParseRequest{
		Text:        "Air France 345 descend flight level 180, reduce speed to 250 knots",
		UtteranceID: "u-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	got := decode[intent.ParseResult](t, rec)
	assert.Equal(t, intent.Callsign("AFR345"), got.Callsign)
	assert.Equal(t, intent.StatusOK, got.Status)
	assert.Equal(t, []intent.InstructionType{intent.TypeAltitude, intent.TypeSpeed}, got.Types())
	assert.Equal(t, "u-1", got.UtteranceID)
	assert.Nil(t, got.Trace)
}

func TestParseEndpointOptions(t *testing.T) {
	s := newTestServer(t, false)
	off := false

	rec := s.do(t, http.MethodPost, "/api/v1/parse", ParseRequest{
		Text:         "AAL77 maintain 250 knots",
		EnableHybrid: &off,
		IncludeTrace: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[intent.ParseResult](t, rec)
	require.Len(t, got.Instructions, 1)
	assert.Equal(t, intent.TypeAltitude, got.Instructions[0].Type)
	assert.NotEmpty(t, got.Trace)
}

func TestParseEndpointRejectsBadInput(t *testing.T) {
	s := newTestServer(t, false)

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty text", ParseRequest{Text: "  "}},
		{"unknown field", map[string]string{"utterance": "AAL77 descend"}},
		{"not an object", "AAL77"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/parse", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestReadbackEndpoint(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/v1/readback", ReadbackRequest{
		ATC:   "AFR345 descend flight level 180",
		Pilot: "AFR346 descend flight level 180",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[readback.Result](t, rec)
	assert.True(t, got.MismatchDetected)
	assert.True(t, got.CallsignMismatch)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[SessionStatus](t, rec)
	require.NotEmpty(t, created.ID)

	base := "/api/v1/sessions/" + created.ID
	rec = s.do(t, http.MethodPost, base+"/turns", TurnRequest{Text: "AAL77 reduce speed to 240"})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[sequence.Turn](t, rec)
	assert.Equal(t, "turn-0001", first.Result.UtteranceID)
	require.Len(t, first.Changes, 1)
	assert.Equal(t, sequence.ChangeAdded, first.Changes[0].Change)

	rec = s.do(t, http.MethodPost, base+"/turns", TurnRequest{Text: "AAL77 until LAM"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[sequence.Turn](t, rec)
	assert.Contains(t, second.Result.NoteStrings(), "temporal_condition_applied_to_active:until LAM")

	rec = s.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[SessionStatus](t, rec)
	assert.Equal(t, 2, status.Turns)
	assert.Equal(t, []string{"AAL77"}, status.Callsigns)
	require.Len(t, status.State.Active["AAL77"], 1)
	assert.Equal(t, "until LAM", status.State.Active["AAL77"][0].Condition)

	rec = s.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodPost, base+"/turns", TurnRequest{Text: "AAL77 descend flight level 100"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s := newTestServer(t, false)

	first := s.sessions.Create()
	s.sessions.Create()
	s.sessions.Create()

	assert.Equal(t, 2, s.sessions.Len())
	_, ok := s.sessions.Get(first.ID)
	assert.False(t, ok)
}

func TestTouchDoesNotReviveDeletedSession(t *testing.T) {
	s := newTestServer(t, false)

	session := s.sessions.Create()
	got, ok := s.sessions.Get(session.ID)
	require.True(t, ok)

	require.True(t, s.sessions.Delete(session.ID))
	s.sessions.Touch(got)

	_, ok = s.sessions.Get(session.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, s.sessions.Len())

	// a live session is still refreshed
	live := s.sessions.Create()
	s.sessions.Touch(live)
	_, ok = s.sessions.Get(live.ID)
	assert.True(t, ok)
}

func TestTurnOnTouchedDeletedSessionIsNotFound(t *testing.T) {
	s := newTestServer(t, false)

	stale := s.sessions.Create()
	require.True(t, s.sessions.Delete(stale.ID))
	s.sessions.Touch(stale)

	rec := s.do(t, http.MethodPost, "/api/v1/sessions/"+stale.ID+"/turns", TurnRequest{Text: "AAL77 descend flight level 180"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordsEndpoints(t *testing.T) {
	s := newTestServer(t, true)

	for _, text := range []string{
		"AAL77 maintain 190 and descend 150",
		"AAL77 descend flight level 180",
		"Delta 220 proceed direct LAM",
	} {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/parse", ParseRequest{Text: text}).Code)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]sqlite.ParseRecord](t, rec), 3)

	rec = s.do(t, http.MethodGet, "/api/v1/records?status=conflict", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]sqlite.ParseRecord](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/v1/records/callsign/aal77?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]sqlite.ParseRecord](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/v1/records/time-range", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]sqlite.ParseRecord](t, rec), 3)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/records?limit=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/records/callsign/banana", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/records/time-range?start=yesterday", nil).Code)
}

func TestRecordsDisabled(t *testing.T) {
	s := newTestServer(t, false)
	rec := s.do(t, http.MethodGet, "/api/v1/records", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndCORS(t *testing.T) {
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, intent.SchemaVersion, body["schema_version"])

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/parse", nil)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
