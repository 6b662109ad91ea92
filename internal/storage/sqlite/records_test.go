package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/internal/parser"
	"github.com/yegors/atlas/internal/tracelog"
	"github.com/yegors/atlas/pkg/logger"
)

func newTestStorage(t *testing.T) *RecordStorage {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "atlas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage, err := NewRecordStorage(db, logger.NewNop())
	require.NoError(t, err)
	return storage
}

func TestStoreAndLoadRecord(t *testing.T) {
	storage := newTestStorage(t)
	p := parser.New(parser.DefaultConfig(), logger.NewNop())

	text := "UAL12 turn left heading 270 and contact 121.5 runway 27L"
	want := p.Parse(text, parser.Options{UtteranceID: "u-1"})
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	id, err := storage.StoreRecord(&tracelog.Record{Timestamp: ts, Text: text, Result: want})
	require.NoError(t, err)
	assert.Positive(t, id)

	records, err := storage.GetRecordsByCallsign("UAL12", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, text, got.Text)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, want.Callsign, got.Result.Callsign)
	assert.Equal(t, want.Status, got.Result.Status)
	assert.Equal(t, want.Tier, got.Result.Tier)
	assert.InDelta(t, want.Confidence, got.Result.Confidence, 1e-9)
	assert.Equal(t, want.Notes, got.Result.Notes)
	assert.Equal(t, "u-1", got.Result.UtteranceID)

	require.Len(t, got.Result.Instructions, 3)
	for i, instr := range got.Result.Instructions {
		assert.Equal(t, want.Instructions[i].Type, instr.Type)
		assert.Equal(t, want.Instructions[i].Value, instr.Value)
		assert.Equal(t, want.Instructions[i].Unit, instr.Unit)
		assert.Equal(t, want.Instructions[i].Provenance.Rule, instr.Provenance.Rule)
	}
}

func TestRecordStorageIsASink(t *testing.T) {
	storage := newTestStorage(t)
	config := parser.DefaultConfig()
	config.Sink = storage
	p := parser.New(config, logger.NewNop())

	p.Parse("AAL77 maintain 190 and descend 150", parser.Options{})
	p.Parse("Hello aircraft how are you", parser.Options{})
	p.Parse("Air France 345 descend flight level 180", parser.Options{})

	recent, err := storage.GetRecentRecords(0)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	conflicts, err := storage.GetRecordsByStatus(intent.StatusConflict, 10)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Contains(t, conflicts[0].Result.NoteStrings(), "slot_conflict_detected")

	unknown, err := storage.GetRecordsByStatus(intent.StatusUnknown, 10)
	require.NoError(t, err)
	require.Len(t, unknown, 1)
	assert.True(t, unknown[0].Result.Callsign.IsZero())
	assert.Empty(t, unknown[0].Result.Instructions)
}

func TestGetRecordsByTimeRange(t *testing.T) {
	storage := newTestStorage(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		res := intent.NewParseResult("", "ATC")
		_, err := storage.StoreRecord(&tracelog.Record{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Text:      "hello",
			Result:    res,
		})
		require.NoError(t, err)
	}

	records, err := storage.GetRecordsByTimeRange(base, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Timestamp.After(records[1].Timestamp))
}
