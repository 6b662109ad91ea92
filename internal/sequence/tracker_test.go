package sequence

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/internal/parser"
	"github.com/yegors/atlas/internal/tracelog"
	"github.com/yegors/atlas/pkg/logger"
)

func newTestTracker() *Tracker {
	log := logger.NewNop()
	return NewTracker(parser.New(parser.DefaultConfig(), log), log)
}

func applyAll(t *testing.T, tracker *Tracker, state *State, turns ...string) []*Turn {
	t.Helper()
	out := make([]*Turn, len(turns))
	for i, text := range turns {
		out[i] = tracker.Apply(text, state, parser.Options{})
	}
	return out
}

func TestAmendmentReplacesPriorInstruction(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state,
		"AAL77 descend flight level 180",
		"AAL77 correction descend flight level 150",
	)

	second := turns[1].Result
	assert.Equal(t, intent.StatusOK, second.Status)
	assert.True(t, second.HasNote(intent.NoteAmendmentDetected))
	assert.False(t, second.HasNote(intent.NoteHistoryConflictDetected))

	slot, ok := state.ActiveSlot("AAL77", intent.TypeAltitude)
	require.True(t, ok)
	assert.Equal(t, intent.IntValue(150), slot.Value)

	require.Len(t, turns[1].Changes, 1)
	change := turns[1].Changes[0]
	assert.Equal(t, ChangeUpdated, change.Change)
	assert.Equal(t, intent.IntValue(180), change.Previous.Value)
	assert.Equal(t, intent.IntValue(150), change.Current.Value)
}

func TestCancellationRemovesActiveSlot(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state,
		"AAL77 reduce speed to 250 turn left heading 270",
		"AAL77 cancel speed restrictions",
	)

	second := turns[1].Result
	assert.Contains(t, second.NoteStrings(), "cancellation_applied:speed")
	_, ok := state.ActiveSlot("AAL77", intent.TypeSpeed)
	assert.False(t, ok)
	_, ok = state.ActiveSlot("AAL77", intent.TypeHeading)
	assert.True(t, ok)

	require.Len(t, turns[1].Changes, 1)
	assert.Equal(t, ChangeRemoved, turns[1].Changes[0].Change)
	assert.Equal(t, intent.TypeSpeed, turns[1].Changes[0].Slot)
}

func TestCancellationTargetsAreSortedAndDeduplicated(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state,
		"AAL77 descend flight level 180 reduce speed to 250",
		"AAL77 cancel speed cancel level cancel altitude",
	)

	notes := turns[1].Result.NoteStrings()
	assert.Contains(t, notes, "cancellation_applied:altitude")
	assert.Contains(t, notes, "cancellation_applied:speed")
	assert.Less(t, indexOf(notes, "cancellation_applied:altitude"), indexOf(notes, "cancellation_applied:speed"))
	assert.Empty(t, state.Active("AAL77"))
}

func TestBareCancelClearsEverySlot(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state,
		"AAL77 descend flight level 180 reduce speed to 250",
		"AAL77 cancel",
	)

	assert.Contains(t, turns[1].Result.NoteStrings(), "cancellation_applied:all")
	assert.Empty(t, state.Active("AAL77"))
	assert.Len(t, turns[1].Changes, 2)
}

func TestHistoryConflictWithoutCorrection(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state,
		"AAL77 descend flight level 180",
		"AAL77 descend flight level 160",
	)

	second := turns[1].Result
	assert.Equal(t, intent.StatusConflict, second.Status)
	assert.InDelta(t, 0.4, second.Confidence, 1e-9)
	assert.Equal(t, intent.TierLow, second.Tier)
	assert.Contains(t, second.NoteStrings(), "history_conflict_detected")
	assert.Contains(t, second.NoteStrings(), "history_conflict:altitude")

	// the latest instruction still wins
	slot, _ := state.ActiveSlot("AAL77", intent.TypeAltitude)
	assert.Equal(t, intent.IntValue(160), slot.Value)
}

type recordingSink struct {
	mu      sync.Mutex
	records []*tracelog.Record
}

func (s *recordingSink) Append(record *tracelog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func TestSinkRecordsTrackedResult(t *testing.T) {
	sink := &recordingSink{}
	log := logger.NewNop()
	config := parser.DefaultConfig()
	config.Sink = sink
	tracker := NewTracker(parser.New(config, log), log)

	inputs := []string{
		"AAL77 descend flight level 180",
		"AAL77 descend flight level 160",
		"then descend flight level 120",
		"roger",
	}
	turns := applyAll(t, tracker, NewState(), inputs...)

	require.Len(t, sink.records, len(turns))
	for i, turn := range turns {
		rec := sink.records[i].Result
		assert.Equal(t, inputs[i], sink.records[i].Text)
		assert.Equal(t, turn.Result.Status, rec.Status, "turn %d", i)
		assert.Equal(t, turn.Result.Callsign, rec.Callsign, "turn %d", i)
		assert.InDelta(t, turn.Result.Confidence, rec.Confidence, 1e-9, "turn %d", i)
		assert.Equal(t, turn.Result.Tier, rec.Tier, "turn %d", i)
		assert.Equal(t, turn.Result.NoteStrings(), rec.NoteStrings(), "turn %d", i)
		assert.NotEmpty(t, rec.Trace, "turn %d", i)
		assert.Nil(t, turn.Result.Trace, "turn %d", i)
	}

	assert.Equal(t, intent.StatusConflict, sink.records[1].Result.Status)
	assert.Contains(t, sink.records[1].Result.NoteStrings(), "history_conflict:altitude")
	assert.Equal(t, intent.Callsign("AAL77"), sink.records[2].Result.Callsign)
	assert.Equal(t, intent.StatusOK, sink.records[2].Result.Status)
	assert.Contains(t, sink.records[2].Result.NoteStrings(), "callsign_inherited_from_context")
	assert.Equal(t, intent.StatusUnknown, sink.records[3].Result.Status)
}

func TestHistoryIsIndependentOfReturnedResult(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state, "AAL77 descend flight level 180")

	returned := turns[0].Result
	returned.Status = intent.StatusConflict
	returned.AddNote(intent.Simple(intent.NoteHistoryConflictDetected))
	returned.Instructions[0].Value = intent.IntValue(90)

	history := state.History("AAL77")
	require.Len(t, history, 1)
	assert.Equal(t, intent.StatusOK, history[0].Status)
	assert.False(t, history[0].HasNote(intent.NoteHistoryConflictDetected))
	assert.Equal(t, intent.IntValue(180), history[0].Instructions[0].Value)
}

func TestSameValueIsNotAHistoryConflict(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state,
		"AAL77 descend flight level 180",
		"AAL77 descend flight level 180",
	)

	assert.Equal(t, intent.StatusOK, turns[1].Result.Status)
	assert.False(t, turns[1].Result.HasNote(intent.NoteHistoryConflictDetected))
}

func TestInheritsCallsignForTemporalFollowup(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state,
		"AAL77 hold at LAM",
		"then descend flight level 120",
	)

	second := turns[1].Result
	assert.Equal(t, intent.Callsign("AAL77"), second.Callsign)
	assert.Equal(t, intent.StatusOK, second.Status)
	assert.InDelta(t, 0.6, second.Confidence, 1e-9)
	assert.Equal(t, intent.TierMedium, second.Tier)
	assert.Equal(t, []string{
		"confidence_tier:low",
		"low_confidence_threshold_breach",
		"callsign_inherited_from_context",
		"context_confidence_recovery",
		"temporal_link_detected",
		"temporal_condition_applied:then",
	}, second.NoteStrings())

	require.Len(t, second.Instructions, 1)
	assert.Equal(t, "then", second.Instructions[0].Condition)
	assert.Len(t, state.History("AAL77"), 2)
}

func TestNoInheritanceWithoutInstructions(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state,
		"AAL77 hold at LAM",
		"roger",
	)

	second := turns[1].Result
	assert.True(t, second.Callsign.IsZero())
	assert.Equal(t, intent.StatusUnknown, second.Status)
	assert.Len(t, state.History("AAL77"), 1)
	assert.Empty(t, turns[1].Changes)
}

func TestAfterConditionAppliesToNewInstruction(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state,
		"AAL77 hold at LAM",
		"AAL77 after LAM descend flight level 130",
	)

	require.Len(t, turns[1].Result.Instructions, 1)
	assert.Equal(t, "after LAM", turns[1].Result.Instructions[0].Condition)

	slot, ok := state.ActiveSlot("AAL77", intent.TypeAltitude)
	require.True(t, ok)
	assert.Equal(t, "after LAM", slot.Condition)
}

func TestUntilConditionAppliesToActiveSlots(t *testing.T) {
	state := NewState()
	turns := applyAll(t, newTestTracker(), state,
		"AAL77 reduce speed to 240",
		"AAL77 until LAM",
	)

	second := turns[1].Result
	assert.Empty(t, second.Instructions)
	assert.Equal(t, intent.StatusUnknown, second.Status)
	assert.Contains(t, second.NoteStrings(), "temporal_condition_applied_to_active:until LAM")

	slot, ok := state.ActiveSlot("AAL77", intent.TypeSpeed)
	require.True(t, ok)
	assert.Equal(t, "until LAM", slot.Condition)

	require.Len(t, turns[1].Changes, 1)
	assert.Equal(t, ChangeUpdated, turns[1].Changes[0].Change)
}

func TestSessionsAreKeyedByCallsign(t *testing.T) {
	state := NewState()
	applyAll(t, newTestTracker(), state,
		"AAL77 descend flight level 180",
		"DAL220 descend flight level 160",
	)

	assert.Equal(t, []intent.Callsign{"AAL77", "DAL220"}, state.Callsigns())
	assert.Equal(t, intent.Callsign("DAL220"), state.LastCallsign())

	slot, _ := state.ActiveSlot("AAL77", intent.TypeAltitude)
	assert.Equal(t, intent.IntValue(180), slot.Value)
}

func TestRunSequenceReturnsSnapshot(t *testing.T) {
	seq := newTestTracker().RunSequence([]string{
		"AAL77 descend flight level 180",
		"AAL77 correction descend flight level 150",
	}, parser.Options{})

	require.Len(t, seq.Turns, 2)
	assert.Equal(t, "turn-0001", seq.Turns[0].UtteranceID)
	assert.Equal(t, "turn-0002", seq.Turns[1].UtteranceID)
	assert.Equal(t, intent.Callsign("AAL77"), seq.State.LastCallsign)

	active := seq.State.Active["AAL77"]
	require.Len(t, active, 1)
	assert.Equal(t, intent.IntValue(150), active[0].Value)
	assert.Equal(t, "turn-0002", active[0].UtteranceID)

	raw, err := json.Marshal(seq.State)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"active_by_callsign":{"AAL77":[{"type":"altitude","action":"descend","value":150,"unit":"FL"`)
}

func TestDetectChanges(t *testing.T) {
	alt := &ActiveSlot{Type: intent.TypeAltitude, Action: "descend", Value: intent.IntValue(180)}
	spd := &ActiveSlot{Type: intent.TypeSpeed, Action: "reduce", Value: intent.IntValue(250)}
	hdg := &ActiveSlot{Type: intent.TypeHeading, Action: "left", Value: intent.IntValue(270)}
	alt2 := &ActiveSlot{Type: intent.TypeAltitude, Action: "descend", Value: intent.IntValue(150)}

	previous := map[intent.InstructionType]*ActiveSlot{intent.TypeAltitude: alt, intent.TypeSpeed: spd}
	current := map[intent.InstructionType]*ActiveSlot{intent.TypeAltitude: alt2, intent.TypeHeading: hdg}

	changes := detectChanges(previous, current)
	require.Len(t, changes, 3)
	assert.Equal(t, ChangeUpdated, changes[0].Change)
	assert.Equal(t, ChangeRemoved, changes[1].Change)
	assert.Equal(t, intent.TypeSpeed, changes[1].Slot)
	assert.Equal(t, ChangeAdded, changes[2].Change)
	assert.Equal(t, intent.TypeHeading, changes[2].Slot)

	assert.Empty(t, detectChanges(previous, previous))
}

func indexOf(items []string, want string) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return -1
}
