package intent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NoteKind enumerates the diagnostic events a parse can emit
type NoteKind uint8

// Note kinds
const (
	NoteAmendmentDetected NoteKind = iota + 1
	NoteHybridDisambiguationApplied
	NoteHybridContextBias
	NoteHybridMLAssist
	NoteConfidenceTier
	NoteSlotConflictDetected
	NoteLowConfidenceThresholdBreach
	NoteCallsignInheritedFromContext
	NoteContextConfidenceRecovery
	NoteTemporalLinkDetected
	NoteTemporalConditionApplied
	NoteTemporalConditionAppliedToActive
	NoteCancellationApplied
	NoteHistoryConflictDetected
	NoteHistoryConflict
)

var noteKindNames = map[NoteKind]string{
	NoteAmendmentDetected:                "amendment_detected",
	NoteHybridDisambiguationApplied:      "hybrid_disambiguation_applied",
	NoteHybridContextBias:                "hybrid_context_bias",
	NoteHybridMLAssist:                   "hybrid_ml_assist",
	NoteConfidenceTier:                   "confidence_tier",
	NoteSlotConflictDetected:             "slot_conflict_detected",
	NoteLowConfidenceThresholdBreach:     "low_confidence_threshold_breach",
	NoteCallsignInheritedFromContext:     "callsign_inherited_from_context",
	NoteContextConfidenceRecovery:        "context_confidence_recovery",
	NoteTemporalLinkDetected:             "temporal_link_detected",
	NoteTemporalConditionApplied:         "temporal_condition_applied",
	NoteTemporalConditionAppliedToActive: "temporal_condition_applied_to_active",
	NoteCancellationApplied:              "cancellation_applied",
	NoteHistoryConflictDetected:          "history_conflict_detected",
	NoteHistoryConflict:                  "history_conflict",
}

func (k NoteKind) String() string {
	if name, ok := noteKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NoteKind(%d)", uint8(k))
}

// Note is a tagged diagnostic event. Only the payload fields relevant to
// the kind are set.
type Note struct {
	Kind      NoteKind
	Slot      InstructionType // context bias, ml assist, cancellation, history conflict
	All       bool            // cancellation of every active slot
	Score     float64         // ml assist
	Tier      Tier            // confidence tier
	Condition string          // temporal notes
}

// Simple returns a note without payload
func Simple(kind NoteKind) Note { return Note{Kind: kind} }

// ContextBias records that utterance context forced the altitude reading
func ContextBias(t InstructionType) Note { return Note{Kind: NoteHybridContextBias, Slot: t} }

// MLAssist records the heuristic winner and its score
func MLAssist(t InstructionType, score float64) Note {
	return Note{Kind: NoteHybridMLAssist, Slot: t, Score: score}
}

// TierNote records the confidence tier
func TierNote(tier Tier) Note { return Note{Kind: NoteConfidenceTier, Tier: tier} }

// TemporalApplied records a condition attached to the turn's instructions
func TemporalApplied(condition string) Note {
	return Note{Kind: NoteTemporalConditionApplied, Condition: condition}
}

// TemporalAppliedToActive records a condition attached to existing active slots
func TemporalAppliedToActive(condition string) Note {
	return Note{Kind: NoteTemporalConditionAppliedToActive, Condition: condition}
}

// Cancellation records the removal of one slot type
func Cancellation(t InstructionType) Note { return Note{Kind: NoteCancellationApplied, Slot: t} }

// CancellationAll records the removal of every active slot
func CancellationAll() Note { return Note{Kind: NoteCancellationApplied, All: true} }

// HistoryConflict records a cross-turn contradiction on one slot type
func HistoryConflict(t InstructionType) Note { return Note{Kind: NoteHistoryConflict, Slot: t} }

// String renders the note as "kind" or "kind:payload"
func (n Note) String() string {
	name := n.Kind.String()
	switch n.Kind {
	case NoteHybridContextBias, NoteHistoryConflict:
		return name + ":" + n.Slot.String()
	case NoteHybridMLAssist:
		return name + ":" + n.Slot.String() + ":" + strconv.FormatFloat(n.Score, 'f', -1, 64)
	case NoteConfidenceTier:
		return name + ":" + string(n.Tier)
	case NoteTemporalConditionApplied, NoteTemporalConditionAppliedToActive:
		return name + ":" + n.Condition
	case NoteCancellationApplied:
		if n.All {
			return name + ":all"
		}
		return name + ":" + n.Slot.String()
	default:
		return name
	}
}

// ParseNote is the inverse of Note.String
func ParseNote(s string) (Note, error) {
	name, payload, hasPayload := strings.Cut(s, ":")

	var kind NoteKind
	for k, n := range noteKindNames {
		if n == name {
			kind = k
			break
		}
	}
	if kind == 0 {
		return Note{}, fmt.Errorf("unknown note kind: %q", name)
	}

	note := Note{Kind: kind}
	switch kind {
	case NoteHybridContextBias, NoteHistoryConflict:
		t, err := ParseInstructionType(payload)
		if err != nil {
			return Note{}, fmt.Errorf("failed to parse note %q: %w", s, err)
		}
		note.Slot = t
	case NoteHybridMLAssist:
		typeName, score, ok := strings.Cut(payload, ":")
		if !ok {
			return Note{}, fmt.Errorf("malformed ml assist note: %q", s)
		}
		t, err := ParseInstructionType(typeName)
		if err != nil {
			return Note{}, fmt.Errorf("failed to parse note %q: %w", s, err)
		}
		f, err := strconv.ParseFloat(score, 64)
		if err != nil {
			return Note{}, fmt.Errorf("failed to parse score in note %q: %w", s, err)
		}
		note.Slot, note.Score = t, f
	case NoteConfidenceTier:
		note.Tier = Tier(payload)
	case NoteTemporalConditionApplied, NoteTemporalConditionAppliedToActive:
		if !hasPayload {
			return Note{}, fmt.Errorf("missing condition in note %q", s)
		}
		note.Condition = payload
	case NoteCancellationApplied:
		if payload == "all" {
			note.All = true
			break
		}
		t, err := ParseInstructionType(payload)
		if err != nil {
			return Note{}, fmt.Errorf("failed to parse note %q: %w", s, err)
		}
		note.Slot = t
	default:
		if hasPayload {
			return Note{}, fmt.Errorf("unexpected payload in note %q", s)
		}
	}
	return note, nil
}

// MarshalJSON encodes the note in its text form
func (n Note) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

// UnmarshalJSON decodes the text form
func (n *Note) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to decode note: %w", err)
	}
	parsed, err := ParseNote(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
