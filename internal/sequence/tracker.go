package sequence

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/internal/parser"
	"github.com/yegors/atlas/pkg/logger"
)

// cancelTarget maps a "CANCEL <keyword>" phrase to the slot it clears
type cancelTarget struct {
	re   *regexp.Regexp
	slot intent.InstructionType
}

var cancelTargets = []cancelTarget{
	{regexp.MustCompile(`\bCANCEL\s+SPEED\b`), intent.TypeSpeed},
	{regexp.MustCompile(`\bCANCEL\s+ALTITUDE\b`), intent.TypeAltitude},
	{regexp.MustCompile(`\bCANCEL\s+(?:FLIGHT\s+)?LEVEL\b`), intent.TypeAltitude},
	{regexp.MustCompile(`\bCANCEL\s+HEADING\b`), intent.TypeHeading},
	{regexp.MustCompile(`\bCANCEL\s+HOLD\b`), intent.TypeHold},
	{regexp.MustCompile(`\bCANCEL\s+DIRECT\b`), intent.TypeDirect},
	{regexp.MustCompile(`\bCANCEL\s+SQUAWK\b`), intent.TypeSquawk},
	{regexp.MustCompile(`\bCANCEL\s+FREQUENCY\b`), intent.TypeFrequency},
	{regexp.MustCompile(`\bCANCEL\s+RUNWAY\b`), intent.TypeRunway},
}

var (
	cancelPattern       = regexp.MustCompile(`\bCANCEL\b`)
	temporalLinkPattern = regexp.MustCompile(`\b(THEN|AFTER|UNTIL)\b`)
	afterPattern        = regexp.MustCompile(`\bAFTER\s+([A-Z0-9]+)\b`)
	untilPattern        = regexp.MustCompile(`\bUNTIL\s+([A-Z0-9]+)\b`)
)

// Turn is the outcome of applying one utterance to a session
type Turn struct {
	Result  *intent.ParseResult `json:"result"`
	Changes []SlotChange        `json:"changes"`
}

// Sequence is the outcome of a whole list of utterances in a fresh session
type Sequence struct {
	Turns []*intent.ParseResult `json:"turns"`
	State Snapshot              `json:"state"`
}

// Tracker folds per-utterance parses into a session State
type Tracker struct {
	pipeline *parser.Pipeline
	logger   *logger.Logger
}

// NewTracker creates a new sequence tracker
func NewTracker(pipeline *parser.Pipeline, logger *logger.Logger) *Tracker {
	return &Tracker{
		pipeline: pipeline,
		logger:   logger.Named("sequence"),
	}
}

// ParseWithState parses one turn and updates state in place
func (t *Tracker) ParseWithState(text string, state *State, opts parser.Options) *intent.ParseResult {
	return t.Apply(text, state, opts).Result
}

// Apply parses one turn, applies callsign inheritance, cancellation,
// temporal propagation and cross-turn conflict detection, then records the
// turn in the session. Turns must be applied in arrival order.
func (t *Tracker) Apply(text string, state *State, opts parser.Options) *Turn {
	policy := t.pipeline.Policy()
	analysis := t.pipeline.Analyze(text, opts)
	result, normalized := analysis.Result, analysis.Normalized

	if result.Callsign.IsZero() && len(result.Instructions) > 0 && !state.lastCallsign.IsZero() {
		result.Callsign = state.lastCallsign
		result.AddNote(intent.Simple(intent.NoteCallsignInheritedFromContext))
		if result.Status == intent.StatusAmbiguous && result.HasNote(intent.NoteLowConfidenceThresholdBreach) {
			result.Status = intent.StatusOK
			result.Confidence = math.Max(result.Confidence, policy.OperationalMinimum)
			result.Tier = policy.Tier(result.Confidence)
			result.AddNote(intent.Simple(intent.NoteContextConfidenceRecovery))
		}
	}

	condition := temporalCondition(normalized)
	if temporalLinkPattern.MatchString(normalized) {
		result.AddNote(intent.Simple(intent.NoteTemporalLinkDetected))
	}

	turn := &Turn{Result: result, Changes: []SlotChange{}}
	if result.Callsign.IsZero() {
		t.pipeline.Record(text, analysis)
		return turn
	}

	callsign := result.Callsign
	state.lastCallsign = callsign
	active := state.activeFor(callsign)
	before := cloneActive(active)

	if targets, ok := cancellations(normalized); ok {
		if len(targets) == 0 {
			clear(active)
			result.AddNote(intent.CancellationAll())
		}
		for _, target := range targets {
			delete(active, target)
			result.AddNote(intent.Cancellation(target))
		}
	}

	if condition != "" {
		applyTemporalCondition(result, condition, active)
	}

	correction := result.HasNote(intent.NoteAmendmentDetected)
	contradictions := make(map[intent.InstructionType]bool)
	for _, instr := range result.Instructions {
		if prev, ok := active[instr.Type]; ok && prev.Value != instr.Value &&
			!correction && instr.Update != intent.UpdateReplace {
			contradictions[instr.Type] = true
		}
		active[instr.Type] = slotFromInstruction(instr, result.UtteranceID)
	}

	if len(contradictions) > 0 {
		result.AddNote(intent.Simple(intent.NoteHistoryConflictDetected))
		for _, slot := range sortedTypes(contradictions) {
			result.AddNote(intent.HistoryConflict(slot))
		}
		if result.Status == intent.StatusOK {
			result.Status = intent.StatusConflict
			result.Confidence = math.Min(result.Confidence, policy.HistoryConflictCap)
			result.Tier = policy.Tier(result.Confidence)
		}
	}

	state.history[callsign] = append(state.history[callsign], result.Clone())
	turn.Changes = detectChanges(before, active)
	t.pipeline.Record(text, analysis)

	t.logger.WithCallsign(callsign.String()).Debug("Applied turn",
		logger.String("utterance_id", result.UtteranceID),
		logger.String("status", string(result.Status)),
		logger.Int("changes", len(turn.Changes)),
		logger.Int("active_slots", len(active)))

	return turn
}

// RunSequence applies every utterance in order to a fresh session. Turn
// utterance IDs are turn-0001, turn-0002, ...
func (t *Tracker) RunSequence(utterances []string, opts parser.Options) *Sequence {
	state := NewState()
	turns := make([]*intent.ParseResult, 0, len(utterances))
	for i, text := range utterances {
		turnOpts := opts
		turnOpts.UtteranceID = fmt.Sprintf("turn-%04d", i+1)
		turns = append(turns, t.ParseWithState(text, state, turnOpts))
	}
	return &Sequence{Turns: turns, State: state.Snapshot()}
}

// temporalCondition returns "then", "after X" or "until X", in that
// precedence, or "" when the turn carries no qualifier
func temporalCondition(normalized string) string {
	if strings.HasPrefix(normalized, "THEN ") {
		return "then"
	}
	if m := afterPattern.FindStringSubmatch(normalized); m != nil {
		return "after " + m[1]
	}
	if m := untilPattern.FindStringSubmatch(normalized); m != nil {
		return "until " + m[1]
	}
	return ""
}

// cancellations reports whether the turn cancels anything. An empty target
// list with ok=true is a bare CANCEL that clears every slot.
func cancellations(normalized string) ([]intent.InstructionType, bool) {
	if !cancelPattern.MatchString(normalized) {
		return nil, false
	}
	targets := make(map[intent.InstructionType]bool)
	for _, ct := range cancelTargets {
		if ct.re.MatchString(normalized) {
			targets[ct.slot] = true
		}
	}
	return sortedTypes(targets), true
}

func applyTemporalCondition(result *intent.ParseResult, condition string, active map[intent.InstructionType]*ActiveSlot) {
	if len(result.Instructions) > 0 {
		applied := false
		for i := range result.Instructions {
			if result.Instructions[i].Condition == "" {
				result.Instructions[i].Condition = condition
				applied = true
			}
		}
		if applied {
			result.AddNote(intent.TemporalApplied(condition))
		}
		return
	}

	if len(active) == 0 {
		return
	}
	for _, slot := range active {
		slot.Condition = condition
	}
	result.AddNote(intent.TemporalAppliedToActive(condition))
}

// sortedTypes returns the set members ordered by type name
func sortedTypes(set map[intent.InstructionType]bool) []intent.InstructionType {
	out := make([]intent.InstructionType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
