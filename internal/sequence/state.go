package sequence

import (
	"sort"

	"github.com/yegors/atlas/internal/intent"
)

// ActiveSlot is the instruction currently in force for one slot type
type ActiveSlot struct {
	Type        intent.InstructionType `json:"type"`
	Action      string                 `json:"action"`
	Value       intent.Value           `json:"value"`
	Unit        string                 `json:"unit,omitempty"`
	Condition   string                 `json:"condition,omitempty"`
	UtteranceID string                 `json:"utterance_id,omitempty"`
}

func slotFromInstruction(instr intent.Instruction, utteranceID string) *ActiveSlot {
	return &ActiveSlot{
		Type:        instr.Type,
		Action:      instr.Action,
		Value:       instr.Value,
		Unit:        instr.Unit,
		Condition:   instr.Condition,
		UtteranceID: utteranceID,
	}
}

// State is the per-session memory of active instructions and turn history,
// keyed by callsign. It is not safe for concurrent use; a session must have
// a single writer that applies turns in arrival order.
type State struct {
	active       map[intent.Callsign]map[intent.InstructionType]*ActiveSlot
	history      map[intent.Callsign][]*intent.ParseResult
	lastCallsign intent.Callsign
}

// NewState creates an empty session state
func NewState() *State {
	return &State{
		active:  make(map[intent.Callsign]map[intent.InstructionType]*ActiveSlot),
		history: make(map[intent.Callsign][]*intent.ParseResult),
	}
}

// LastCallsign returns the callsign of the most recent turn that had one
func (s *State) LastCallsign() intent.Callsign {
	return s.lastCallsign
}

// Callsigns returns every callsign seen in the session, sorted
func (s *State) Callsigns() []intent.Callsign {
	out := make([]intent.Callsign, 0, len(s.history))
	for cs := range s.history {
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Active returns copies of the active slots for a callsign in type order
func (s *State) Active(callsign intent.Callsign) []ActiveSlot {
	slots := s.active[callsign]
	out := make([]ActiveSlot, 0, len(slots))
	for _, t := range intent.InstructionTypes() {
		if slot, ok := slots[t]; ok {
			out = append(out, *slot)
		}
	}
	return out
}

// ActiveSlot returns the active slot of one type, if any
func (s *State) ActiveSlot(callsign intent.Callsign, t intent.InstructionType) (ActiveSlot, bool) {
	slot, ok := s.active[callsign][t]
	if !ok {
		return ActiveSlot{}, false
	}
	return *slot, true
}

// History returns the results applied for a callsign, oldest first
func (s *State) History(callsign intent.Callsign) []*intent.ParseResult {
	return append([]*intent.ParseResult(nil), s.history[callsign]...)
}

func (s *State) activeFor(callsign intent.Callsign) map[intent.InstructionType]*ActiveSlot {
	active, ok := s.active[callsign]
	if !ok {
		active = make(map[intent.InstructionType]*ActiveSlot)
		s.active[callsign] = active
	}
	return active
}

// Snapshot is the serializable view of a session
type Snapshot struct {
	Active       map[intent.Callsign][]ActiveSlot `json:"active_by_callsign"`
	LastCallsign intent.Callsign                  `json:"last_callsign"`
}

// Snapshot copies the active slots of every callsign
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Active:       make(map[intent.Callsign][]ActiveSlot, len(s.active)),
		LastCallsign: s.lastCallsign,
	}
	for cs := range s.active {
		snap.Active[cs] = s.Active(cs)
	}
	return snap
}

func cloneActive(active map[intent.InstructionType]*ActiveSlot) map[intent.InstructionType]*ActiveSlot {
	out := make(map[intent.InstructionType]*ActiveSlot, len(active))
	for t, slot := range active {
		c := *slot
		out[t] = &c
	}
	return out
}
