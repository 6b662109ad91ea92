package readback

import (
	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/internal/parser"
)

// Speakers used for the two sides of an exchange
const (
	SpeakerATC   = "ATC"
	SpeakerPilot = "PILOT"
)

// Slot is the comparable part of an instruction
type Slot struct {
	Type   intent.InstructionType `json:"type"`
	Action string                 `json:"action"`
	Value  intent.Value           `json:"value"`
	Unit   string                 `json:"unit,omitempty"`
}

// Result is the outcome of comparing a clearance with its readback
type Result struct {
	CallsignExpected     intent.Callsign `json:"callsign_expected"`
	CallsignReadback     intent.Callsign `json:"callsign_readback"`
	CallsignMismatch     bool            `json:"callsign_mismatch"`
	MissingInReadback    []Slot          `json:"missing_in_readback"`
	UnexpectedInReadback []Slot          `json:"unexpected_in_readback"`
	MismatchDetected     bool            `json:"mismatch_detected"`
}

// Comparator diffs the slots of an ATC clearance and a pilot readback
type Comparator struct {
	pipeline *parser.Pipeline
}

// NewComparator creates a comparator over the given pipeline
func NewComparator(pipeline *parser.Pipeline) *Comparator {
	return &Comparator{pipeline: pipeline}
}

// Compare parses both utterances and reports the slots that differ. Slots
// are compared as multisets so a repeated instruction must be read back as
// often as it was issued.
func (c *Comparator) Compare(atcText, pilotText string) *Result {
	atc := c.pipeline.Parse(atcText, parser.Options{Speaker: SpeakerATC})
	pilot := c.pipeline.Parse(pilotText, parser.Options{Speaker: SpeakerPilot})
	return Diff(atc, pilot)
}

// Diff compares two already parsed results
func Diff(atc, pilot *intent.ParseResult) *Result {
	atcSlots := slotCounts(atc.Instructions)
	pilotSlots := slotCounts(pilot.Instructions)

	res := &Result{
		CallsignExpected:     atc.Callsign,
		CallsignReadback:     pilot.Callsign,
		MissingInReadback:    difference(atc.Instructions, atcSlots, pilotSlots),
		UnexpectedInReadback: difference(pilot.Instructions, pilotSlots, atcSlots),
	}
	res.CallsignMismatch = !atc.Callsign.IsZero() && !pilot.Callsign.IsZero() && atc.Callsign != pilot.Callsign
	res.MismatchDetected = len(res.MissingInReadback) > 0 || len(res.UnexpectedInReadback) > 0 || res.CallsignMismatch
	return res
}

func slotOf(instr intent.Instruction) Slot {
	return Slot{
		Type:   instr.Type,
		Action: instr.Action,
		Value:  instr.Value.Canonical(),
		Unit:   instr.Unit,
	}
}

func slotCounts(instructions []intent.Instruction) map[Slot]int {
	counts := make(map[Slot]int, len(instructions))
	for _, instr := range instructions {
		counts[slotOf(instr)]++
	}
	return counts
}

// difference returns left minus right as a multiset, in first-appearance
// order
func difference(order []intent.Instruction, left, right map[Slot]int) []Slot {
	out := []Slot{}
	seen := make(map[Slot]bool, len(left))
	for _, instr := range order {
		slot := slotOf(instr)
		if seen[slot] {
			continue
		}
		seen[slot] = true
		for n := left[slot] - right[slot]; n > 0; n-- {
			out = append(out, slot)
		}
	}
	return out
}
