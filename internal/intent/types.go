package intent

import (
	"fmt"
)

// SchemaVersion identifies the ParseResult layout
const SchemaVersion = "atlas.intent.v0.1"

// InstructionType is the closed set of clearance elements the parser recognizes
type InstructionType uint8

// Instruction types, in extractor order
const (
	TypeAltitude InstructionType = iota + 1
	TypeSpeed
	TypeHeading
	TypeFrequency
	TypeRunway
	TypeDirect
	TypeWaypoint
	TypeSquawk
	TypeHold
	TypeClimbRate
)

var instructionTypeNames = map[InstructionType]string{
	TypeAltitude:  "altitude",
	TypeSpeed:     "speed",
	TypeHeading:   "heading",
	TypeFrequency: "frequency",
	TypeRunway:    "runway",
	TypeDirect:    "direct",
	TypeWaypoint:  "waypoint",
	TypeSquawk:    "squawk",
	TypeHold:      "hold",
	TypeClimbRate: "climb_rate",
}

// InstructionTypes returns every instruction type in extractor order
func InstructionTypes() []InstructionType {
	return []InstructionType{
		TypeAltitude, TypeSpeed, TypeHeading, TypeFrequency, TypeRunway,
		TypeDirect, TypeWaypoint, TypeSquawk, TypeHold, TypeClimbRate,
	}
}

// ParseInstructionType resolves a snake_case type name
func ParseInstructionType(name string) (InstructionType, error) {
	for t, n := range instructionTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown instruction type: %q", name)
}

// Valid reports whether t is one of the enumerated types
func (t InstructionType) Valid() bool {
	_, ok := instructionTypeNames[t]
	return ok
}

func (t InstructionType) String() string {
	if name, ok := instructionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("InstructionType(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler
func (t InstructionType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid instruction type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *InstructionType) UnmarshalText(text []byte) error {
	parsed, err := ParseInstructionType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Status is the outcome of one utterance parse
type Status string

// Parse statuses
const (
	StatusOK        Status = "ok"
	StatusUnknown   Status = "unknown"
	StatusAmbiguous Status = "ambiguous"
	StatusConflict  Status = "conflict"
)

// Tier is the confidence band derived from the numeric confidence
type Tier string

// Confidence tiers
const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Update tells whether an instruction supersedes a prior same-type instruction
type Update string

// Update modes
const (
	UpdateNew     Update = "new"
	UpdateReplace Update = "replace"
)

// Unit tags
const (
	UnitFlightLevel = "FL"
	UnitFeet        = "ft"
	UnitKnots       = "kt"
	UnitDegrees     = "deg"
	UnitMHz         = "MHz"
	UnitOctal       = "octal"
	UnitFPM         = "fpm"
)

// Provenance records which rule produced an instruction and why
type Provenance struct {
	Rule           string `json:"rule"`
	Pattern        string `json:"pattern,omitempty"`
	Segment        string `json:"segment,omitempty"`
	ResolutionMode string `json:"resolution_mode,omitempty"` // "rules" or "ml_assist"
	SelectedType   string `json:"selected_type,omitempty"`
	CandidateTypes string `json:"candidate_types,omitempty"`
}

// Instruction is one recognized clearance element
type Instruction struct {
	Type       InstructionType `json:"type"`
	Action     string          `json:"action"`
	Value      Value           `json:"value"`
	Unit       string          `json:"unit,omitempty"`
	Condition  string          `json:"condition,omitempty"`
	Update     Update          `json:"update"`
	Provenance *Provenance     `json:"provenance,omitempty"`
}

// TraceEvent is one pipeline stage record
type TraceEvent struct {
	Stage     string  `json:"stage"`
	ElapsedMS float64 `json:"t_ms"`

	UtteranceID    string   `json:"utterance_id,omitempty"`
	Speaker        string   `json:"speaker,omitempty"`
	RawTextLength  int      `json:"raw_text_length,omitempty"`
	NormalizedText string   `json:"normalized_text,omitempty"`
	Callsign       Callsign `json:"callsign,omitempty"`
	CorrectionMode bool     `json:"correction_mode,omitempty"`
	SegmentCount   int      `json:"segment_count,omitempty"`

	Index          int      `json:"index,omitempty"`
	Segment        string   `json:"segment,omitempty"`
	ParsedCount    int      `json:"parsed_instruction_count,omitempty"`
	ParsedTypes    []string `json:"parsed_instruction_types,omitempty"`
	Status         Status   `json:"status,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	Tier           Tier     `json:"confidence_tier,omitempty"`
	InstructionCnt int      `json:"instruction_count,omitempty"`
	NoteCount      int      `json:"note_count,omitempty"`
}

// ParseResult is the output of one utterance parse
type ParseResult struct {
	SchemaVersion string        `json:"schema_version"`
	UtteranceID   string        `json:"utterance_id,omitempty"`
	Speaker       string        `json:"speaker"`
	Callsign      Callsign      `json:"callsign"`
	Instructions  []Instruction `json:"instructions"`
	Confidence    float64       `json:"confidence"`
	Tier          Tier          `json:"confidence_tier"`
	Status        Status        `json:"status"`
	Notes         []Note        `json:"notes"`
	Trace         []TraceEvent  `json:"trace,omitempty"`
}

// NewParseResult creates an empty result in the unknown state
func NewParseResult(utteranceID, speaker string) *ParseResult {
	return &ParseResult{
		SchemaVersion: SchemaVersion,
		UtteranceID:   utteranceID,
		Speaker:       speaker,
		Instructions:  []Instruction{},
		Status:        StatusUnknown,
		Tier:          TierLow,
		Notes:         []Note{},
	}
}

// AddNote appends a diagnostic note
func (r *ParseResult) AddNote(note Note) {
	r.Notes = append(r.Notes, note)
}

// HasNote reports whether a note of the given kind is present
func (r *ParseResult) HasNote(kind NoteKind) bool {
	for _, n := range r.Notes {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

// NoteStrings renders the notes in their text form
func (r *ParseResult) NoteStrings() []string {
	out := make([]string, len(r.Notes))
	for i, n := range r.Notes {
		out[i] = n.String()
	}
	return out
}

// Types returns the instruction types in order
func (r *ParseResult) Types() []InstructionType {
	out := make([]InstructionType, len(r.Instructions))
	for i, instr := range r.Instructions {
		out[i] = instr.Type
	}
	return out
}

// Clone returns a deep copy so that the original result stays untouched
func (r *ParseResult) Clone() *ParseResult {
	c := *r
	c.Instructions = make([]Instruction, len(r.Instructions))
	for i, instr := range r.Instructions {
		if instr.Provenance != nil {
			p := *instr.Provenance
			instr.Provenance = &p
		}
		c.Instructions[i] = instr
	}
	c.Notes = append([]Note{}, r.Notes...)
	if r.Trace != nil {
		c.Trace = append([]TraceEvent{}, r.Trace...)
	}
	return &c
}
