package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yegors/atlas/internal/intent"
)

// slotPattern recognizes one phraseology form of one instruction type
type slotPattern struct {
	rule  string
	re    *regexp.Regexp
	build func(m []string) (intent.Instruction, bool)
}

// Slot patterns, in extraction order. Each targets its own phraseology so a
// segment can legitimately yield several instructions.
var slotPatterns = []slotPattern{
	{
		rule: "altitude",
		re:   regexp.MustCompile(`\b(DESCEND|CLIMB|MAINTAIN)\s+(?:FLIGHT\s+LEVEL\s+|LEVEL\s+|FL\s?)?(\d{2,3})\b`),
		build: func(m []string) (intent.Instruction, bool) {
			return intValued(intent.TypeAltitude, strings.ToLower(m[1]), m[2], intent.UnitFlightLevel)
		},
	},
	{
		rule: "altitude_feet",
		re:   regexp.MustCompile(`\b(DESCEND|CLIMB|MAINTAIN)\s+(?:TO\s+)?(\d{4,5})(?:\s+(?:FEET|FT))?\b`),
		build: func(m []string) (intent.Instruction, bool) {
			return intValued(intent.TypeAltitude, strings.ToLower(m[1]), m[2], intent.UnitFeet)
		},
	},
	{
		rule: "speed",
		re:   regexp.MustCompile(`\b(REDUCE|MAINTAIN|INCREASE)\s+SPEED\s+(?:TO\s+)?(\d{2,3})\b`),
		build: func(m []string) (intent.Instruction, bool) {
			return intValued(intent.TypeSpeed, strings.ToLower(m[1]), m[2], intent.UnitKnots)
		},
	},
	{
		rule: "heading",
		re:   regexp.MustCompile(`\b(?:TURN\s+(LEFT|RIGHT)\s+)?HEADING\s+(\d{2,3})\b`),
		build: func(m []string) (intent.Instruction, bool) {
			action := "maintain"
			if m[1] != "" {
				action = strings.ToLower(m[1])
			}
			return intValued(intent.TypeHeading, action, m[2], intent.UnitDegrees)
		},
	},
	{
		rule: "frequency",
		re:   regexp.MustCompile(`\b(?:CONTACT|MONITOR)\s+([0-9]{3}\.[0-9]{1,3})\b`),
		build: func(m []string) (intent.Instruction, bool) {
			f, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return intent.Instruction{}, false
			}
			return intent.Instruction{
				Type:   intent.TypeFrequency,
				Action: "contact",
				Value:  intent.FloatValue(f),
				Unit:   intent.UnitMHz,
			}, true
		},
	},
	{
		rule: "runway",
		re:   regexp.MustCompile(`\b(?:CLEARED\s+)?(?:ILS\s+)?(?:APPROACH\s+)?RUNWAY\s+([0-9]{1,2}[LRC]?)\b`),
		build: func(m []string) (intent.Instruction, bool) {
			return stringValued(intent.TypeRunway, "assign", m[1], "")
		},
	},
	{
		rule: "direct",
		re:   regexp.MustCompile(`\bCLEARED\s+DIRECT\s+([A-Z]{3,5})\b`),
		build: func(m []string) (intent.Instruction, bool) {
			return stringValued(intent.TypeDirect, "cleared", m[1], "")
		},
	},
	{
		rule: "waypoint",
		re:   regexp.MustCompile(`\bPROCEED\s+(DIRECT\s+)?(?:TO\s+)?([A-Z]{3,5})\b`),
		build: func(m []string) (intent.Instruction, bool) {
			action := "proceed"
			if m[1] != "" {
				action = "direct"
			}
			return stringValued(intent.TypeWaypoint, action, m[2], "")
		},
	},
	{
		rule: "squawk",
		re:   regexp.MustCompile(`\bSQUAWK\s+([0-7]{4})\b`),
		build: func(m []string) (intent.Instruction, bool) {
			return stringValued(intent.TypeSquawk, "assign", m[1], intent.UnitOctal)
		},
	},
	{
		rule: "hold",
		re:   regexp.MustCompile(`\bHOLD\s+(?:AT\s+|OVER\s+)?([A-Z]{3,5})\b`),
		build: func(m []string) (intent.Instruction, bool) {
			// HOLD SHORT is a ground restriction, not a holding clearance
			if m[1] == "SHORT" {
				return intent.Instruction{}, false
			}
			return stringValued(intent.TypeHold, "hold", m[1], "")
		},
	},
	{
		rule: "climb_rate",
		re:   regexp.MustCompile(`\b(?:(CLIMB|DESCEND)\s+)?AT\s+(\d{3,4})\s+(?:FEET\s+PER\s+MINUTE|FPM)\b`),
		build: func(m []string) (intent.Instruction, bool) {
			action := "maintain"
			if m[1] != "" {
				action = strings.ToLower(m[1])
			}
			return intValued(intent.TypeClimbRate, action, m[2], intent.UnitFPM)
		},
	},
}

var untilPattern = regexp.MustCompile(`\bUNTIL\s+([A-Z0-9]+)\b`)

func intValued(t intent.InstructionType, action, digits, unit string) (intent.Instruction, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return intent.Instruction{}, false
	}
	return intent.Instruction{Type: t, Action: action, Value: intent.IntValue(n), Unit: unit}, true
}

func stringValued(t intent.InstructionType, action, value, unit string) (intent.Instruction, bool) {
	return intent.Instruction{Type: t, Action: action, Value: intent.StringValue(value), Unit: unit}, true
}
