package parser

import (
	"github.com/yegors/atlas/internal/intent"
)

// verticalActions are the altitude actions that assign a target level
var verticalActions = map[string]bool{
	"maintain": true,
	"descend":  true,
	"climb":    true,
}

// DetectConflict reports whether one utterance assigns more than one
// distinct altitude or more than one distinct speed.
func DetectConflict(instructions []intent.Instruction) bool {
	altitudes := make(map[intent.Value]struct{})
	speeds := make(map[intent.Value]struct{})

	for _, instr := range instructions {
		switch {
		case instr.Type == intent.TypeAltitude && verticalActions[instr.Action]:
			altitudes[instr.Value] = struct{}{}
		case instr.Type == intent.TypeSpeed:
			speeds[instr.Value] = struct{}{}
		}
	}

	return len(altitudes) > 1 || len(speeds) > 1
}
