package parser

import (
	"math"

	"github.com/yegors/atlas/internal/intent"
)

// Policy holds the confidence scoring and tiering constants
type Policy struct {
	BaseScore          float64 `toml:"base_score"`
	PerInstruction     float64 `toml:"per_instruction"`
	InstructionCap     float64 `toml:"instruction_cap"`
	CallsignBonus      float64 `toml:"callsign_bonus"`
	MaxConfidence      float64 `toml:"max_confidence"`
	HighTier           float64 `toml:"high_tier"`
	MediumTier         float64 `toml:"medium_tier"`
	OperationalMinimum float64 `toml:"operational_minimum"`
	ConflictConfidence float64 `toml:"conflict_confidence"`
	HistoryConflictCap float64 `toml:"history_conflict_cap"`
}

// DefaultPolicy returns the governed policy constants
func DefaultPolicy() Policy {
	return Policy{
		BaseScore:          0.45,
		PerInstruction:     0.12,
		InstructionCap:     0.92,
		CallsignBonus:      0.05,
		MaxConfidence:      0.99,
		HighTier:           0.85,
		MediumTier:         0.60,
		OperationalMinimum: 0.60,
		ConflictConfidence: 0.3,
		HistoryConflictCap: 0.4,
	}
}

// Score computes the confidence of a non-conflicting parse
func (p Policy) Score(instructionCount int, hasCallsign bool) float64 {
	if instructionCount <= 0 {
		return 0
	}
	score := math.Min(p.BaseScore+p.PerInstruction*float64(instructionCount), p.InstructionCap)
	if hasCallsign {
		score += p.CallsignBonus
	}
	return round3(math.Min(score, p.MaxConfidence))
}

// Tier maps a confidence to its band. Thresholds are inclusive.
func (p Policy) Tier(confidence float64) intent.Tier {
	switch {
	case confidence >= p.HighTier:
		return intent.TierHigh
	case confidence >= p.MediumTier:
		return intent.TierMedium
	default:
		return intent.TierLow
	}
}

// Apply computes the tier and downgrades an ok status whose confidence is
// below the operational minimum. The tier always reflects the confidence,
// never the downgraded status.
func (p Policy) Apply(status intent.Status, confidence float64) (intent.Status, intent.Tier, []intent.Note) {
	tier := p.Tier(confidence)
	notes := []intent.Note{intent.TierNote(tier)}

	if status == intent.StatusOK && confidence < p.OperationalMinimum {
		status = intent.StatusAmbiguous
		notes = append(notes, intent.Simple(intent.NoteLowConfidenceThresholdBreach))
	}

	return status, tier, notes
}
