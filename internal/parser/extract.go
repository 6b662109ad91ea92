package parser

import (
	"github.com/yegors/atlas/internal/intent"
)

// Extractor applies the slot pattern table to a single segment
type Extractor struct {
	patterns []slotPattern
}

// NewExtractor creates an extractor over the built-in pattern table
func NewExtractor() *Extractor {
	return &Extractor{patterns: slotPatterns}
}

// Extract returns every instruction the segment yields, in pattern order.
// A segment-level "UNTIL X" is attached to each instruction without a
// condition of its own, and correction marks every instruction as replace.
func (e *Extractor) Extract(segment string, correction bool) []intent.Instruction {
	condition := ""
	if m := untilPattern.FindStringSubmatch(segment); m != nil {
		condition = "until " + m[1]
	}

	update := intent.UpdateNew
	if correction {
		update = intent.UpdateReplace
	}

	var found []intent.Instruction
	for _, p := range e.patterns {
		m := p.re.FindStringSubmatch(segment)
		if m == nil {
			continue
		}
		instr, ok := p.build(m)
		if !ok {
			continue
		}
		if instr.Condition == "" {
			instr.Condition = condition
		}
		instr.Update = update
		instr.Provenance = &intent.Provenance{
			Rule:    p.rule,
			Pattern: p.re.String(),
			Segment: segment,
		}
		found = append(found, instr)
	}
	return found
}
