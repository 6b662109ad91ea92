package parser

import (
	"math"
	"regexp"
	"strconv"

	"github.com/yegors/atlas/internal/intent"
)

// Resolution modes recorded in provenance
const (
	ModeRules    = "rules"
	ModeMLAssist = "ml_assist"
)

const disambiguationRule = "hybrid_disambiguation"

var (
	maintainGenericPattern = regexp.MustCompile(`\bMAINTAIN\s+(\d{2,3})\b`)
	speedCuePattern        = regexp.MustCompile(`\b(SPEED|KNOT|KNOTS|KT)\b`)
	altitudeCuePattern     = regexp.MustCompile(`\b(FLIGHT LEVEL|LEVEL|FL\d{2,3})\b`)
)

// Scorer classifies a bare "MAINTAIN <number>" value as speed or altitude
// when no lexical cue is available. It returns the chosen type and its score.
type Scorer interface {
	Score(value int) (intent.InstructionType, float64)
}

// HeuristicScorer is the fixed numeric prior used as the ml-assist fallback
type HeuristicScorer struct{}

// Score implements Scorer. Ties favor speed.
func (HeuristicScorer) Score(value int) (intent.InstructionType, float64) {
	speed, altitude := 0.45, 0.45

	switch {
	case value <= 260:
		speed += 0.35
	case value >= 290:
		altitude += 0.35
	default:
		speed += 0.15
		altitude += 0.15
	}

	if value <= 220 {
		speed += 0.10
	}
	if value >= 320 {
		altitude += 0.10
	}

	if speed >= altitude {
		return intent.TypeSpeed, round3(speed)
	}
	return intent.TypeAltitude, round3(altitude)
}

// Disambiguator resolves bare "MAINTAIN <number>" segments into exactly one
// speed or altitude instruction
type Disambiguator struct {
	scorer Scorer
}

// NewDisambiguator creates a disambiguator. A nil scorer selects the
// HeuristicScorer.
func NewDisambiguator(scorer Scorer) *Disambiguator {
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	return &Disambiguator{scorer: scorer}
}

// Resolve returns the segment's instructions, replacing the ambiguous
// candidate when the segment is a bare MAINTAIN. altitudeContext reports
// whether the utterance holds an explicit climb/descend elsewhere.
func (d *Disambiguator) Resolve(segment string, items []intent.Instruction, correction, altitudeContext bool) ([]intent.Instruction, []intent.Note) {
	m := maintainGenericPattern.FindStringSubmatch(segment)
	if m == nil || !isAmbiguousCandidate(items) {
		return items, nil
	}

	value, err := strconv.Atoi(m[1])
	if err != nil {
		return items, nil
	}
	notes := []intent.Note{intent.Simple(intent.NoteHybridDisambiguationApplied)}

	var chosen intent.InstructionType
	mode := ModeRules
	switch {
	case speedCuePattern.MatchString(segment):
		chosen = intent.TypeSpeed
	case altitudeCuePattern.MatchString(segment):
		chosen = intent.TypeAltitude
	case altitudeContext:
		chosen = intent.TypeAltitude
		notes = append(notes, intent.ContextBias(intent.TypeAltitude))
	default:
		var score float64
		chosen, score = d.scorer.Score(value)
		mode = ModeMLAssist
		notes = append(notes, intent.MLAssist(chosen, score))
	}

	resolved := intent.Instruction{
		Type:   chosen,
		Action: "maintain",
		Value:  intent.IntValue(value),
		Unit:   intent.UnitFlightLevel,
		Update: intent.UpdateNew,
		Provenance: &intent.Provenance{
			Rule:           disambiguationRule,
			Pattern:        maintainGenericPattern.String(),
			Segment:        segment,
			ResolutionMode: mode,
			SelectedType:   chosen.String(),
			CandidateTypes: "speed|altitude",
		},
	}
	if chosen == intent.TypeSpeed {
		resolved.Unit = intent.UnitKnots
	}
	if correction {
		resolved.Update = intent.UpdateReplace
	}
	if len(items) == 1 {
		resolved.Condition = items[0].Condition
	} else if u := untilPattern.FindStringSubmatch(segment); u != nil {
		resolved.Condition = "until " + u[1]
	}

	return []intent.Instruction{resolved}, notes
}

// isAmbiguousCandidate is true when nothing was extracted or the only
// candidate is a plain altitude-pattern MAINTAIN
func isAmbiguousCandidate(items []intent.Instruction) bool {
	if len(items) == 0 {
		return true
	}
	if len(items) != 1 {
		return false
	}
	only := items[0]
	return only.Type == intent.TypeAltitude &&
		only.Action == "maintain" &&
		only.Provenance != nil && only.Provenance.Rule == "altitude"
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
