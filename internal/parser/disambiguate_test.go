package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/atlas/internal/intent"
)

func resolveSegment(t *testing.T, d *Disambiguator, segment string, altitudeContext bool) ([]intent.Instruction, []string) {
	t.Helper()
	items := NewExtractor().Extract(segment, false)
	out, notes := d.Resolve(segment, items, false, altitudeContext)
	texts := make([]string, len(notes))
	for i, n := range notes {
		texts[i] = n.String()
	}
	return out, texts
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name            string
		segment         string
		altitudeContext bool
		wantType        intent.InstructionType
		wantUnit        string
		wantMode        string
		wantNotes       []string
	}{
		{
			name:      "speed cue",
			segment:   "MAINTAIN 250 KNOTS",
			wantType:  intent.TypeSpeed,
			wantUnit:  "kt",
			wantMode:  ModeRules,
			wantNotes: []string{"hybrid_disambiguation_applied"},
		},
		{
			name:      "level cue",
			segment:   "REACH LEVEL MAINTAIN 190",
			wantType:  intent.TypeAltitude,
			wantUnit:  "FL",
			wantMode:  ModeRules,
			wantNotes: []string{"hybrid_disambiguation_applied"},
		},
		{
			name:            "altitude context",
			segment:         "MAINTAIN 190",
			altitudeContext: true,
			wantType:        intent.TypeAltitude,
			wantUnit:        "FL",
			wantMode:        ModeRules,
			wantNotes:       []string{"hybrid_disambiguation_applied", "hybrid_context_bias:altitude"},
		},
		{
			name:      "low value favors speed",
			segment:   "MAINTAIN 200",
			wantType:  intent.TypeSpeed,
			wantUnit:  "kt",
			wantMode:  ModeMLAssist,
			wantNotes: []string{"hybrid_disambiguation_applied", "hybrid_ml_assist:speed:0.9"},
		},
		{
			name:      "mid value favors speed",
			segment:   "MAINTAIN 240",
			wantType:  intent.TypeSpeed,
			wantUnit:  "kt",
			wantMode:  ModeMLAssist,
			wantNotes: []string{"hybrid_disambiguation_applied", "hybrid_ml_assist:speed:0.8"},
		},
		{
			name:      "tie goes to speed",
			segment:   "MAINTAIN 270",
			wantType:  intent.TypeSpeed,
			wantUnit:  "kt",
			wantMode:  ModeMLAssist,
			wantNotes: []string{"hybrid_disambiguation_applied", "hybrid_ml_assist:speed:0.6"},
		},
		{
			name:      "high value favors altitude",
			segment:   "MAINTAIN 350",
			wantType:  intent.TypeAltitude,
			wantUnit:  "FL",
			wantMode:  ModeMLAssist,
			wantNotes: []string{"hybrid_disambiguation_applied", "hybrid_ml_assist:altitude:0.9"},
		},
	}

	d := NewDisambiguator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, notes := resolveSegment(t, d, tt.segment, tt.altitudeContext)
			require.Len(t, out, 1)
			assert.Equal(t, tt.wantType, out[0].Type)
			assert.Equal(t, "maintain", out[0].Action)
			assert.Equal(t, tt.wantUnit, out[0].Unit)
			require.NotNil(t, out[0].Provenance)
			assert.Equal(t, tt.wantMode, out[0].Provenance.ResolutionMode)
			assert.Equal(t, tt.wantType.String(), out[0].Provenance.SelectedType)
			assert.Equal(t, "speed|altitude", out[0].Provenance.CandidateTypes)
			assert.Equal(t, tt.wantNotes, notes)
		})
	}
}

func TestResolveLeavesUnambiguousSegments(t *testing.T) {
	d := NewDisambiguator(nil)
	for _, segment := range []string{
		"MAINTAIN SPEED 250",
		"DESCEND FLIGHT LEVEL 180",
		"MAINTAIN 190 TURN LEFT HEADING 270",
		"HELLO",
	} {
		items := NewExtractor().Extract(segment, false)
		out, notes := d.Resolve(segment, items, false, false)
		assert.Equal(t, items, out, segment)
		assert.Empty(t, notes, segment)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	d := NewDisambiguator(nil)
	segment := "MAINTAIN 240"
	items := NewExtractor().Extract(segment, false)

	first, _ := d.Resolve(segment, items, false, false)
	second, notes := d.Resolve(segment, first, false, false)
	assert.Equal(t, first, second)
	assert.Empty(t, notes)
}

func TestResolveKeepsConditionAndCorrection(t *testing.T) {
	d := NewDisambiguator(nil)
	segment := "CORRECTION MAINTAIN 190 UNTIL LAM"
	items := NewExtractor().Extract(segment, true)

	out, _ := d.Resolve(segment, items, true, true)
	require.Len(t, out, 1)
	assert.Equal(t, "until LAM", out[0].Condition)
	assert.Equal(t, intent.UpdateReplace, out[0].Update)
}

type fixedScorer struct{}

func (fixedScorer) Score(int) (intent.InstructionType, float64) { return intent.TypeAltitude, 0.7 }

func TestResolveUsesInjectedScorer(t *testing.T) {
	out, notes := resolveSegment(t, NewDisambiguator(fixedScorer{}), "MAINTAIN 200", false)
	require.Len(t, out, 1)
	assert.Equal(t, intent.TypeAltitude, out[0].Type)
	assert.Contains(t, notes, "hybrid_ml_assist:altitude:0.7")
}

func TestHeuristicScorer(t *testing.T) {
	tests := []struct {
		value     int
		wantType  intent.InstructionType
		wantScore float64
	}{
		{180, intent.TypeSpeed, 0.9},
		{250, intent.TypeSpeed, 0.8},
		{280, intent.TypeSpeed, 0.6},
		{300, intent.TypeAltitude, 0.8},
		{330, intent.TypeAltitude, 0.9},
	}

	for _, tt := range tests {
		typ, score := HeuristicScorer{}.Score(tt.value)
		assert.Equal(t, tt.wantType, typ, tt.value)
		assert.InDelta(t, tt.wantScore, score, 1e-9, tt.value)
	}
}
