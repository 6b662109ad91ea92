package parser

import (
	"strings"
	"time"

	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/internal/tracelog"
	"github.com/yegors/atlas/pkg/logger"
)

// DefaultSpeaker is used when a parse request names no speaker
const DefaultSpeaker = "ATC"

// Config represents the pipeline configuration
type Config struct {
	EnableHybrid bool
	Policy       Policy
	Scorer       Scorer        // nil selects HeuristicScorer
	Sink         tracelog.Sink // optional append-only record sink
}

// DefaultConfig returns hybrid disambiguation enabled with the default policy
func DefaultConfig() Config {
	return Config{
		EnableHybrid: true,
		Policy:       DefaultPolicy(),
	}
}

// Options are per-utterance parse options
type Options struct {
	Speaker       string
	UtteranceID   string
	DisableHybrid bool
	IncludeTrace  bool
}

// Pipeline turns one utterance into one ParseResult. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	extractor     *Extractor
	disambiguator *Disambiguator
	policy        Policy
	hybrid        bool
	sink          tracelog.Sink
	logger        *logger.Logger
}

// New creates a new parse pipeline
func New(config Config, logger *logger.Logger) *Pipeline {
	return &Pipeline{
		extractor:     NewExtractor(),
		disambiguator: NewDisambiguator(config.Scorer),
		policy:        config.Policy,
		hybrid:        config.EnableHybrid,
		sink:          config.Sink,
		logger:        logger.Named("parser"),
	}
}

// Policy returns the confidence policy in use
func (p *Pipeline) Policy() Policy {
	return p.policy
}

// Analysis is a parse that has not been recorded to the sink yet
type Analysis struct {
	Result     *intent.ParseResult
	Normalized string
	trace      []intent.TraceEvent
}

// Parse runs normalization, segmentation, extraction, disambiguation,
// conflict validation and the confidence policy, then appends the result to
// the sink. It never fails: text with no recognizable instruction yields
// status unknown.
func (p *Pipeline) Parse(text string, opts Options) *intent.ParseResult {
	analysis := p.Analyze(text, opts)
	p.Record(text, analysis)
	return analysis.Result
}

// Analyze parses like Parse without touching the sink. Callers that amend
// the result afterwards record it themselves with Record.
func (p *Pipeline) Analyze(text string, opts Options) *Analysis {
	speaker := opts.Speaker
	if speaker == "" {
		speaker = DefaultSpeaker
	}

	wantTrace := opts.IncludeTrace || p.sink != nil
	tr := newTracer(wantTrace)

	result := intent.NewParseResult(opts.UtteranceID, speaker)
	tr.add(intent.TraceEvent{
		Stage:         "ingest",
		UtteranceID:   opts.UtteranceID,
		Speaker:       speaker,
		RawTextLength: len(text),
	})

	normalized := Normalize(text)
	result.Callsign = RecoverCallsign(normalized)
	correction := strings.Contains(normalized, "CORRECTION")
	if correction {
		result.AddNote(intent.Simple(intent.NoteAmendmentDetected))
	}

	segments := Segment(normalized)
	tr.add(intent.TraceEvent{
		Stage:          "normalize",
		NormalizedText: normalized,
		Callsign:       result.Callsign,
		CorrectionMode: correction,
		SegmentCount:   len(segments),
	})

	bySegment := make([][]intent.Instruction, len(segments))
	altitudeContext := false
	for i, segment := range segments {
		bySegment[i] = p.extractor.Extract(segment, correction)
		for _, instr := range bySegment[i] {
			if instr.Type == intent.TypeAltitude && (instr.Action == "climb" || instr.Action == "descend") {
				altitudeContext = true
			}
		}
		tr.add(intent.TraceEvent{
			Stage:       "segment",
			Index:       i + 1,
			Segment:     segment,
			ParsedCount: len(bySegment[i]),
			ParsedTypes: typeNames(bySegment[i]),
		})
	}

	hybrid := p.hybrid && !opts.DisableHybrid
	for i, segment := range segments {
		items := bySegment[i]
		if hybrid {
			var notes []intent.Note
			items, notes = p.disambiguator.Resolve(segment, items, correction, altitudeContext)
			result.Notes = append(result.Notes, notes...)
		}
		result.Instructions = append(result.Instructions, items...)
	}

	p.finalize(result)

	tr.add(intent.TraceEvent{
		Stage:          "finalize",
		Status:         result.Status,
		Confidence:     result.Confidence,
		Tier:           result.Tier,
		InstructionCnt: len(result.Instructions),
		NoteCount:      len(result.Notes),
	})

	p.logger.Debug("Parsed utterance",
		logger.String("utterance_id", opts.UtteranceID),
		logger.String("normalized", normalized),
		logger.String("callsign", result.Callsign.String()),
		logger.String("status", string(result.Status)),
		logger.Float64("confidence", result.Confidence),
		logger.Int("instructions", len(result.Instructions)))

	if opts.IncludeTrace {
		result.Trace = tr.events
	}
	return &Analysis{Result: result, Normalized: normalized, trace: tr.events}
}

// Record appends a snapshot of the analysis result, as it is now, to the
// sink. Sink errors are logged and never returned.
func (p *Pipeline) Record(text string, analysis *Analysis) {
	if p.sink == nil {
		return
	}
	record := analysis.Result.Clone()
	record.Trace = analysis.trace
	if err := p.sink.Append(&tracelog.Record{Timestamp: time.Now().UTC(), Text: text, Result: record}); err != nil {
		p.logger.Error("Failed to append trace record",
			logger.String("utterance_id", record.UtteranceID),
			logger.Error(err))
	}
}

// finalize sets status, confidence and tier from the instruction list
func (p *Pipeline) finalize(result *intent.ParseResult) {
	switch {
	case len(result.Instructions) == 0:
		result.Status = intent.StatusUnknown
		result.Confidence = 0
		result.Tier = p.policy.Tier(0)
		result.AddNote(intent.TierNote(result.Tier))

	case DetectConflict(result.Instructions):
		result.Status = intent.StatusConflict
		result.Confidence = p.policy.ConflictConfidence
		result.Tier = p.policy.Tier(result.Confidence)
		result.AddNote(intent.TierNote(result.Tier))
		result.AddNote(intent.Simple(intent.NoteSlotConflictDetected))

	default:
		result.Confidence = p.policy.Score(len(result.Instructions), !result.Callsign.IsZero())
		var notes []intent.Note
		result.Status, result.Tier, notes = p.policy.Apply(intent.StatusOK, result.Confidence)
		result.Notes = append(result.Notes, notes...)
	}
}

func typeNames(items []intent.Instruction) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Type.String()
	}
	return out
}

// tracer collects stage events with elapsed time since parse start
type tracer struct {
	enabled bool
	start   time.Time
	events  []intent.TraceEvent
}

func newTracer(enabled bool) *tracer {
	return &tracer{enabled: enabled, start: time.Now()}
}

func (t *tracer) add(event intent.TraceEvent) {
	if !t.enabled {
		return
	}
	event.ElapsedMS = round3(float64(time.Since(t.start).Microseconds()) / 1000)
	t.events = append(t.events, event)
}
