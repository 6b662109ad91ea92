package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yegors/atlas/internal/intent"
)

// rewrite is one ordered phrase substitution applied on word boundaries
type rewrite struct {
	pattern     *regexp.Regexp
	replacement string
}

func newRewrites(pairs [][2]string) []rewrite {
	out := make([]rewrite, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, rewrite{
			pattern:     regexp.MustCompile(`\b` + regexp.QuoteMeta(p[0]) + `\b`),
			replacement: p[1],
		})
	}
	return out
}

// Known transcription noise and phrase variants, in application order
var phraseRewrites = newRewrites([][2]string{
	{"HEDING", "HEADING"},
	{"DECEND", "DESCEND"},
	{"LAMB", "LAM"},
	{"CAP TEA", "CPT"},
	{"PROCEED TOO", "PROCEED TO"},
	{"PROCEED VIA", "PROCEED TO"},
	{"CLEARED DIRECT TO", "CLEARED DIRECT"},
	{"CONTACT TOWER ON", "CONTACT"},
	{"CONTACT APPROACH ON", "CONTACT"},
	{"DESCEND TO LEVEL", "DESCEND LEVEL"},
	{"CLIMB TO LEVEL", "CLIMB LEVEL"},
	{"CLIMB AND MAINTAIN", "CLIMB"},
	{"DESCEND AND MAINTAIN", "DESCEND"},
	{"ONE TWO ONE DECIMAL FIVE", "121.5"},
	{"ONE TWENTY DECIMAL TWO FIVE", "120.25"},
	{"TWO SEVEN RIGHT", "27R"},
	{"TWO SEVEN LEFT", "27L"},
	{"THREE FOUR FIVE", "345"},
	{"ONE EIGHT ZERO", "180"},
	{"ONE NINER ZERO", "190"},
	{"ONE FIVE ZERO", "150"},
	{"FOUR SEVEN TWO ONE", "4721"},
	{"SEVEN THOUSAND", "7000"},
	{"FOURTEEN HUNDRED", "1400"},
	{"ONE THOUSAND EIGHT HUNDRED", "1800"},
})

// Spelled-out airline names to ICAO designators
var airlineAliases = newRewrites([][2]string{
	{"AIR FRANCE", "AFR"},
	{"AIRFRANCE", "AFR"},
	{"SPEEDBIRD", "BAW"},
	{"SPEED BIRD", "BAW"},
	{"AMERICAN", "AAL"},
	{"DELTA", "DAL"},
	{"UNITED", "UAL"},
})

// spokenDigits maps radiotelephony digit words to digits
var spokenDigits = map[string]string{
	"ZERO":  "0",
	"OH":    "0",
	"O":     "0",
	"ONE":   "1",
	"TWO":   "2",
	"THREE": "3",
	"FOUR":  "4",
	"FIVE":  "5",
	"SIX":   "6",
	"SEVEN": "7",
	"EIGHT": "8",
	"NINE":  "9",
	"NINER": "9",
}

// Three-letter phraseology words that are never airline designators
var callsignStopWords = map[string]bool{
	"AND": true, "THE": true, "FOR": true, "HDG": true, "RWY": true,
	"ALT": true, "SPD": true, "VIA": true, "OFF": true, "OUT": true,
	"TWO": true, "ONE": true, "SIX": true, "TEN": true,
}

const spokenDigitAlternation = `ZERO|OH|O|ONE|TWO|THREE|FOUR|FIVE|SIX|SEVEN|EIGHT|NINE|NINER`

var (
	noisePattern      = regexp.MustCompile(`[^A-Z0-9.\s]`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	compactCallsignPattern = regexp.MustCompile(`\b([A-Z]{3})\s?(\d{1,4})\b`)
	spokenCallsignPattern  = regexp.MustCompile(
		`\b([A-Z]{3})((?:\s+(?:` + spokenDigitAlternation + `)){2,4})\b`)
)

// Normalize uppercases the text, collapses punctuation and whitespace and
// rewrites known phrase variants and airline names to canonical tokens.
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(text))
	cleaned = noisePattern.ReplaceAllString(cleaned, " ")
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")

	// A rewrite can expose the source phrase of an earlier one, so keep
	// applying the tables until nothing changes. Every rewrite shortens the
	// text or yields a token no rule matches, so the loop terminates.
	for {
		next := applyRewrites(cleaned, phraseRewrites)
		next = applyRewrites(next, airlineAliases)
		if next == cleaned {
			break
		}
		cleaned = next
	}

	return strings.TrimSpace(cleaned)
}

func applyRewrites(text string, rewrites []rewrite) string {
	for _, rw := range rewrites {
		text = rw.pattern.ReplaceAllLiteralString(text, rw.replacement)
	}
	return text
}

// RecoverCallsign extracts a callsign from normalized text. It first looks
// for a designator followed by 1-4 digits ("AFR 345"), then for a designator
// followed by 2-4 spoken digit words ("AFR ZERO FOUR FIVE" -> AFR45).
// It returns the empty callsign when neither form is present.
func RecoverCallsign(normalized string) intent.Callsign {
	for _, m := range compactCallsignPattern.FindAllStringSubmatch(normalized, -1) {
		if callsignStopWords[m[1]] {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if cs, err := intent.NewCallsign(m[1], n); err == nil {
			return cs
		}
	}

	for _, m := range spokenCallsignPattern.FindAllStringSubmatch(normalized, -1) {
		if callsignStopWords[m[1]] || isSpokenDigit(m[1]) {
			continue
		}
		var digits strings.Builder
		for _, word := range strings.Fields(m[2]) {
			digits.WriteString(spokenDigits[word])
		}
		n, err := strconv.Atoi(digits.String())
		if err != nil {
			continue
		}
		if cs, err := intent.NewCallsign(m[1], n); err == nil {
			return cs
		}
	}

	return ""
}

func isSpokenDigit(word string) bool {
	_, ok := spokenDigits[word]
	return ok
}
