package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/yegors/atlas/internal/intent"
	"github.com/yegors/atlas/internal/readback"
	"github.com/yegors/atlas/internal/sequence"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func renderResult(w io.Writer, result *intent.ParseResult) {
	fmt.Fprintf(w, "callsign: %s  status: %s  confidence: %.2f (%s)\n",
		orDash(result.Callsign.String()), result.Status, result.Confidence, result.Tier)
	if len(result.Notes) > 0 {
		fmt.Fprintf(w, "notes: %s\n", strings.Join(result.NoteStrings(), ", "))
	}
	if len(result.Instructions) == 0 {
		return
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "Type", "Action", "Value", "Unit", "Condition", "Update"})
	for i, instr := range result.Instructions {
		tw.AppendRow(table.Row{i + 1, instr.Type, instr.Action, instr.Value, orDash(instr.Unit), orDash(instr.Condition), instr.Update})
	}
	tw.Render()
}

func renderSequence(w io.Writer, seq *sequence.Sequence) {
	tw := newTable(w)
	tw.SetTitle("Turns")
	tw.AppendHeader(table.Row{"Turn", "Callsign", "Status", "Conf", "Instructions", "Notes"})
	for _, r := range seq.Turns {
		tw.AppendRow(table.Row{
			r.UtteranceID,
			orDash(r.Callsign.String()),
			r.Status,
			fmt.Sprintf("%.2f", r.Confidence),
			orDash(instructionSummary(r.Instructions)),
			orDash(strings.Join(r.NoteStrings(), ", ")),
		})
	}
	tw.Render()

	active := newTable(w)
	active.SetTitle("Active")
	active.AppendHeader(table.Row{"Callsign", "Type", "Action", "Value", "Unit", "Condition", "Set By"})
	for _, cs := range sortedCallsigns(seq.State.Active) {
		for _, slot := range seq.State.Active[cs] {
			active.AppendRow(table.Row{cs, slot.Type, slot.Action, slot.Value, orDash(slot.Unit), orDash(slot.Condition), slot.UtteranceID})
		}
	}
	active.Render()
}

func renderReadback(w io.Writer, result *readback.Result) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Check", "Expected", "Readback", "Mismatch"})
	tw.AppendRow(table.Row{"callsign", orDash(result.CallsignExpected.String()), orDash(result.CallsignReadback.String()), result.CallsignMismatch})
	for _, slot := range result.MissingInReadback {
		tw.AppendRow(table.Row{slot.Type, slotSummary(slot), "-", true})
	}
	for _, slot := range result.UnexpectedInReadback {
		tw.AppendRow(table.Row{slot.Type, "-", slotSummary(slot), true})
	}
	tw.AppendFooter(table.Row{"", "", "mismatch", result.MismatchDetected})
	tw.Render()
}

func renderBatch(w io.Writer, results []*intent.ParseResult) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Callsign", "Status", "Conf", "Tier", "Instructions"})
	counts := map[intent.Status]int{}
	for _, r := range results {
		counts[r.Status]++
		tw.AppendRow(table.Row{r.UtteranceID, orDash(r.Callsign.String()), r.Status, fmt.Sprintf("%.2f", r.Confidence), r.Tier, orDash(instructionSummary(r.Instructions))})
	}
	tw.AppendFooter(table.Row{
		len(results), "",
		fmt.Sprintf("ok %d / ambiguous %d / conflict %d / unknown %d",
			counts[intent.StatusOK], counts[intent.StatusAmbiguous], counts[intent.StatusConflict], counts[intent.StatusUnknown]),
		"", "", "",
	})
	tw.Render()
}

func instructionSummary(instructions []intent.Instruction) string {
	parts := make([]string, len(instructions))
	for i, instr := range instructions {
		parts[i] = strings.TrimSpace(fmt.Sprintf("%s %s %s", instr.Action, instr.Value, instr.Unit))
	}
	return strings.Join(parts, "; ")
}

func slotSummary(slot readback.Slot) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s %s", slot.Action, slot.Value, slot.Unit))
}

func sortedCallsigns(active map[intent.Callsign][]sequence.ActiveSlot) []intent.Callsign {
	out := make([]intent.Callsign, 0, len(active))
	for cs := range active {
		out = append(out, cs)
	}
	slices.Sort(out)
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
