package sequence

import (
	"github.com/yegors/atlas/internal/intent"
)

// ChangeType tells how a turn affected one active slot
type ChangeType string

// Slot change kinds
const (
	ChangeAdded   ChangeType = "added"
	ChangeUpdated ChangeType = "updated"
	ChangeRemoved ChangeType = "removed"
)

// SlotChange represents a change in one active slot between two turns
type SlotChange struct {
	Change   ChangeType             `json:"change"`
	Slot     intent.InstructionType `json:"slot"`
	Previous *ActiveSlot            `json:"previous,omitempty"`
	Current  *ActiveSlot            `json:"current,omitempty"`
}

// detectChanges compares the active map before and after a turn. Changes
// are returned in instruction type order.
func detectChanges(previous, current map[intent.InstructionType]*ActiveSlot) []SlotChange {
	changes := []SlotChange{}

	for _, t := range intent.InstructionTypes() {
		prev, hadPrev := previous[t]
		cur, hasCur := current[t]

		switch {
		case !hadPrev && hasCur:
			c := *cur
			changes = append(changes, SlotChange{Change: ChangeAdded, Slot: t, Current: &c})
		case hadPrev && !hasCur:
			p := *prev
			changes = append(changes, SlotChange{Change: ChangeRemoved, Slot: t, Previous: &p})
		case hadPrev && hasCur && hasAnyChanges(prev, cur):
			p, c := *prev, *cur
			changes = append(changes, SlotChange{Change: ChangeUpdated, Slot: t, Previous: &p, Current: &c})
		}
	}

	return changes
}

// hasAnyChanges is true if any field of the slot differs, including the
// utterance that last set it
func hasAnyChanges(previous, current *ActiveSlot) bool {
	return *previous != *current
}
