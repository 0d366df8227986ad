package table

import (
	"xdao.co/facetrouter/model"
)

// SlotSize is the number of selectors packed into one slot.
const SlotSize = 8

type slot [SlotSize]model.Selector

// entry is the per-selector metadata. position is authoritative: it always
// names the slot/offset currently holding the selector.
type entry struct {
	facet    model.Address
	position uint32
}

// Selectors is the packed selector table.
type Selectors struct {
	slots   []slot
	entries map[model.Selector]entry
	count   uint32
}

// NewSelectors returns an empty table.
func NewSelectors() *Selectors {
	return &Selectors{entries: make(map[model.Selector]entry)}
}

// Count returns the number of occupied positions.
func (t *Selectors) Count() int { return int(t.count) }

// SlotCount returns the number of allocated slots.
func (t *Selectors) SlotCount() int { return len(t.slots) }

// Insert appends sel at position Count() and records facet as its owner.
func (t *Selectors) Insert(sel model.Selector, facet model.Address) (int, error) {
	if _, ok := t.entries[sel]; ok {
		return 0, model.NewError(model.CodeDuplicateSelector, "selector already present in table").WithSelector(sel)
	}
	pos := t.count
	if int(pos/SlotSize) == len(t.slots) {
		t.slots = append(t.slots, slot{})
	}
	t.slots[pos/SlotSize][pos%SlotSize] = sel
	t.entries[sel] = entry{facet: facet, position: pos}
	t.count++
	return int(pos), nil
}

// RemoveAt destroys the selector at position and returns it with its facet.
//
// The selector at the last occupied position is moved into the vacated
// position and its entry is updated to point there; the last slot is
// released once it holds nothing.
func (t *Selectors) RemoveAt(position int) (model.Selector, model.Address, error) {
	if position < 0 || position >= int(t.count) {
		return model.Selector{}, model.Address{}, model.NewError(model.CodeSelectorNotFound, "position %d out of range [0,%d)", position, t.count)
	}
	pos := uint32(position)
	removed := t.slots[pos/SlotSize][pos%SlotSize]
	owner := t.entries[removed].facet

	last := t.count - 1
	if pos != last {
		moved := t.slots[last/SlotSize][last%SlotSize]
		t.slots[pos/SlotSize][pos%SlotSize] = moved
		e := t.entries[moved]
		e.position = pos
		t.entries[moved] = e
	}
	t.slots[last/SlotSize][last%SlotSize] = model.Selector{}
	delete(t.entries, removed)
	t.count = last
	if last%SlotSize == 0 {
		t.slots = t.slots[:last/SlotSize]
	}
	return removed, owner, nil
}

// Lookup returns the facet owning sel.
func (t *Selectors) Lookup(sel model.Selector) (model.Address, bool) {
	e, ok := t.entries[sel]
	return e.facet, ok
}

// Position returns the current position of sel.
func (t *Selectors) Position(sel model.Selector) (int, bool) {
	e, ok := t.entries[sel]
	return int(e.position), ok
}

// At returns the selector stored at position.
func (t *Selectors) At(position int) (model.Selector, bool) {
	if position < 0 || position >= int(t.count) {
		return model.Selector{}, false
	}
	return t.slots[position/SlotSize][position%SlotSize], true
}

// Slot returns the occupied selectors of slot i, in offset order.
func (t *Selectors) Slot(i int) []model.Selector {
	if i < 0 || i >= len(t.slots) {
		return nil
	}
	n := SlotSize
	if i == len(t.slots)-1 && t.count%SlotSize != 0 {
		n = int(t.count % SlotSize)
	}
	out := make([]model.Selector, n)
	copy(out, t.slots[i][:n])
	return out
}

// setFacet changes the owner of sel without moving it.
func (t *Selectors) setFacet(sel model.Selector, facet model.Address) bool {
	e, ok := t.entries[sel]
	if !ok {
		return false
	}
	e.facet = facet
	t.entries[sel] = e
	return true
}

func (t *Selectors) clone() *Selectors {
	out := &Selectors{
		slots:   append([]slot(nil), t.slots...),
		entries: make(map[model.Selector]entry, len(t.entries)),
		count:   t.count,
	}
	for k, v := range t.entries {
		out.entries[k] = v
	}
	return out
}
