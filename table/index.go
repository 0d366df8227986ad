package table

import (
	"fmt"

	"xdao.co/facetrouter/model"
)

// Index owns both table layers and keeps them consistent.
type Index struct {
	sel *Selectors
	fac *Facets
}

// New returns an empty index.
func New() *Index {
	s := NewSelectors()
	return &Index{sel: s, fac: NewFacets(s)}
}

// Selectors exposes the packed layer for inspection.
func (ix *Index) Selectors() *Selectors { return ix.sel }

// Facets exposes the reverse index for inspection.
func (ix *Index) Facets() *Facets { return ix.fac }

// Add routes sel to facet. sel must not already be routed.
func (ix *Index) Add(facet model.Address, sel model.Selector) error {
	if owner, ok := ix.sel.Lookup(sel); ok {
		return model.NewError(model.CodeSelectorAlreadyExists, "selector already routed").
			WithSelector(sel).WithFacet(owner)
	}
	if _, err := ix.sel.Insert(sel, facet); err != nil {
		return err
	}
	ix.fac.Attach(facet, sel)
	return nil
}

// Replace reroutes an existing sel to facet without moving it in the packed
// layer.
func (ix *Index) Replace(facet model.Address, sel model.Selector) error {
	owner, ok := ix.sel.Lookup(sel)
	if !ok {
		return model.NewError(model.CodeSelectorNotFound, "selector is not routed").WithSelector(sel)
	}
	if owner == facet {
		return model.NewError(model.CodeNoOpReplace, "selector already routed to facet").
			WithSelector(sel).WithFacet(facet)
	}
	ix.sel.setFacet(sel, facet)
	ix.fac.Detach(owner, sel)
	ix.fac.Attach(facet, sel)
	return nil
}

// Remove unroutes sel and returns the facet that owned it.
func (ix *Index) Remove(sel model.Selector) (model.Address, error) {
	pos, ok := ix.sel.Position(sel)
	if !ok {
		return model.Address{}, model.NewError(model.CodeSelectorNotFound, "selector is not routed").WithSelector(sel)
	}
	removed, owner, err := ix.sel.RemoveAt(pos)
	if err != nil {
		return model.Address{}, err
	}
	if removed != sel {
		return model.Address{}, model.NewError(model.CodeInternal, "position %d held %s, expected %s", pos, removed, sel)
	}
	ix.fac.Detach(owner, sel)
	return owner, nil
}

// FacetOf returns the facet routed for sel.
func (ix *Index) FacetOf(sel model.Selector) (model.Address, bool) { return ix.sel.Lookup(sel) }

// SelectorsOf returns facet's selectors, or nil when facet is unknown.
func (ix *Index) SelectorsOf(facet model.Address) []model.Selector { return ix.fac.SelectorsOf(facet) }

// Addresses returns the ordered facet address list.
func (ix *Index) Addresses() []model.Address { return ix.fac.Addresses() }

// All returns every facet with its selectors.
func (ix *Index) All() []model.Facet { return ix.fac.All() }

// Len returns the number of routed selectors.
func (ix *Index) Len() int { return ix.sel.Count() }

// Clone returns a deep copy suitable as a rollback snapshot.
func (ix *Index) Clone() *Index {
	s := ix.sel.clone()
	return &Index{sel: s, fac: ix.fac.clone(s)}
}

// Check verifies the structural invariants of both layers and their
// agreement. It returns the first violation found.
func (ix *Index) Check() error {
	t := ix.sel
	if int(t.count) != len(t.entries) {
		return fmt.Errorf("table: count %d != entries %d", t.count, len(t.entries))
	}
	wantSlots := (int(t.count) + SlotSize - 1) / SlotSize
	if len(t.slots) != wantSlots {
		return fmt.Errorf("table: %d slots allocated, want %d", len(t.slots), wantSlots)
	}
	for p := 0; p < int(t.count); p++ {
		s := t.slots[p/SlotSize][p%SlotSize]
		e, ok := t.entries[s]
		if !ok {
			return fmt.Errorf("table: position %d holds %s with no entry", p, s)
		}
		if int(e.position) != p {
			return fmt.Errorf("table: %s at position %d but entry says %d", s, p, e.position)
		}
	}
	for p := int(t.count); p < len(t.slots)*SlotSize; p++ {
		if t.slots[p/SlotSize][p%SlotSize] != (model.Selector{}) {
			return fmt.Errorf("table: stale selector past count at position %d", p)
		}
	}

	f := ix.fac
	if len(f.addresses) != len(f.records) {
		return fmt.Errorf("facets: %d addresses, %d records", len(f.addresses), len(f.records))
	}
	total := 0
	for i, a := range f.addresses {
		rec, ok := f.records[a]
		if !ok {
			return fmt.Errorf("facets: %s listed without record", a)
		}
		if rec.listIndex != i {
			return fmt.Errorf("facets: %s at list index %d but record says %d", a, i, rec.listIndex)
		}
		if len(rec.selectors) == 0 {
			return fmt.Errorf("facets: %s has an empty selector set", a)
		}
		if len(rec.offsets) != len(rec.selectors) {
			return fmt.Errorf("facets: %s offsets/selectors length mismatch", a)
		}
		for j, s := range rec.selectors {
			if rec.offsets[s] != j {
				return fmt.Errorf("facets: %s selector %s at %d but offset says %d", a, s, j, rec.offsets[s])
			}
			owner, ok := t.Lookup(s)
			if !ok || owner != a {
				return fmt.Errorf("facets: %s lists %s but table routes it to %s", a, s, owner)
			}
		}
		total += len(rec.selectors)
	}
	if total != int(t.count) {
		return fmt.Errorf("facets: %d selectors across facets, table holds %d", total, t.count)
	}
	return nil
}
