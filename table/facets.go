package table

import (
	"xdao.co/facetrouter/model"
)

type facetRecord struct {
	selectors []model.Selector
	offsets   map[model.Selector]int
	listIndex int
}

// Facets is the reverse index from facet address to its selectors.
//
// The per-facet selector lists and the global address list both use
// swap-and-pop removal. Entries appended and then removed in any order leave
// the untouched prefix as it was.
type Facets struct {
	table     *Selectors
	records   map[model.Address]*facetRecord
	addresses []model.Address
}

// NewFacets returns an empty index that projects facetOf through table.
func NewFacets(table *Selectors) *Facets {
	return &Facets{table: table, records: make(map[model.Address]*facetRecord)}
}

// Attach appends sel to facet's set, registering facet if it is new.
func (f *Facets) Attach(facet model.Address, sel model.Selector) {
	rec, ok := f.records[facet]
	if !ok {
		rec = &facetRecord{offsets: make(map[model.Selector]int), listIndex: len(f.addresses)}
		f.records[facet] = rec
		f.addresses = append(f.addresses, facet)
	}
	if _, dup := rec.offsets[sel]; dup {
		return
	}
	rec.offsets[sel] = len(rec.selectors)
	rec.selectors = append(rec.selectors, sel)
}

// Detach removes sel from facet's set. A facet left with no selectors is
// removed from the address list.
func (f *Facets) Detach(facet model.Address, sel model.Selector) bool {
	rec, ok := f.records[facet]
	if !ok {
		return false
	}
	i, ok := rec.offsets[sel]
	if !ok {
		return false
	}
	last := len(rec.selectors) - 1
	if i != last {
		moved := rec.selectors[last]
		rec.selectors[i] = moved
		rec.offsets[moved] = i
	}
	rec.selectors = rec.selectors[:last]
	delete(rec.offsets, sel)

	if len(rec.selectors) == 0 {
		f.dropFacet(facet, rec)
	}
	return true
}

func (f *Facets) dropFacet(facet model.Address, rec *facetRecord) {
	i := rec.listIndex
	last := len(f.addresses) - 1
	if i != last {
		moved := f.addresses[last]
		f.addresses[i] = moved
		f.records[moved].listIndex = i
	}
	f.addresses = f.addresses[:last]
	delete(f.records, facet)
}

// SelectorsOf returns a copy of facet's selector set, or nil when facet is
// not registered.
func (f *Facets) SelectorsOf(facet model.Address) []model.Selector {
	rec, ok := f.records[facet]
	if !ok {
		return nil
	}
	return append([]model.Selector(nil), rec.selectors...)
}

// Has reports whether facet owns at least one selector.
func (f *Facets) Has(facet model.Address) bool {
	_, ok := f.records[facet]
	return ok
}

// Addresses returns a copy of the ordered facet address list.
func (f *Facets) Addresses() []model.Address {
	return append([]model.Address(nil), f.addresses...)
}

// All returns every facet with its selectors, in address-list order.
func (f *Facets) All() []model.Facet {
	out := make([]model.Facet, 0, len(f.addresses))
	for _, a := range f.addresses {
		out = append(out, model.Facet{FacetAddress: a, FunctionSelectors: f.SelectorsOf(a)})
	}
	return out
}

// FacetOf returns the facet owning sel.
func (f *Facets) FacetOf(sel model.Selector) (model.Address, bool) {
	return f.table.Lookup(sel)
}

func (f *Facets) clone(table *Selectors) *Facets {
	out := &Facets{
		table:     table,
		records:   make(map[model.Address]*facetRecord, len(f.records)),
		addresses: append([]model.Address(nil), f.addresses...),
	}
	for a, rec := range f.records {
		cp := &facetRecord{
			selectors: append([]model.Selector(nil), rec.selectors...),
			offsets:   make(map[model.Selector]int, len(rec.offsets)),
			listIndex: rec.listIndex,
		}
		for s, i := range rec.offsets {
			cp.offsets[s] = i
		}
		out.records[a] = cp
	}
	return out
}
