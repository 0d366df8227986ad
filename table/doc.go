// Package table implements the router's routing table.
//
// The table has two layers that are always mutated together through Index:
//
//   - Selectors packs selectors densely into fixed-capacity slots of SlotSize
//     entries. Every selector has an entry holding its owning facet and its
//     position (slot*SlotSize + offset). Removal is swap-and-pop: the last
//     occupied position is moved into the hole and the moved selector's
//     position is rewritten.
//
//   - Facets is the reverse index: facet address -> ordered selector set, plus
//     the global ordered list of facet addresses. A facet whose set becomes
//     empty is spliced out of the list with the same swap-and-pop, and the
//     moved facet's list index is rewritten.
//
// Index.Check verifies every structural invariant and is used by the tests
// after each mutation.
//
// Types in this package are not safe for concurrent use; the router
// serializes access.
package table
