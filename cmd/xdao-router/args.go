package main

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"xdao.co/facetrouter/facets"
	"xdao.co/facetrouter/model"
)

// parseSelector accepts a 0x-prefixed 4-byte selector or a function signature.
func parseSelector(s string) (model.Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Selector{}, fmt.Errorf("empty selector")
	}
	if strings.HasPrefix(s, "0x") && !strings.Contains(s, "(") {
		return model.ParseSelector(s)
	}
	if !strings.HasSuffix(s, ")") || !strings.Contains(s, "(") {
		return model.Selector{}, fmt.Errorf("not a function signature: %q", s)
	}
	return model.SelectorOf(s), nil
}

// parseRole accepts "owner", "manager", a 0x-prefixed 32-byte id, or any
// other name, which is hashed.
func parseRole(s string) (model.RoleID, error) {
	switch s = strings.TrimSpace(s); {
	case s == "":
		return model.RoleID{}, fmt.Errorf("empty role")
	case s == "owner":
		return model.RoleOwner, nil
	case s == "manager":
		return model.RoleManager, nil
	case strings.HasPrefix(s, "0x"):
		return model.ParseRoleID(s)
	default:
		return model.RoleIDOf(s), nil
	}
}

// parseAddress accepts a 0x-prefixed 20-byte address or a facet name such as
// "loupe", which maps to the deterministic facet address.
func parseAddress(s string) (model.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Address{}, fmt.Errorf("empty address")
	}
	if strings.HasPrefix(s, "0x") {
		return model.ParseAddress(s)
	}
	return facets.FacetAddress(s), nil
}

type facetSig struct {
	facet model.Address
	sel   model.Selector
}

// parseFacetSigs parses FACET=SIG pairs.
func parseFacetSigs(flag string, vals []string) ([]facetSig, error) {
	out := make([]facetSig, 0, len(vals))
	for _, v := range vals {
		facet, sig, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("--%s %q: want FACET=SIG", flag, v)
		}
		addr, err := parseAddress(facet)
		if err != nil {
			return nil, fmt.Errorf("--%s %q: %w", flag, v, err)
		}
		sel, err := parseSelector(sig)
		if err != nil {
			return nil, fmt.Errorf("--%s %q: %w", flag, v, err)
		}
		out = append(out, facetSig{facet: addr, sel: sel})
	}
	return out, nil
}

// groupCuts folds pairs into one FacetCut per facet, in order of first
// appearance.
func groupCuts(action model.Action, pairs []facetSig) []model.FacetCut {
	order := lo.Uniq(lo.Map(pairs, func(p facetSig, _ int) model.Address { return p.facet }))
	byFacet := lo.GroupBy(pairs, func(p facetSig) model.Address { return p.facet })
	return lo.Map(order, func(facet model.Address, _ int) model.FacetCut {
		return model.FacetCut{
			FacetAddress: facet,
			Action:       action,
			FunctionSelectors: lo.Map(byFacet[facet], func(p facetSig, _ int) model.Selector {
				return p.sel
			}),
		}
	})
}

// buildCuts turns the cut command's flags into directives: adds, then
// replaces, then one remove.
func buildCuts(adds, replaces, removes []string) ([]model.FacetCut, error) {
	addPairs, err := parseFacetSigs("add", adds)
	if err != nil {
		return nil, err
	}
	replacePairs, err := parseFacetSigs("replace", replaces)
	if err != nil {
		return nil, err
	}
	var cuts []model.FacetCut
	cuts = append(cuts, groupCuts(model.Add, addPairs)...)
	cuts = append(cuts, groupCuts(model.Replace, replacePairs)...)
	if len(removes) > 0 {
		sels := make([]model.Selector, 0, len(removes))
		for _, r := range removes {
			sel, err := parseSelector(r)
			if err != nil {
				return nil, fmt.Errorf("--remove %q: %w", r, err)
			}
			sels = append(sels, sel)
		}
		cuts = append(cuts, model.FacetCut{Action: model.Remove, FunctionSelectors: sels})
	}
	return cuts, nil
}
