// Package model defines the stable boundary types shared by the routing table,
// the access gate, the router and its transports.
//
// Selectors, addresses and role ids are fixed-width byte arrays. Their text form
// is 0x-prefixed lowercase hex; that form is what JSON, YAML and CBOR carry.
// These structs are the only types intended for direct serialization by consumers.
package model
