// Package visgroup stands in for the external DNA map-data loader: a
// zoneId -> set<visibleZoneId> table used only to expand a client's
// requested interest zones (spec.md §3, §1 "DNA map-data loader").
package visgroup

import "github.com/toontownretro/otp-server/internal/model"

// blockSize is the zone-numbering convention a "block" (visibility
// group) is partitioned on: every zone in block b lives in
// [b*blockSize, b*blockSize+blockSize).
const blockSize = 100

// Table maps a zone to the zones directly visible from it, as declared
// by the map's DNA file.
type Table struct {
	neighbors map[uint32][]uint32
}

// NewTable builds a Table from a fixed neighbor adjacency. neighbors
// need not be symmetric; Expand only ever looks up the zones it is
// given plus their block origins.
func NewTable(neighbors map[uint32][]uint32) *Table {
	return &Table{neighbors: neighbors}
}

// BlockOrigin returns the "base" zone of zone's visibility block
// (spec.md §3: "zoneId − (zoneId mod 100)").
func BlockOrigin(zone uint32) uint32 {
	return zone - zone%blockSize
}

// Expand returns the full set of zones that become visible when zones
// is added to an interest: each zone itself, its block origin, and
// every visgroup-declared neighbour reachable in at most one further
// hop from those (spec.md §8 "transitively once"). Zone 1 (the quiet
// zone) is never admitted, per spec.md §3.
func (t *Table) Expand(zones []uint32) map[uint32]struct{} {
	out := make(map[uint32]struct{})
	frontier := make(map[uint32]struct{})

	for _, z := range zones {
		if z == model.QuietZone {
			continue
		}
		out[z] = struct{}{}
		frontier[z] = struct{}{}
		origin := BlockOrigin(z)
		out[origin] = struct{}{}
		frontier[origin] = struct{}{}
	}

	firstHop := make(map[uint32]struct{})
	for z := range frontier {
		for _, n := range t.neighbors[z] {
			if n == model.QuietZone {
				continue
			}
			if _, seen := out[n]; !seen {
				out[n] = struct{}{}
				firstHop[n] = struct{}{}
			}
		}
	}

	for z := range firstHop {
		for _, n := range t.neighbors[z] {
			if n == model.QuietZone {
				continue
			}
			out[n] = struct{}{}
		}
	}

	delete(out, model.QuietZone)
	return out
}
