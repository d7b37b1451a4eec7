// Package brambler assigns decorative pirate pseudonyms to expedition
// participants. The pool is an immutable static table; which names are taken
// is per-expedition state owned by the caller, so allocation stays
// expedition-scoped and testable in isolation.
package brambler

import (
	"encoding/binary"
	"fmt"
)

// Pool is the fixed set of pseudonyms handed out within an expedition.
var Pool = [...]string{
	"Calico Jack",
	"Anne Bonny",
	"Black Bart",
	"Mary Read",
	"Long John",
	"Blackbeard",
	"Half-Ear Hob",
	"Salty Meg",
	"Ironhook Isla",
	"Peg-Leg Pete",
	"Red Rackham",
	"Gunpowder Gert",
	"One-Eye Olaf",
	"Cutlass Cora",
	"Barnacle Bill",
	"Driftwood Dan",
	"Marooned Maude",
	"Squall-Born Sven",
	"Tidewater Tess",
	"Grog-Blossom Grim",
	"Keelhaul Kit",
	"Lanternjaw Lou",
	"Mizzenmast Mo",
	"Brine-Soaked Bess",
	"Cannonball Cass",
	"Davy Gravel",
	"Eelskin Edda",
	"Foghorn Finn",
	"Galleon Greta",
	"Harpoon Hal",
	"Inkwell Ivo",
	"Jollyboat Jess",
	"Kraken-Kissed Kai",
	"Leadline Lena",
	"Moonless Mort",
	"Nor'easter Nell",
	"Oakum Otto",
	"Powderkeg Prue",
	"Quarterdeck Quin",
	"Rudderless Rhea",
}

// Pick chooses a free pseudonym for one expedition. The starting position is
// derived from the participant's identity digest, so repeated calls with the
// same digest and the same taken set land on the same name. When every pool
// entry is taken a numeric suffix is appended, so allocation never fails.
func Pick(digest []byte, taken map[string]bool) string {
	start := 0
	if len(digest) >= 4 {
		start = int(binary.BigEndian.Uint32(digest[:4]) % uint32(len(Pool)))
	}
	for i := 0; i < len(Pool); i++ {
		name := Pool[(start+i)%len(Pool)]
		if !taken[name] {
			return name
		}
	}
	base := Pool[start]
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s %d", base, n)
		if !taken[name] {
			return name
		}
	}
}

// PoolSize returns the number of names in the fixed pool.
func PoolSize() int {
	return len(Pool)
}
