package memory

import (
	"sort"
	"strings"
)

// Flags uses the x86 page table entry bit layout.
type Flags uint8

const (
	Present       Flags = 1 << iota // P
	Writable                        // R/W
	User                            // U/S
	CacheDisabled                   // PCD
	Accessed                        // A
	Dirty                           // D
	HugePage                        // PS
	Global                          // G
)

// DefaultFlags is stamped on every page the VMM maps.
const DefaultFlags = Present | Writable | User | Accessed

var flagNames = []struct {
	f    Flags
	name string
}{
	{Present, "P"},
	{Writable, "RW"},
	{User, "US"},
	{CacheDisabled, "PCD"},
	{Accessed, "A"},
	{Dirty, "D"},
	{HugePage, "PS"},
	{Global, "G"},
}

func (f Flags) Has(o Flags) bool {
	return f&o == o
}

func (f Flags) String() string {
	var parts []string

	for _, fn := range flagNames {
		if f&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}

	if len(parts) == 0 {
		return "-"
	}

	return strings.Join(parts, "|")
}

func sortEntries(entries []PageTableEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].VirtAddr < entries[j].VirtAddr
	})
}
