// Package pkgdiff compares the entry sets of two packages.
package pkgdiff

import (
	"makedelta/internal/pkgprov"
)

// Diff is the set-level comparison of two packages' entries, computed
// from entry identity and names.
type Diff struct {
	AOnly  map[string]struct{} // names present only in a
	BOnly  map[string]struct{} // names present only in b
	ABDiff map[string]struct{} // names present in both with different content
	Common map[string]struct{} // names present in both with identical content
}

// Len counts the differing names: removed, added and changed.
func (d Diff) Len() int {
	return len(d.AOnly) + len(d.BOnly) + len(d.ABDiff)
}

// PackageDiff computes the Diff between two packages. It is purely
// set-algebraic and side-effect free; callers memoise it per (a, b) pair.
func PackageDiff(a, b pkgprov.Package) Diff {
	aKeys := make(map[pkgprov.EntryKey]struct{})
	aNames := make(map[string]struct{})
	for _, e := range a.Entries() {
		aKeys[e.Key()] = struct{}{}
		aNames[e.Name] = struct{}{}
	}

	bNames := make(map[string]struct{})
	unchanged := make(map[string]struct{})
	for _, e := range b.Entries() {
		bNames[e.Name] = struct{}{}
		if _, ok := aKeys[e.Key()]; ok {
			unchanged[e.Name] = struct{}{}
		}
	}

	d := Diff{
		AOnly:  make(map[string]struct{}),
		BOnly:  make(map[string]struct{}),
		ABDiff: make(map[string]struct{}),
		Common: unchanged,
	}
	for name := range aNames {
		if _, ok := bNames[name]; !ok {
			d.AOnly[name] = struct{}{}
		} else if _, ok := unchanged[name]; !ok {
			d.ABDiff[name] = struct{}{}
		}
	}
	for name := range bNames {
		if _, ok := aNames[name]; !ok {
			d.BOnly[name] = struct{}{}
		}
	}
	return d
}
