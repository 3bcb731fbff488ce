package delta

import (
	"slices"
	"sort"

	"makedelta/internal/pkgprov"
)

// GenerateFileHistory walks the ordered chain [latest, prev1, …, prevK]
// and produces one PackageContentDiff per previous version, in order from
// prev1 to prevK.
//
// Add, replace and remove actions are deduplicated globally: the walk
// starts at prev1, whose chunk every older consumer also receives, so each
// action is attached to the first slot in chain order that needs it. Patch
// actions are never deduplicated — each consumer needs the patch matching
// its own source file.
func (b *Builder) GenerateFileHistory(versionOrder []string, pkgs map[string]pkgprov.Package) VersionHistory {
	latest, previous := versionOrder[0], versionOrder[1:]

	latestKeys := make(map[pkgprov.EntryKey]struct{})
	latestNames := make(map[string]struct{})
	for _, e := range pkgs[latest].Entries() {
		latestKeys[e.Key()] = struct{}{}
		latestNames[e.Name] = struct{}{}
	}

	globalReplaced := make(map[string]struct{})
	globalRemoved := make(map[string]struct{})
	changedNames := make(map[string]struct{})

	var records []PackageContentDiff
	for i, version := range previous {
		entries := pkgs[version].Entries()
		currentNames := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			currentNames[e.Name] = struct{}{}
		}

		// This slot applies to a consumer at this version or at any
		// older version in the chain.
		forVersion := slices.Clone(previous[i:])

		var actions []FileAction
		for _, entry := range entries {
			if _, ok := latestKeys[entry.Key()]; ok {
				// Identical content in the target; nothing to do.
				continue
			}
			if _, ok := latestNames[entry.Name]; ok {
				// Present in the target with different content.
				if b.needBinaryPatch(entry) {
					actions = append(actions, PatchFile(version, entry.Name))
				} else if _, done := globalReplaced[entry.Name]; !done {
					globalReplaced[entry.Name] = struct{}{}
					actions = append(actions, ReplaceFile(entry.Name))
				}
				changedNames[entry.Name] = struct{}{}
			} else if _, done := globalRemoved[entry.Name]; !done {
				globalRemoved[entry.Name] = struct{}{}
				actions = append(actions, RemoveFile(entry.Name))
			}
		}

		// Names in the target but not in this version are new files.
		var newNames []string
		for name := range latestNames {
			if _, ok := currentNames[name]; !ok {
				newNames = append(newNames, name)
			}
		}
		sort.Strings(newNames)
		for _, name := range newNames {
			if _, done := globalReplaced[name]; !done {
				globalReplaced[name] = struct{}{}
				actions = append(actions, AddFile(name))
			}
			changedNames[name] = struct{}{}
		}

		records = append(records, PackageContentDiff{
			BaseVersion:      forVersion,
			PatchBaseVersion: version,
			Actions:          actions,
		})
	}

	var unchanged []string
	for name := range latestNames {
		if _, ok := changedNames[name]; !ok {
			unchanged = append(unchanged, name)
		}
	}
	sort.Strings(unchanged)

	return VersionHistory{VersionChanges: records, UnchangedNames: unchanged}
}
