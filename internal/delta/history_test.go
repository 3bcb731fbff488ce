package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makedelta/internal/pkgprov"
	"makedelta/internal/testutil"
)

func memPkgs(pkgs ...*testutil.MemPackage) map[string]pkgprov.Package {
	out := make(map[string]pkgprov.Package, len(pkgs))
	for _, p := range pkgs {
		out[p.Version()] = p
	}
	return out
}

func TestHistoryTrivialIdentity(t *testing.T) {
	pkgs := memPkgs(
		testutil.NewMemPackage("app", "v1", "").AddFile("README.txt", []byte("hello")),
		testutil.NewMemPackage("app", "v0", "").AddFile("README.txt", []byte("hello")),
	)
	b := newTestBuilder(t)

	history := b.GenerateFileHistory([]string{"v1", "v0"}, pkgs)

	require.Len(t, history.VersionChanges, 1)
	record := history.VersionChanges[0]
	assert.Equal(t, []string{"v0"}, record.BaseVersion)
	assert.Equal(t, "v0", record.PatchBaseVersion)
	assert.Empty(t, record.Actions)
	assert.Equal(t, []string{"README.txt"}, history.UnchangedNames)
}

func TestHistoryABAEmitsPatchOnlyForMiddleVersion(t *testing.T) {
	pkgs := memPkgs(
		testutil.NewMemPackage("app", "v2", "").AddFile("app.dll", []byte("X")),
		testutil.NewMemPackage("app", "v1", "").AddFile("app.dll", []byte("Y")),
		testutil.NewMemPackage("app", "v0", "").AddFile("app.dll", []byte("X")),
	)
	b := newTestBuilder(t)

	history := b.GenerateFileHistory([]string{"v2", "v1", "v0"}, pkgs)

	require.Len(t, history.VersionChanges, 2)
	assert.Equal(t, []FileAction{PatchFile("v1", "app.dll")}, history.VersionChanges[0].Actions)
	// v0's content matches the target identically: no action at all.
	assert.Empty(t, history.VersionChanges[1].Actions)
	assert.Empty(t, history.UnchangedNames, "the path changed at v1")
}

func TestHistoryGlobalDedup(t *testing.T) {
	pkgs := memPkgs(
		testutil.NewMemPackage("app", "v3", "").
			AddFile("a.txt", []byte("a new")).
			AddFile("b.txt", []byte("b")),
		testutil.NewMemPackage("app", "v2", "").
			AddFile("a.txt", []byte("a old")).
			AddFile("c.txt", []byte("c")),
		testutil.NewMemPackage("app", "v1", "").
			AddFile("a.txt", []byte("a old")).
			AddFile("c.txt", []byte("c")),
	)
	b := newTestBuilder(t)

	history := b.GenerateFileHistory([]string{"v3", "v2", "v1"}, pkgs)
	require.Len(t, history.VersionChanges, 2)

	// Everything attaches to the earliest slot that needs it.
	assert.Equal(t, []FileAction{
		ReplaceFile("a.txt"),
		RemoveFile("c.txt"),
		AddFile("b.txt"),
	}, history.VersionChanges[0].Actions)
	assert.Equal(t, []string{"v2", "v1"}, history.VersionChanges[0].BaseVersion)

	// v1 needs the same actions; they are already covered by v2's chunk.
	assert.Empty(t, history.VersionChanges[1].Actions)
	assert.Equal(t, []string{"v1"}, history.VersionChanges[1].BaseVersion)

	assert.Empty(t, history.UnchangedNames)
}

func TestHistoryPatchesNotDeduplicated(t *testing.T) {
	// Two previous versions with the same outdated binary each get their
	// own PatchFile: every consumer patches its own source file.
	pkgs := memPkgs(
		testutil.NewMemPackage("app", "v2", "").AddFile("app.exe", []byte("newest")),
		testutil.NewMemPackage("app", "v1", "").AddFile("app.exe", []byte("stale")),
		testutil.NewMemPackage("app", "v0", "").AddFile("app.exe", []byte("stale")),
	)
	b := newTestBuilder(t)

	history := b.GenerateFileHistory([]string{"v2", "v1", "v0"}, pkgs)
	require.Len(t, history.VersionChanges, 2)
	assert.Equal(t, []FileAction{PatchFile("v1", "app.exe")}, history.VersionChanges[0].Actions)
	assert.Equal(t, []FileAction{PatchFile("v0", "app.exe")}, history.VersionChanges[1].Actions)
}

func TestHistoryAddsAreSorted(t *testing.T) {
	pkgs := memPkgs(
		testutil.NewMemPackage("app", "v1", "").
			AddFile("zeta.txt", []byte("z")).
			AddFile("alpha.txt", []byte("a")).
			AddFile("mid.txt", []byte("m")),
		testutil.NewMemPackage("app", "v0", ""),
	)
	b := newTestBuilder(t)

	history := b.GenerateFileHistory([]string{"v1", "v0"}, pkgs)
	require.Len(t, history.VersionChanges, 1)
	assert.Equal(t, []FileAction{
		AddFile("alpha.txt"),
		AddFile("mid.txt"),
		AddFile("zeta.txt"),
	}, history.VersionChanges[0].Actions)
}
