package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"makedelta/internal/dataproc"
	"makedelta/internal/delta"
	"makedelta/internal/patchstats"
	"makedelta/internal/pkgprov"
)

var (
	flagPackage  string
	flagVariant  string
	flagTestdata string
	flagCacheDir string
	flagOutDir   string
	flagWorkers  int
)

// RootCmd builds a delta package from a target version and a set of
// previous versions.
var RootCmd = &cobra.Command{
	Use:   "makedelta <versions-file> <nonlinear-versions-file>",
	Short: "Build a self-describing delta update package",
	Long: `makedelta builds one delta package carrying a target version of a
software package plus the per-version chunks that reconstruct it from any
of the listed previous versions.

The first file lists versions one per line: the target first, then the
previous versions. The second file lists the nonlinear versions — the
subset of previous versions whose chain position is decided by the
ordering heuristic; the last line is inserted first.`,
	Args:          cobra.ExactArgs(2),
	SilenceErrors: true,
	RunE:          runBuild,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagPackage, "package", "MAA", "Package name")
	RootCmd.PersistentFlags().StringVar(&flagVariant, "variant", "win-x64", "Package variant")
	RootCmd.PersistentFlags().StringVar(&flagTestdata, "testdata", "testdata", "Directory holding the source archives")
	RootCmd.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "cache", "Persistent cache directory")
	RootCmd.PersistentFlags().StringVar(&flagOutDir, "out-dir", "output", "Output directory")
	RootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", runtime.NumCPU(), "Maximum number of concurrent patch jobs")

	RootCmd.AddCommand(DiffCmd)
}

// Execute runs the CLI, printing errors and exiting non-zero on failure.
func Execute() {
	logrus.SetOutput(os.Stderr)
	if err := RootCmd.Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	versions, err := readVersionLines(args[0])
	if err != nil {
		return err
	}
	nonlinear, err := readVersionLines(args[1])
	if err != nil {
		return err
	}

	// Tool resolution happens before any work so a missing executable
	// fails the run up front.
	runner, err := dataproc.NewRunner()
	if err != nil {
		return err
	}

	cacheDir := flagCacheDir
	if err := os.MkdirAll(filepath.Join(cacheDir, "patch_cache"), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	stats, err := patchstats.Open(filepath.Join(cacheDir, "patch_cache", "patch_stats.db"))
	if err != nil {
		return err
	}
	defer stats.Close()

	builder := delta.NewBuilder(delta.Config{
		Processor: runner,
		Stats:     stats,
		CacheDir:  cacheDir,
		OutDir:    flagOutDir,
		Workers:   flagWorkers,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	err = builder.Run(ctx, pkgprov.DirProvider{Dir: flagTestdata}, delta.RunOptions{
		PackageName:       flagPackage,
		PackageVariant:    flagVariant,
		Versions:          versions,
		NonlinearVersions: nonlinear,
	})
	if err != nil {
		return err
	}

	printSuccess("Delta package created")
	return nil
}
