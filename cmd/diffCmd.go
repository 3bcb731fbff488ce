package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"makedelta/internal/pkgdiff"
	"makedelta/internal/pkgprov"
)

// DiffCmd compares the entry sets of two package archives.
var DiffCmd = &cobra.Command{
	Use:   "diff <old.zip> <new.zip>",
	Short: "Compare the entries of two package archives",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldPkg, err := pkgprov.OpenZipPackage(args[0], "old", "", "")
	if err != nil {
		return err
	}
	defer oldPkg.Close()
	newPkg, err := pkgprov.OpenZipPackage(args[1], "new", "", "")
	if err != nil {
		return err
	}
	defer newPkg.Close()

	diff := pkgdiff.PackageDiff(oldPkg, newPkg)
	for _, name := range sortedNames(diff.AOnly) {
		fmt.Printf("- %s\n", name)
	}
	for _, name := range sortedNames(diff.BOnly) {
		fmt.Printf("+ %s\n", name)
	}
	for _, name := range sortedNames(diff.ABDiff) {
		fmt.Printf("* %s\n", name)
	}
	return nil
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
