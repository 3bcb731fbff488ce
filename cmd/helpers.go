package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// readVersionLines reads a version-list file: one version per line, blank
// lines ignored.
func readVersionLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read versions file: %w", err)
	}
	defer f.Close()

	var versions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			versions = append(versions, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read versions file: %w", err)
	}
	return versions, nil
}

func printError(msg string) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: %s\n", msg)
}

func printSuccess(msg string) {
	color.New(color.FgGreen).Printf("%s\n", msg)
}
