package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

func validateRunOptions(control string, opts runOptions) error {
	hasControl := strings.TrimSpace(control) != ""
	hasManifest := strings.TrimSpace(opts.Manifest) != ""

	switch {
	case hasControl && hasManifest:
		return fmt.Errorf("pass either a control file or --manifest, not both")
	case !hasControl && !hasManifest:
		return fmt.Errorf("a control file or --manifest is required")
	case opts.Split >= 0 && !hasManifest:
		return fmt.Errorf("--split requires --manifest")
	case opts.Parallel < 0:
		return fmt.Errorf("--parallel must not be negative")
	}

	if hasManifest {
		info, err := os.Stat(opts.Manifest)
		if err != nil {
			return fmt.Errorf("manifest does not exist: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("manifest path %s is a directory", opts.Manifest)
		}
	}
	return nil
}

func isTerminal(writer any) bool {
	if file, ok := writer.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}
