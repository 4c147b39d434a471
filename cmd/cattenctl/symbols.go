package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// linknameRe matches a "//go:linkname localName asmSymbol" directive;
// asmSymbol is the bare name a TEXT declaration in the matching .s file
// must define (spec §4.A: every ISA primitive is a //go:linkname'd
// assembly routine).
var linknameRe = regexp.MustCompile(`//go:linkname\s+(\w+)\s+(\w+)`)

// textRe matches a Go-asm "TEXT ·symbol(SB)" declaration.
var textRe = regexp.MustCompile(`TEXT\s+·(\w+)\(SB\)`)

// runSymbols verifies that every //go:linkname target declared under
// internal/isa has a matching TEXT definition in that GOARCH's assembly
// file, the mirror image of the teacher's generate-globalize-symbols.go
// (which instead verifies assembly call sites have a Go definition).
// A mismatch here means a //go:nosplit primitive would fail to link,
// exactly the class of bug the teacher's own tooling exists to catch
// before it reaches the linker.
func runSymbols(args []string) error {
	fs := newFlagSet("symbols")
	dir := fs.String("dir", "internal/isa", "directory to scan for go:linkname / TEXT pairs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	linknamed, err := scanLinknames(*dir)
	if err != nil {
		return err
	}
	defined, err := scanTextSymbols(*dir)
	if err != nil {
		return err
	}

	var missing []string
	for sym := range linknamed {
		if !defined[sym] {
			missing = append(missing, sym)
		}
	}
	sort.Strings(missing)

	if len(missing) > 0 {
		for _, sym := range missing {
			log.Errorf("no TEXT definition found for //go:linkname target %s", sym)
		}
		return fmt.Errorf("symbols: %d linkname target(s) have no assembly definition", len(missing))
	}

	log.Infof("%d linkname target(s) all resolved to a TEXT definition", len(linknamed))
	return nil
}

func scanLinknames(dir string) (map[string]bool, error) {
	found := map[string]bool{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range linknameRe.FindAllStringSubmatch(string(data), -1) {
			found[m[2]] = true
		}
		return nil
	})
	return found, err
}

func scanTextSymbols(dir string) (map[string]bool, error) {
	found := map[string]bool{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".s") {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, m := range textRe.FindAllStringSubmatch(string(data), -1) {
			found[m[1]] = true
		}
		return nil
	})
	return found, err
}
