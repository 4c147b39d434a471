package main

import (
	"fmt"

	"github.com/charlotte-os/catten/internal/bootcfg"
)

// runConfig loads a site YAML descriptor (spec §4.N/§4.G tunables),
// validates it against bootcfg.Config's invariants, and prints the Go
// source literal cmd/cattenctl's caller splices into the kernel build
// (package doc in internal/bootcfg explains why the YAML decoder itself
// never ships in the kernel binary).
func runConfig(args []string) error {
	fs := newFlagSet("config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("config: expected exactly one path argument, got %d", fs.NArg())
	}

	cfg, err := bootcfg.LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	log.Infof("loaded and validated %s", fs.Arg(0))
	fmt.Println(bootcfg.GoLiteral(cfg))
	return nil
}
