// Command cattenctl is the host-side tooling that surrounds the kernel
// image. It has three subcommands: config (validate a bootcfg YAML
// descriptor and print its Go literal), cpuinfo-check (cross-check
// cpuinfo's extension table against the build host), and symbols
// (check every //go:linkname target in internal/isa has a TEXT
// definition). It does no image building or packaging.
// None of this package's code is compiled into the kernel binary.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func main() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "config":
		err = runConfig(os.Args[2:])
	case "cpuinfo-check":
		err = runCPUInfoCheck(os.Args[2:])
	case "symbols":
		err = runSymbols(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "cattenctl: unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: cattenctl <subcommand> [flags]")
	fmt.Fprintln(os.Stderr, "Subcommands:")
	fmt.Fprintln(os.Stderr, "  config <path.yaml>       validate a bootcfg site descriptor and render its Go literal")
	fmt.Fprintln(os.Stderr, "  cpuinfo-check            cross-check internal/isa/cpuinfo's extension table against this host")
	fmt.Fprintln(os.Stderr, "  symbols -dir <dir>       verify every //go:linkname target in internal/isa has a TEXT definition")
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs
}
