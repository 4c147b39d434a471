package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanLinknamesAndTextSymbols(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ops.go"), []byte(`package isa

//go:linkname asmHalt catten_asm_halt
func asmHalt()
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ops.s"), []byte("TEXT ·catten_asm_halt(SB), NOSPLIT, $0\n\tRET\n"), 0o644))

	linknamed, err := scanLinknames(dir)
	require.NoError(t, err)
	require.True(t, linknamed["catten_asm_halt"])

	defined, err := scanTextSymbols(dir)
	require.NoError(t, err)
	require.True(t, defined["catten_asm_halt"])
}

func TestRunSymbolsReportsMissingDefinition(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ops.go"), []byte(`package isa

//go:linkname asmFoo catten_asm_foo
func asmFoo()
`), 0o644))

	err := runSymbols([]string{"-dir", dir})
	require.Error(t, err)
}
