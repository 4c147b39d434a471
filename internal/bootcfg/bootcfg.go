// Package bootcfg is the host-side description of the tunables spec
// §4.N leaves as bring-up constants: the scheduler tick period, the
// initial heap arena size, the default guard-paged stack size, and the
// per-LP IPI mailbox queue capacity (spec §9: "IPI queue VecDeque
// capacity is reserved at LP init").
//
// A freestanding kernel image cannot carry a YAML decoder: reflection
// plus heap allocation before the heap exists would violate the
// interrupt-context restrictions spec §9 places on early bring-up code.
// So the YAML descriptor is only ever parsed by cmd/cattenctl at image
// build time; the kernel itself only ever sees the resulting Config
// value, compiled in as a literal.
package bootcfg

import (
	"fmt"

	"github.com/charlotte-os/catten/internal/isa"
)

// Config is the bring-up tunable set. Field names match spec §4.N/§4.G/
// §4.H exactly so a reviewer can trace each one back to the prose it
// came from.
type Config struct {
	// SchedulerTickSeconds is the per-LP timer period armed during
	// bring-up (spec §4.N: "10 s for bring-up, to be tightened post-boot").
	SchedulerTickSeconds uint64 `yaml:"scheduler_tick_seconds"`

	// HeapInitialArenaBytes is the heap's starting span before any
	// OOM-triggered extension (spec §4.G: "fixed initial size (2 MiB)").
	HeapInitialArenaBytes uint64 `yaml:"heap_initial_arena_bytes"`

	// DefaultStackPages is the usable page count requested by
	// allocate_stack when a caller does not specify one explicitly
	// (spec §4.G: "at least 4 pages").
	DefaultStackPages uint64 `yaml:"default_stack_pages"`

	// IPIMailboxQueueCapacity is the fixed ring-buffer capacity every
	// LP's IPI request queue is given at init (spec §4.H/§9).
	IPIMailboxQueueCapacity uint64 `yaml:"ipi_mailbox_queue_capacity"`

	// MailboxSendRetries is a validated, non-zero retry count for
	// MailboxBusy. No code in the kernel core reads it: ipirpc's Send
	// functions return ErrMailboxBusy on the first failed CAS and never
	// retry.
	MailboxSendRetries uint64 `yaml:"mailbox_send_retries"`
}

// Default matches the literal constants spec §4.N/§4.G name explicitly;
// cmd/cattenctl's "config" subcommand validates a site YAML descriptor
// against these rather than silently accepting arbitrary values.
func Default() Config {
	return Config{
		SchedulerTickSeconds:    10,
		HeapInitialArenaBytes:   2 * 1024 * 1024,
		DefaultStackPages:       4,
		IPIMailboxQueueCapacity: 64,
		MailboxSendRetries:      8,
	}
}

// Validate checks the invariants the rest of the kernel core assumes
// without re-deriving them at runtime: the heap arena must be
// page-aligned (kheap maps whole pages only), the default stack must
// meet spec §4.G's 4-page floor, and every capacity must be non-zero.
func (c Config) Validate() error {
	if c.SchedulerTickSeconds == 0 {
		return fmt.Errorf("bootcfg: scheduler_tick_seconds must be non-zero")
	}
	if c.HeapInitialArenaBytes == 0 || c.HeapInitialArenaBytes%isa.PageSize != 0 {
		return fmt.Errorf("bootcfg: heap_initial_arena_bytes must be a non-zero multiple of %d", isa.PageSize)
	}
	if c.DefaultStackPages < 4 {
		return fmt.Errorf("bootcfg: default_stack_pages must be at least 4, got %d", c.DefaultStackPages)
	}
	if c.IPIMailboxQueueCapacity == 0 {
		return fmt.Errorf("bootcfg: ipi_mailbox_queue_capacity must be non-zero")
	}
	if c.MailboxSendRetries == 0 {
		return fmt.Errorf("bootcfg: mailbox_send_retries must be non-zero")
	}
	return nil
}

// SchedulerTick converts SchedulerTickSeconds into the isa.ExtDuration
// internal/boot and internal/lic actually consume, keeping the
// picosecond fixed-point type (spec §3 supplemented features) the only
// duration representation that ever crosses into the portable core.
func (c Config) SchedulerTick() isa.ExtDuration {
	return isa.Second * isa.ExtDuration(c.SchedulerTickSeconds)
}
