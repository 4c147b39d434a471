package vmm

import "github.com/charlotte-os/catten/internal/isa"

// entry is the portable (target-PA, flags) view spec §3 mandates; the
// engine never manipulates raw bits itself outside this file.
const (
	bitValid    = 1 << 0
	bitWritable = 1 << 1
	bitUser     = 1 << 2
	bitExec     = 1 << 3
	bitAccessed = 1 << 4
	bitDirty    = 1 << 5
	bitGlobal   = 1 << 6
	cacheShift  = 7 // 2 bits: cacheShift, cacheShift+1
	paShift     = 12
)

// encodeEntry packs (pa, flags) into the generic 64-bit entry format this
// engine's tables use. Real hardware requires its own bit-for-bit layout
// (Intel's PDE/PTE format differs from an ARM stage-1 descriptor, which
// differs again from an Sv39/48/57 PTE); that translation is the province
// of the isa-specific trap/table-walk assembly this portable engine never
// executes directly, so the generic format here is the single
// representation every Map()/Unmap()/Translate() call operates on — see
// DESIGN.md for why this is a deliberate simplification rather than a
// per-ISA duplication of three structurally-identical encoders.
func encodeEntry(pa isa.PhysAddr, f isa.PTEFlags) uint64 {
	var v uint64
	if f.Valid {
		v |= bitValid
	}
	if f.Writable {
		v |= bitWritable
	}
	if f.UserAccessible {
		v |= bitUser
	}
	if f.ExecPermitted {
		v |= bitExec
	}
	if f.AccessFlag {
		v |= bitAccessed
	}
	if f.Dirty {
		v |= bitDirty
	}
	if f.Global {
		v |= bitGlobal
	}
	v |= uint64(f.CacheAttr) << cacheShift
	v |= uint64(pa) &^ (isa.PageSize - 1)
	return v
}

func decodeEntry(raw uint64) (isa.PhysAddr, isa.PTEFlags) {
	f := isa.PTEFlags{
		Valid:          raw&bitValid != 0,
		Writable:       raw&bitWritable != 0,
		UserAccessible: raw&bitUser != 0,
		ExecPermitted:  raw&bitExec != 0,
		AccessFlag:     raw&bitAccessed != 0,
		Dirty:          raw&bitDirty != 0,
		Global:         raw&bitGlobal != 0,
		CacheAttr:      isa.CacheAttr((raw >> cacheShift) & 0x3),
	}
	pa := isa.PhysAddr((raw >> paShift) << paShift)
	return pa, f
}
