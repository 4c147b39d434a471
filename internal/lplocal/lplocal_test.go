package lplocal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/isa/isasim"
)

func TestInstall_ReachableViaGet(t *testing.T) {
	lp := isasim.NewLP(7, 7)
	local := Install(lp, isa.LpID(7), isa.VirtAddr(0x8000))

	require.Equal(t, isa.VirtAddr(0x8000), lp.GetLpLocalBase())

	got, ok := Get(isa.LpID(7))
	require.True(t, ok)
	require.Same(t, local, got)

	gotMut, ok := GetMut(isa.LpID(7))
	require.True(t, ok)
	require.Same(t, local, gotMut)
}

func TestGet_UnknownLPNotFound(t *testing.T) {
	_, ok := Get(isa.LpID(999))
	require.False(t, ok)
}

func TestInstall_QueueHasFixedCapacity(t *testing.T) {
	local := Install(isasim.NewLP(9, 9), isa.LpID(9), isa.VirtAddr(0x9000))
	require.Equal(t, ipiQueueCapacity, local.IPIReqs.Cap())
}
