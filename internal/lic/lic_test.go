package lic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/lic"
	"github.com/charlotte-os/catten/internal/lic/licsim"
)

func TestSoftTimer_StartRequiresDuration(t *testing.T) {
	timer := lic.NewSoftTimer(isa.Nanosecond)
	err := timer.Start()
	require.ErrorIs(t, err, lic.ErrDurationNotSet)

	timer.SetDuration(isa.Millisecond)
	require.NoError(t, timer.Start())
	require.True(t, timer.IsRunning())

	err = timer.Start()
	require.ErrorIs(t, err, lic.ErrAlreadyRunning)
}

func TestSoftTimer_ResetClearsDurationAndRunning(t *testing.T) {
	timer := lic.NewSoftTimer(isa.Nanosecond)
	timer.SetDuration(isa.Millisecond)
	require.NoError(t, timer.Start())

	timer.Reset()
	require.False(t, timer.IsRunning())
	require.Equal(t, isa.ExtDuration(0), timer.GetDuration())
}

func TestSoftTimer_ResolutionRespectsDivisor(t *testing.T) {
	timer := lic.NewSoftTimer(1000 * isa.Picosecond)
	require.Equal(t, isa.ExtDuration(1000), timer.GetResolution())

	timer.SetDivisor(4)
	require.Equal(t, isa.ExtDuration(250), timer.GetResolution())
}

func TestController_SendUnicastIPI_PropagatesFailure(t *testing.T) {
	ctrl := licsim.New()
	ctrl.FailSendFor[isa.LpID(3)] = true

	require.NoError(t, ctrl.SendUnicastIPI(isa.LpID(1)))
	require.ErrorIs(t, ctrl.SendUnicastIPI(isa.LpID(3)), lic.ErrSendIPIFailed)
	require.Equal(t, []isa.LpID{isa.LpID(1)}, ctrl.SentTo)
}
