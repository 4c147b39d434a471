//go:build amd64

package lic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlotte-os/catten/internal/isa"
)

type fakeCountdown struct {
	tscPerRun uint64
}

func (f fakeCountdown) RunOnce(ticks uint32) (uint64, error) {
	return f.tscPerRun, nil
}

func TestCalibrateAPICResolution_AveragesSamples(t *testing.T) {
	cd := fakeCountdown{tscPerRun: 30_000_000}
	psPerCycle := isa.ExtDuration(333) // ~3GHz

	res, err := CalibrateAPICResolution(cd, psPerCycle)
	require.NoError(t, err)
	require.Greater(t, int64(res), int64(0))
}

func TestTSCFrequencyFromCPUID15_RejectsZeroFields(t *testing.T) {
	_, ok := TSCFrequencyFromCPUID15(0, 2, 24_000_000)
	require.False(t, ok)

	_, ok = TSCFrequencyFromCPUID15(2, 100, 24_000_000)
	require.True(t, ok)
}

func TestTSCFrequencyFromPIT_RequiresEightSamples(t *testing.T) {
	_, ok := TSCFrequencyFromPIT([]PITSample{{TSCDelta: 1000}})
	require.False(t, ok)

	samples := make([]PITSample, 8)
	for i := range samples {
		samples[i] = PITSample{TSCDelta: 120_000_000} // ~3GHz * 40ms
	}
	freq, ok := TSCFrequencyFromPIT(samples)
	require.True(t, ok)
	require.Greater(t, int64(freq), int64(0))
}
