//go:build amd64

package lic

import "github.com/charlotte-os/catten/internal/isa"

// apicSampleCount and apicCountdownTicks are the calibration parameters
// spec §4.I fixes: 100 samples of 10 million-tick countdowns.
const (
	apicSampleCount    = 100
	apicCountdownTicks = 10_000_000
)

// Countdown abstracts the one-shot APIC timer countdown primitive this
// calibration routine drives: program the initial count, read the TSC
// before and after the countdown elapses, and report the delta.
type Countdown interface {
	// RunOnce programs divisor=1, initial count ticks, waits for the
	// countdown to reach zero, and returns the TSC delta observed.
	RunOnce(ticks uint32) (tscDelta uint64, err error)
}

// CalibrateAPICResolution runs the spec §4.I calibration: with the
// timer interrupt masked, sample N countdowns of a fixed tick count,
// convert each to picoseconds-per-tick using the already-calibrated TSC
// frequency, and average.
func CalibrateAPICResolution(cd Countdown, tscPicosecondsPerCycle isa.ExtDuration) (isa.ExtDuration, error) {
	var sum isa.ExtDuration
	for i := 0; i < apicSampleCount; i++ {
		delta, err := cd.RunOnce(apicCountdownTicks)
		if err != nil {
			return 0, err
		}
		elapsed := tscPicosecondsPerCycle * isa.ExtDuration(delta)
		perTick := elapsed.Div(apicCountdownTicks)
		sum = sum.Add(perTick)
	}
	return sum.Div(apicSampleCount), nil
}

// TSCFrequencyFromCPUID15 implements the CPUID-leaf-0x15 calibration
// path (spec §4.I): used "when all three fields are non-zero"
// (denominator, numerator, core crystal Hz); returns picoseconds per TSC
// cycle.
func TSCFrequencyFromCPUID15(denominator, numerator, coreCrystalHz uint32) (isa.ExtDuration, bool) {
	if denominator == 0 || numerator == 0 || coreCrystalHz == 0 {
		return 0, false
	}
	// tsc_hz = core_crystal_hz * numerator / denominator
	tscHz := uint64(coreCrystalHz) * uint64(numerator) / uint64(denominator)
	if tscHz == 0 {
		return 0, false
	}
	return isa.Second.Div(int64(tscHz)), true
}

// PITSample is one of the 8 x 40ms legacy-PIT-channel-2-gated samples
// used when CPUID leaf 0x15 is unavailable (spec §4.I).
type PITSample struct {
	TSCDelta uint64
}

const (
	pitSampleCount  = 8
	pitSampleMillis = 40
)

// TSCFrequencyFromPIT averages 8 gated 40ms samples and rounds the
// result to the nearest MHz, per spec §4.I's legacy calibration path.
func TSCFrequencyFromPIT(samples []PITSample) (isa.ExtDuration, bool) {
	if len(samples) != pitSampleCount {
		return 0, false
	}
	var sum uint64
	for _, s := range samples {
		sum += s.TSCDelta
	}
	avgPerSample := sum / pitSampleCount
	// cycles per 40ms -> cycles per second
	hz := avgPerSample * (1000 / pitSampleMillis)
	const mhz = 1_000_000
	roundedHz := ((hz + mhz/2) / mhz) * mhz
	if roundedHz == 0 {
		return 0, false
	}
	return isa.Second.Div(int64(roundedHz)), true
}
