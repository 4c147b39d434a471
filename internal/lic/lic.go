// Package lic implements the local interrupt controller contract and LP
// timer (spec §4.I): the narrow surface the portable kernel uses to
// acknowledge interrupts and deliver IPIs, plus resolution-calibrated
// periodic timing. This package defines the Controller contract but
// holds no hardware backend (APIC, GIC redistributor or IMSIC) for it;
// licsim provides a host-testable double.
package lic

import (
	"errors"

	"github.com/charlotte-os/catten/internal/isa"
)

var (
	ErrAlreadyRunning  = errors.New("lic: timer already running")
	ErrDurationNotSet  = errors.New("lic: duration not set")
	ErrSendIPIFailed   = errors.New("lic: send_unicast_ipi failed")
)

// Controller is the hardware local-interrupt-controller contract.
type Controller interface {
	// Init enables the controller and programs the spurious vector.
	Init()
	// SignalEOI acknowledges the currently serviced interrupt.
	SignalEOI()
	// SendUnicastIPI translates lp to the hardware destination and
	// raises the fixed unicast-IPI vector.
	SendUnicastIPI(lp isa.LpID) error
}

// Timer is the polymorphic per-LP timer capability (spec §4.I).
type Timer interface {
	GetResolution() isa.ExtDuration
	SetDivisor(d uint32)
	SetDuration(d isa.ExtDuration)
	GetDuration() isa.ExtDuration
	Start() error
	Stop()
	Reset()
	SetInterruptMask(masked bool)
	GetInterruptMask() bool
	SetISRDispatchNumber(n uint8)
	SignalEOI()
}

// SoftTimer is a pure-Go Timer implementation: a state machine over
// resolution, divisor, duration, running and mask that programs no
// hardware. It is the only Timer in the repository; internal/boot arms
// one per LP on every ISA, and host tests use it directly.
type SoftTimer struct {
	resolution isa.ExtDuration
	divisor    uint32
	duration   isa.ExtDuration
	running    bool
	masked     bool
	isrVector  uint8
}

// NewSoftTimer builds a Timer with the given calibrated tick
// resolution (picoseconds per tick at divisor 1).
func NewSoftTimer(resolution isa.ExtDuration) *SoftTimer {
	return &SoftTimer{resolution: resolution, divisor: 1}
}

func (t *SoftTimer) GetResolution() isa.ExtDuration { return t.resolution.Div(int64(max32(t.divisor))) }

func max32(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

func (t *SoftTimer) SetDivisor(d uint32)            { t.divisor = d }
func (t *SoftTimer) SetDuration(d isa.ExtDuration)  { t.duration = d }
func (t *SoftTimer) GetDuration() isa.ExtDuration   { return t.duration }

func (t *SoftTimer) Start() error {
	if t.running {
		return ErrAlreadyRunning
	}
	if t.duration == 0 {
		return ErrDurationNotSet
	}
	t.running = true
	return nil
}

func (t *SoftTimer) Stop()  { t.running = false }
func (t *SoftTimer) Reset() { t.running = false; t.duration = 0 }

func (t *SoftTimer) SetInterruptMask(masked bool) { t.masked = masked }
func (t *SoftTimer) GetInterruptMask() bool       { return t.masked }
func (t *SoftTimer) SetISRDispatchNumber(n uint8)  { t.isrVector = n }
func (t *SoftTimer) SignalEOI()                   {}

// ISRDispatchNumber exposes the bound vector, used by the context-switch
// dispatcher to route the timer interrupt.
func (t *SoftTimer) ISRDispatchNumber() uint8 { return t.isrVector }

// IsRunning reports the timer's armed state, used by tests.
func (t *SoftTimer) IsRunning() bool { return t.running }
