// Package licsim is a host-testable internal/lic.Controller double.
package licsim

import (
	"sync"

	"github.com/charlotte-os/catten/internal/isa"
	"github.com/charlotte-os/catten/internal/lic"
)

// Controller records init/EOI/send calls instead of touching real
// hardware, letting tests assert on the sequence of calls a scheduler
// or ipirpc path makes.
type Controller struct {
	mu        sync.Mutex
	Inited    bool
	EOICount  int
	SentTo    []isa.LpID
	FailSendFor map[isa.LpID]bool
}

var _ lic.Controller = (*Controller)(nil)

func New() *Controller { return &Controller{FailSendFor: map[isa.LpID]bool{}} }

func (c *Controller) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Inited = true
}

func (c *Controller) SignalEOI() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EOICount++
}

func (c *Controller) SendUnicastIPI(lp isa.LpID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSendFor[lp] {
		return lic.ErrSendIPIFailed
	}
	c.SentTo = append(c.SentTo, lp)
	return nil
}
