package lic

import (
	"github.com/charlotte-os/catten/internal/ipirpc"
	"github.com/charlotte-os/catten/internal/isa"
)

// Adapter implements ipirpc.Sender over a Controller. Spec §4.I only
// names a single send_unicast_ipi(target_lp) primitive; ipirpc's three
// purposes (unicast/multicast/broadcast) are distinguished by the
// vector baked into the interrupt once delivered, not by a different
// hardware send call, so this adapter routes every ipirpc.Vector
// through the same Controller.SendUnicastIPI.
type Adapter struct {
	Controller Controller
}

var _ ipirpc.Sender = Adapter{}

func (a Adapter) SendIPI(lp isa.LpID, _ ipirpc.Vector) error {
	return a.Controller.SendUnicastIPI(lp)
}
