package renderer

import "strings"

// Deferred work requested by configuration changes. The photon mapper
// inspects and clears these flags at fixed points of each frame.
type PendingActions uint16

const (
	OptionsChanged PendingActions = 1 << iota
	ResetIterations
	ResetTimer
	NumPhotonsChanged
	FitBuffers
	ResizeBuffers
	RebuildLightTable
	RebuildStore
	RebuildAS
	RebuildCulling
	ResizeFrame
)

var pendingActionNames = []string{
	"OptionsChanged",
	"ResetIterations",
	"ResetTimer",
	"NumPhotonsChanged",
	"FitBuffers",
	"ResizeBuffers",
	"RebuildLightTable",
	"RebuildStore",
	"RebuildAS",
	"RebuildCulling",
	"ResizeFrame",
}

func (p PendingActions) Has(a PendingActions) bool {
	return p&a != 0
}

func (p *PendingActions) Set(a PendingActions) {
	*p |= a
}

func (p *PendingActions) Clear(a PendingActions) {
	*p &^= a
}

// Clear a and report whether any of its flags were set.
func (p *PendingActions) Take(a PendingActions) bool {
	set := p.Has(a)
	p.Clear(a)
	return set
}

func (p PendingActions) String() string {
	if p == 0 {
		return "none"
	}
	var names []string
	for bit, name := range pendingActionNames {
		if p&(1<<bit) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}
