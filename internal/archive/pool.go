package archive

import (
	"sync"

	"callrec/internal/model"
)

type slotState int

const (
	slotIdle slotState = iota
	slotBorrowed
)

// slot is one pooled instance of a type's model.
type slot struct {
	state slotState
	lease string
	model *model.Model
}

// typePool holds every instance of one type. The network is loaded once
// and shared; each slot owns its evidence.
type typePool struct {
	mu    sync.Mutex
	net   *model.Network
	slots []*slot
	idle  []int
}

func newTypePool(net *model.Network) *typePool {
	return &typePool{net: net}
}

// borrow takes an idle slot, or grows the arena, and activates the instance.
func (p *typePool) borrow(leaseID string) (int, *model.Model) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idx int
	if n := len(p.idle); n > 0 {
		idx = p.idle[n-1]
		p.idle = p.idle[:n-1]
	} else {
		p.slots = append(p.slots, &slot{model: p.net.NewModel()})
		idx = len(p.slots) - 1
	}

	s := p.slots[idx]
	s.state = slotBorrowed
	s.lease = leaseID
	// Activation: the previous borrower may not have reset.
	s.model.Reset()
	return idx, s.model
}

// giveBack returns the slot to idle. It reports false when the slot is not
// borrowed under leaseID.
func (p *typePool) giveBack(idx int, leaseID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx < 0 || idx >= len(p.slots) {
		return false
	}
	s := p.slots[idx]
	if s.state != slotBorrowed || s.lease != leaseID {
		return false
	}
	s.state = slotIdle
	s.lease = ""
	p.idle = append(p.idle, idx)
	return true
}

func (p *typePool) counts() (borrowed, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.idle), len(p.idle)
}
