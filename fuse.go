package xhub

import (
	"sync"
	"sync/atomic"
)

// ActionFuse is a handle to a shared, exactly-once guarded action.
//
// The action runs when Trigger is called on any handle, or when the last live
// handle is released. Defuse cancels it for every handle. Once the action has
// run or been defused the fuse is settled and every further call is a no-op.
type ActionFuse struct {
	core     *fuseCore
	released atomic.Bool
}

type fuseCore struct {
	mu      sync.Mutex
	action  func()
	refs    int
	settled bool
}

// NewActionFuse arms action behind a single live handle.
func NewActionFuse(action func()) *ActionFuse {
	return &ActionFuse{core: &fuseCore{action: action, refs: 1}}
}

// Clone returns another handle sharing the same action. A clone taken from a
// settled fuse is born released.
func (f *ActionFuse) Clone() *ActionFuse {
	c := &ActionFuse{core: f.core}
	f.core.mu.Lock()
	if f.core.settled {
		c.released.Store(true)
	} else {
		f.core.refs++
	}
	f.core.mu.Unlock()
	return c
}

// Release drops this handle. The action runs if this was the last live handle.
// Releasing the same handle twice has no effect.
func (f *ActionFuse) Release() {
	if f.released.Swap(true) {
		return
	}
	f.core.mu.Lock()
	f.core.refs--
	if f.core.refs > 0 || f.core.settled {
		f.core.mu.Unlock()
		return
	}
	action := f.core.take()
	f.core.mu.Unlock()
	if action != nil {
		action()
	}
}

// Trigger runs the action now. It reports whether this call ran it.
func (f *ActionFuse) Trigger() bool {
	f.core.mu.Lock()
	if f.core.settled {
		f.core.mu.Unlock()
		return false
	}
	action := f.core.take()
	f.core.mu.Unlock()
	if action != nil {
		action()
	}
	return true
}

// Defuse cancels the action for all handles. It reports whether the fuse was
// still armed, i.e. whether the caller now owns the responsibility the action
// stood for.
func (f *ActionFuse) Defuse() bool {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()
	if f.core.settled {
		return false
	}
	f.core.settled = true
	f.core.action = nil
	return true
}

// Armed reports whether the action can still run.
func (f *ActionFuse) Armed() bool {
	f.core.mu.Lock()
	defer f.core.mu.Unlock()
	return !f.core.settled
}

// take settles the core and hands back the action. Caller holds mu.
func (c *fuseCore) take() func() {
	c.settled = true
	action := c.action
	c.action = nil
	return action
}
