// Package lifecycle provides the statekit statechart for the resource
// loading lifecycle: pending → loading → {loaded | error}, with
// invalidation back to pending.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/lode/domain/resource"
)

// Context carries the resource identity through the state machine.
type Context struct {
	ID string
}

// State IDs as StateID type for statekit.
const (
	statePending statekit.StateID = statekit.StateID(resource.StatePending)
	stateLoading statekit.StateID = statekit.StateID(resource.StateLoading)
	stateLoaded  statekit.StateID = statekit.StateID(resource.StateLoaded)
	stateError   statekit.StateID = statekit.StateID(resource.StateError)
)

// Event types driving the lifecycle.
const (
	eventLoad       statekit.EventType = "LOAD"
	eventSucceed    statekit.EventType = "SUCCEED"
	eventFail       statekit.EventType = "FAIL"
	eventInvalidate statekit.EventType = "INVALIDATE"
)

// NewMachine creates the canonical resource lifecycle statechart. The
// configuration is shared; each tracked resource gets its own
// interpreter.
func NewMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("resource").
		WithInitial(statePending).
		WithContext(&Context{}).
		State(statePending).
			On(eventLoad).Target(stateLoading).
			Done().
		State(stateLoading).
			On(eventSucceed).Target(stateLoaded).
			On(eventFail).Target(stateError).
			On(eventInvalidate).Target(statePending).
			Done().
		State(stateLoaded).
			On(eventLoad).Target(stateLoading).
			On(eventInvalidate).Target(statePending).
			Done().
		State(stateError).
			On(eventLoad).Target(stateLoading).
			On(eventInvalidate).Target(statePending).
			Done().
		Build()
}

// Tracker follows one resource through the lifecycle machine.
type Tracker struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[*Context]
}

// NewTracker creates a started tracker for the given resource ID.
func NewTracker(machine *statekit.MachineConfig[*Context], id string) *Tracker {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = &Context{ID: id}
	})
	interp.Start()
	return &Tracker{interp: interp}
}

// State returns the current lifecycle state.
func (t *Tracker) State() resource.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return resource.State(t.interp.State().Value)
}

// Begin transitions to loading. Valid from pending, loaded, and error.
func (t *Tracker) Begin() error {
	return t.send(eventLoad, statePending, stateLoaded, stateError)
}

// Succeed transitions loading to loaded.
func (t *Tracker) Succeed() error {
	return t.send(eventSucceed, stateLoading)
}

// Fail transitions loading to error.
func (t *Tracker) Fail() error {
	return t.send(eventFail, stateLoading)
}

// Invalidate resets the lifecycle back to pending. A pending resource
// stays pending.
func (t *Tracker) Invalidate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if statekit.StateID(t.interp.State().Value) == statePending {
		return nil
	}
	t.interp.Send(statekit.Event{Type: eventInvalidate})
	return nil
}

// Stop stops the underlying interpreter.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interp.Stop()
}

// send dispatches an event after checking the current state is one of
// the allowed sources. statekit panics on undeclared events, so the
// check runs first.
func (t *Tracker) send(event statekit.EventType, from ...statekit.StateID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := statekit.StateID(t.interp.State().Value)
	for _, s := range from {
		if current == s {
			t.interp.Send(statekit.Event{Type: event})
			return nil
		}
	}
	return fmt.Errorf("event %s not valid in state %s", event, current)
}
