// Package testutil provides in-memory stores and fixtures for taskflow tests.
package testutil

import (
	"fmt"
	"sync"
)

type fault struct {
	remaining int // negative means every call
	err       error
	panics    bool
}

// Faults injects errors into named store operations
type Faults struct {
	mu    sync.Mutex
	rules map[string]*fault
	calls map[string]int
	hooks map[string]func()
}

// OnCall runs fn at the start of every call of op, before any injected
// fault. fn may block to hold the call open.
func (f *Faults) OnCall(op string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hooks == nil {
		f.hooks = make(map[string]func())
	}
	f.hooks[op] = fn
}

// FailNext makes the next n calls of op return err
func (f *Faults) FailNext(op string, n int, err error) {
	f.set(op, &fault{remaining: n, err: err})
}

// FailAlways makes every call of op return err until Heal is called
func (f *Faults) FailAlways(op string, err error) {
	f.set(op, &fault{remaining: -1, err: err})
}

// PanicNext makes the next call of op panic
func (f *Faults) PanicNext(op string) {
	f.set(op, &fault{remaining: 1, panics: true})
}

// Heal removes every injected fault
func (f *Faults) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// Calls returns how many times op was invoked
func (f *Faults) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Faults) set(op string, rule *fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rules == nil {
		f.rules = make(map[string]*fault)
	}
	f.rules[op] = rule
}

// check counts the call and returns the injected error, if any
func (f *Faults) check(op string) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
	hook := f.hooks[op]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.mu.Lock()
	rule, ok := f.rules[op]
	if !ok || rule.remaining == 0 {
		f.mu.Unlock()
		return nil
	}
	if rule.remaining > 0 {
		rule.remaining--
	}
	err, panics := rule.err, rule.panics
	f.mu.Unlock()

	if panics {
		panic(fmt.Sprintf("injected panic in %s", op))
	}
	return err
}
