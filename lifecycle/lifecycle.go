// Package lifecycle owns process-wide startup and shutdown concerns: CPU
// pinning for the dispatch loop and each worker, and the join sequence
// that brings every goroutine down in order when the node is stopped.
package lifecycle

import (
	"runtime"
	"sync"

	"github.com/marsleezm/spec-calvin/configs"
	"golang.org/x/sys/unix"
)

// Stoppable is anything lifecycle can ask to stop and then wait on.
type Stoppable interface {
	Stop()
}

// Supervisor sequences startup/shutdown for one node's goroutines.
type Supervisor struct {
	mu        sync.Mutex
	stoppable []Stoppable
	wg        sync.WaitGroup
}

// NewSupervisor returns an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Track registers a component to be stopped on Shutdown, and a goroutine
// whose exit the supervisor should wait for.
func (s *Supervisor) Track(c Stoppable, done func()) {
	s.mu.Lock()
	s.stoppable = append(s.stoppable, c)
	s.mu.Unlock()
	if done != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			done()
		}()
	}
}

// Shutdown stops every tracked component and waits for their goroutines
// to exit.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	targets := append([]Stoppable(nil), s.stoppable...)
	s.mu.Unlock()
	for _, c := range targets {
		c.Stop()
	}
	s.wg.Wait()
}

// PinToCPU locks the calling goroutine to its current OS thread and, if
// configs.PinCPU is enabled, pins that thread to cpuID. Failing to set
// affinity is logged, never fatal: the scheduler still runs correctly
// without pinning, just with more cache-line bouncing.
func PinToCPU(cpuID int) {
	runtime.LockOSThread()
	if !configs.PinCPU {
		return
	}
	var mask unix.CPUSet
	mask.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		configs.Warn(false, "failed to pin to CPU: "+err.Error())
	}
}

// RunPinned launches fn in its own goroutine pinned to cpuID, registering
// it with the supervisor so Shutdown waits for it to return. fn must exit
// promptly once stop fires.
func (s *Supervisor) RunPinned(cpuID int, stop Stoppable, fn func()) {
	s.Track(stop, func() {
		PinToCPU(cpuID)
		defer runtime.UnlockOSThread()
		fn()
	})
}
