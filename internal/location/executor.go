package location

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
)

// Executor is the execution context a listener is bound to. Execute must hand
// the task off and return without waiting for it to run.
//
// Execute is called while the publishing source holds its producer lock. An
// executor that runs the task inline deadlocks if the listener publishes to
// the same source from its callback.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc lets callers plug in their own scheduling. The function must
// not run task before returning; see Executor.
type ExecutorFunc func(task func())

func (f ExecutorFunc) Execute(task func()) { f(task) }

// GoExecutor runs every task on its own goroutine. Tasks may run in any
// order, so it is only suitable for listeners that do not care.
type GoExecutor struct{}

func (GoExecutor) Execute(task func()) {
	go runTask("go", task)
}

// SerialExecutor runs tasks one at a time, in submission order, on a single
// goroutine. The queue is unbounded so Execute never blocks.
type SerialExecutor struct {
	name string

	mu       sync.Mutex
	queue    []func()
	closed   bool
	draining bool
	wake     chan struct{}
	done     chan struct{}
}

func NewSerialExecutor(name string) *SerialExecutor {
	e := &SerialExecutor{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *SerialExecutor) Execute(task func()) {
	if e == nil || task == nil {
		return
	}
	e.mu.Lock()
	if e.closed || e.draining {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, task)
	e.mu.Unlock()
	e.signal()
}

func (e *SerialExecutor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued tasks not yet started.
func (e *SerialExecutor) Pending() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Close stops the worker after the task currently running (if any). Queued
// tasks are discarded. Close does not wait for a blocked task to return.
func (e *SerialExecutor) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.queue = nil
	e.mu.Unlock()
	close(e.done)
}

// Drain stops accepting tasks, waits for the queued ones to run, then stops
// the worker. If ctx ends first Drain returns ctx.Err() and the worker keeps
// draining in the background. Only the first call waits.
func (e *SerialExecutor) Drain(ctx context.Context) error {
	if e == nil {
		return nil
	}
	flushed := make(chan struct{})
	e.mu.Lock()
	if e.closed || e.draining {
		e.mu.Unlock()
		return nil
	}
	e.draining = true
	e.queue = append(e.queue, func() { close(flushed) })
	e.mu.Unlock()
	e.signal()

	select {
	case <-flushed:
		e.Close()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *SerialExecutor) run() {
	for {
		select {
		case <-e.done:
			return
		case <-e.wake:
		}
		for {
			e.mu.Lock()
			if e.closed || len(e.queue) == 0 {
				e.mu.Unlock()
				break
			}
			task := e.queue[0]
			e.queue[0] = nil
			e.queue = e.queue[1:]
			e.mu.Unlock()

			runTask(e.name, task)
		}
	}
}

// runTask isolates a panicking task from its executor.
func runTask(name string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("location: task panicked executor=%s: %v\n%s", name, r, debug.Stack())
		}
	}()
	task()
}
