// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs independent tasks with a soft limit on the number of goroutines.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Should be signaled whenever numRunning is decreased.
	numRunning     int
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	w := &Pool{}
	w.maxParallelism = runtime.NumCPU()
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0)
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism is a soft-target for parallelism.
// If set to 0 parallelism is disabled and tasks run inline.
// If set to -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism.
//
// You should only change the parallelism before any workers start running. If changed during the execution
// the behavior is undefined.
func (w *Pool) SetMaxParallelism(maxParallelism int) *Pool {
	w.maxParallelism = maxParallelism
	return w
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available to run the task, and starts it in a goroutine.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.IsUnlimited() {
		go task()
		return
	} else if w.maxParallelism == 0 {
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// Run calls fn(i) for i in [0, numTasks), using the pool's workers, and waits for all of them to finish.
func (w *Pool) Run(numTasks int, fn func(i int)) {
	var wg sync.WaitGroup
	wg.Add(numTasks)
	for ii := range numTasks {
		w.WaitToStart(func() {
			defer wg.Done()
			fn(ii)
		})
	}
	wg.Wait()
}
