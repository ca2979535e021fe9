// Package workload provides the two concrete session workloads
// spec.md §5 describes, each implementing internal/engine.Workload.
package workload

import (
	"sync"
)

// flagContext is the shared shape behind both workloads: a single
// boolean guarding "have I issued my one async call for this session
// yet", reset on reconnect. Grounded on original_source's
// watcher_data struct (a single `char created`/`char following` field)
// shared by create-ephemerals.c and zk-watchers.c.
type flagContext struct {
	mu  sync.Mutex
	set bool
}

// isSet reports whether the one async call for this session has
// already been issued successfully.
func (f *flagContext) isSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// testAndSet marks the one async call as issued. Callers must only call
// this after the submission itself succeeded, so a failed submission
// leaves the flag clear and the workload retries on the next watcher
// invocation (spec.md §7).
func (f *flagContext) testAndSet() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
}

// Reset implements engine.WorkloadContext.
func (f *flagContext) Reset() {
	f.mu.Lock()
	f.set = false
	f.mu.Unlock()
}
