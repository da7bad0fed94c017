package bpmn

import (
	"context"
	"fmt"
	"sync"
)

// JobContext is what a delegate function sees about the service task it is
// asked to execute.
type JobContext struct {
	InstanceId string
	ElementId  string
	Variables  map[string]string
}

// DelegateFunc is a registered unit of external work. It returns a JSON-
// shaped result object whose top-level keys are merged into the instance's
// variables, or an error that fails the task.
type DelegateFunc func(ctx context.Context, job JobContext) (map[string]interface{}, error)

// DelegateRegistry resolves a ServiceTask's selector (class_name,
// expression, or topic — checked in that precedence order) to a
// registered DelegateFunc. Registration happens once at construction time;
// lookups are safe for concurrent use.
type DelegateRegistry struct {
	mu        sync.RWMutex
	delegates map[string]DelegateFunc
}

func NewDelegateRegistry() *DelegateRegistry {
	return &DelegateRegistry{delegates: make(map[string]DelegateFunc)}
}

// Register binds name (a class_name, expression, or topic value) to fn.
// Re-registering a name overwrites the previous binding.
func (r *DelegateRegistry) Register(name string, fn DelegateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegates[name] = fn
}

// Resolve looks up the handler for name, returning ok=false if unregistered.
func (r *DelegateRegistry) Resolve(name string) (DelegateFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.delegates[name]
	return fn, ok
}

// Execute runs the delegate bound to name, or fails with DelegateFailure
// if none is registered.
func (r *DelegateRegistry) Execute(ctx context.Context, name string, job JobContext) (map[string]interface{}, error) {
	fn, ok := r.Resolve(name)
	if !ok {
		return nil, newEngineErrorf(KindDelegateFailure, "no delegate registered for %q", name)
	}
	result, err := fn(ctx, job)
	if err != nil {
		return nil, wrapEngineError(KindDelegateFailure, err, "delegate %q failed", name)
	}
	return result, nil
}

// EchoDelegate is a trivial fixture delegate that returns its input
// variables unchanged, useful for tests and as a smoke-test registration.
func EchoDelegate(_ context.Context, job JobContext) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(job.Variables))
	for k, v := range job.Variables {
		out[k] = v
	}
	return out, nil
}

// LogDelegate is a trivial fixture delegate that logs nothing back and
// merely succeeds, useful for service tasks whose only purpose is to
// advance the flow.
func LogDelegate(_ context.Context, _ JobContext) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

var errNoDelegateSelector = fmt.Errorf("service task has no class_name, expression, or topic set")
