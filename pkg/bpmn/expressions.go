package bpmn

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
)

// ExpressionEvaluator is the extension point consumed by ExclusiveGateway
// condition evaluation. A conforming implementation evaluates expr against
// the instance's variables and returns whether the result is truthy; there
// is no form that returns the expression's value as a string, and no
// variable interpolation goes through it.
type ExpressionEvaluator interface {
	Evaluate(expr string, variables map[string]string) (bool, error)
}

// degenerateEvaluator is used when no evaluator is configured: only an
// empty condition string is considered truthy, per the specified fallback
// mode.
type degenerateEvaluator struct{}

func (degenerateEvaluator) Evaluate(expr string, _ map[string]string) (bool, error) {
	return expr == "", nil
}

const (
	maxVmPoolSize = 10
	minVmPoolSize = 2
)

// GojaEvaluator evaluates conditions as JavaScript expression bodies
// against a pool of embedded ECMAScript VMs, with instance variables
// bound as globals. Building a goja.Runtime is not free, and conditions
// are evaluated on every exclusive-gateway visit, so VMs are pooled and
// reused rather than constructed per call; a VM is never shared between
// two concurrent evaluations.
type GojaEvaluator struct {
	pool        chan *goja.Runtime
	activeCount int32
	activeMu    sync.Mutex
}

func NewGojaEvaluator() *GojaEvaluator {
	e := &GojaEvaluator{pool: make(chan *goja.Runtime, maxVmPoolSize)}
	for i := 0; i < minVmPoolSize; i++ {
		e.pool <- goja.New()
		atomic.AddInt32(&e.activeCount, 1)
	}
	return e
}

func (e *GojaEvaluator) acquire() *goja.Runtime {
	select {
	case vm := <-e.pool:
		return vm
	default:
	}
	e.activeMu.Lock()
	var vm *goja.Runtime
	if atomic.LoadInt32(&e.activeCount) < maxVmPoolSize {
		vm = goja.New()
		atomic.AddInt32(&e.activeCount, 1)
	}
	e.activeMu.Unlock()
	if vm == nil {
		vm = <-e.pool
	}
	return vm
}

func (e *GojaEvaluator) release(vm *goja.Runtime) {
	select {
	case e.pool <- vm:
	default:
		atomic.AddInt32(&e.activeCount, -1)
	}
}

func (e *GojaEvaluator) Evaluate(expr string, variables map[string]string) (bool, error) {
	if expr == "" {
		return true, nil
	}
	vm := e.acquire()
	defer e.release(vm)

	for k, v := range variables {
		if err := vm.Set(k, coerceForJS(v)); err != nil {
			return false, &EngineError{Kind: KindMalformedProcess, Message: "bind variable " + k, cause: err}
		}
	}
	val, err := vm.RunString(expr)
	if err != nil {
		return false, &EngineError{Kind: KindMalformedProcess, Message: "evaluate expression " + expr, cause: err}
	}
	return val.ToBoolean(), nil
}

// coerceForJS gives numeric/boolean-looking variable strings their natural
// JS type so conditions like `days > 3` work against variables stored as
// "5" rather than comparing strings.
func coerceForJS(v string) interface{} {
	if v == "true" {
		return true
	}
	if v == "false" {
		return false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
