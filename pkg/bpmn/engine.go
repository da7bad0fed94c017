// Package bpmn implements the executor and engine façade: the interpreter
// that drives a parsed process definition through its graph against a
// durable ProcessInstance, and the small serialized API that coordinates
// parsing, execution, and storage behind an instance cache.
package bpmn

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bpmnkit/engine/pkg/bpmn/model/bpmn20"
	"github.com/bpmnkit/engine/pkg/bpmn/parser"
	"github.com/bpmnkit/engine/pkg/bpmn/runtime"
	"github.com/bpmnkit/engine/pkg/ptr"
	"github.com/bpmnkit/engine/pkg/storage"
)

// Engine is the façade: it owns the executor, the store, and the
// per-instance locking/caching that lets advances on different instances
// run fully in parallel while serializing at most one active advance per
// instance.
type Engine struct {
	store     storage.Store
	executor  *Executor
	logger    *zap.Logger
	metrics   *Metrics
	delegates *DelegateRegistry
	locks     *runningInstances

	evaluatorOverride ExpressionEvaluator
	cacheCapacity     int
}

// EngineOption configures an Engine at construction time, in place of the
// package-level singletons (delegate factories, a static process cache)
// the interpreter this engine is modeled on used to rely on.
type EngineOption func(*Engine)

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(metrics *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = metrics }
}

func WithExpressionEvaluator(evaluator ExpressionEvaluator) EngineOption {
	return func(e *Engine) { e.evaluatorOverride = evaluator }
}

func WithDelegate(name string, fn DelegateFunc) EngineOption {
	return func(e *Engine) { e.delegates.Register(name, fn) }
}

func WithInstanceCacheCapacity(n int) EngineOption {
	return func(e *Engine) { e.cacheCapacity = n }
}

func NewEngine(store storage.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:         store,
		logger:        zap.NewNop(),
		delegates:     NewDelegateRegistry(),
		cacheCapacity: 1024,
	}
	for _, opt := range opts {
		opt(e)
	}
	evaluator := e.evaluatorOverride
	if evaluator == nil {
		evaluator = NewGojaEvaluator()
	}
	e.locks = newRunningInstances(e.cacheCapacity)
	e.executor = NewExecutor(store, evaluator, e.delegates, e.logger, e.metrics)
	return e
}

// StartProcess deploys bpmnXml as a new version of its process definition
// and starts a new instance of it with initData merged into the initial
// variable set.
func (e *Engine) StartProcess(ctx context.Context, bpmnXml []byte, initDataJson []byte) (string, error) {
	process, err := parser.Parse(bpmnXml)
	if err != nil {
		return "", e.classifyParseErr(err)
	}
	if err := e.store.SaveProcessDefinition(ctx, runtime.ProcessDefinition{
		Id: process.Id, BpmnXml: bpmnXml, DeployedAt: time.Now(),
	}); err != nil {
		return "", wrapEngineError(KindStoreError, err, "save process definition %q", process.Id)
	}
	return e.startInstance(ctx, process, initDataJson)
}

// StartProcessFromFile reads bpmnXml from path and otherwise behaves like
// StartProcess.
func (e *Engine) StartProcessFromFile(ctx context.Context, path string, initDataJson []byte) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", wrapEngineError(KindValidationError, err, "read definition file %q", path)
	}
	return e.StartProcess(ctx, data, initDataJson)
}

// StartProcessByID starts a new instance of the latest deployed version of
// processId, loading the definition from the store instead of taking raw
// BPMN XML directly.
func (e *Engine) StartProcessByID(ctx context.Context, processId string, initDataJson []byte) (string, error) {
	process, err := e.loadProcess(ctx, processId)
	if err != nil {
		return "", err
	}
	return e.startInstance(ctx, process, initDataJson)
}

func (e *Engine) startInstance(ctx context.Context, process *bpmn20.Process, initDataJson []byte) (string, error) {
	var initData map[string]interface{}
	if len(initDataJson) > 0 {
		if err := json.Unmarshal(initDataJson, &initData); err != nil {
			return "", wrapEngineError(KindValidationError, err, "decode init data")
		}
	}
	instance := &runtime.ProcessInstance{
		InstanceId:     uuid.NewString(),
		ProcessId:      process.Id,
		CurrentElement: process.StartEventId,
		Variables:      runtime.Flatten(initData),
		Status:         runtime.StatusRunning,
		CreatedAt:      time.Now(),
	}
	if err := e.store.SaveProcessInstance(ctx, *instance); err != nil {
		return "", wrapEngineError(KindStoreError, err, "save new instance %q", instance.InstanceId)
	}
	if e.metrics != nil {
		e.metrics.InstancesStarted.Inc()
		e.metrics.ActiveInstances.Inc()
	}

	var advanceErr error
	err := e.locks.withInstanceLock(instance.InstanceId, func() error {
		advanceErr = e.executor.Advance(ctx, process, instance)
		return nil
	})
	if err != nil {
		return instance.InstanceId, err
	}
	return instance.InstanceId, advanceErr
}

// CompleteTask resumes the given task's instance: it must currently be
// SUSPENDED_AT_USER_TASK with exactly this task outstanding (either as the
// sole suspension, or as one of several branches suspended under a
// parallel-gateway fork). dataJson's top-level keys are merged into the
// task's variables before execution continues.
func (e *Engine) CompleteTask(ctx context.Context, instanceId, taskId string, dataJson []byte) error {
	return e.locks.withInstanceLock(instanceId, func() error {
		instance, err := e.store.LoadProcessInstance(ctx, instanceId)
		if err != nil {
			return wrapEngineError(KindNotFound, err, "instance %q", instanceId)
		}
		if instance.Status != runtime.StatusSuspendedAtUserTask {
			return newEngineErrorf(KindConflict, "instance %q is not suspended at a user task (status=%s)", instanceId, instance.Status)
		}
		task, err := e.store.LoadUserTask(ctx, instanceId, taskId)
		if err != nil || task.Status != runtime.UserTaskPending {
			return newEngineErrorf(KindNotFound, "no pending user task %q for instance %q", taskId, instanceId)
		}

		process, err := e.loadProcess(ctx, instance.ProcessId)
		if err != nil {
			return err
		}

		task.Status = runtime.UserTaskCompleted
		task.CompletedAt = ptr.To(time.Now())

		if task.JoinTarget == "" {
			if err := runtime.MergeJSON(instance.Variables, dataJson); err != nil {
				return wrapEngineError(KindValidationError, err, "decode completion data for task %q", taskId)
			}
			out := process.OutgoingFlows(taskId)
			if len(out) != 1 {
				return newEngineErrorf(KindMalformedProcess, "user task %q must have exactly one outgoing flow", taskId)
			}
			instance.CurrentElement = process.GetFlow(out[0]).TargetRef
			instance.Status = runtime.StatusRunning
			tx := e.store.NewBatch()
			tx.SaveUserTask(ctx, task)
			tx.SaveProcessInstance(ctx, instance)
			if err := tx.Flush(ctx); err != nil {
				return wrapEngineError(KindStoreError, err, "persist instance %q before resuming", instanceId)
			}
			return e.executor.Advance(ctx, process, &instance)
		}

		if err := e.store.SaveUserTask(ctx, task); err != nil {
			return wrapEngineError(KindStoreError, err, "complete user task %q", taskId)
		}

		if task.VariablesSnapshot == nil {
			task.VariablesSnapshot = runtime.Clone(instance.Variables)
		}
		if err := runtime.MergeJSON(task.VariablesSnapshot, dataJson); err != nil {
			return wrapEngineError(KindValidationError, err, "decode completion data for task %q", taskId)
		}
		return e.executor.ResumeBranch(ctx, process, &instance, task)
	})
}

// SignalEvent is a named extension point only: it checks that the
// instance exists and logs the instance and event ids. dataJson is not
// persisted, and the instance is not advanced. Message/signal correlation
// across instances is out of scope for this engine.
func (e *Engine) SignalEvent(ctx context.Context, instanceId, eventId string, dataJson []byte) error {
	return e.locks.withInstanceLock(instanceId, func() error {
		if _, err := e.store.LoadProcessInstance(ctx, instanceId); err != nil {
			return wrapEngineError(KindNotFound, err, "instance %q", instanceId)
		}
		e.logger.Info("signal received (no-op stub)", zap.String("instanceId", instanceId), zap.String("eventId", eventId))
		return nil
	})
}

func (e *Engine) GetProcessState(ctx context.Context, instanceId string) (runtime.Snapshot, error) {
	instance, err := e.store.LoadProcessInstance(ctx, instanceId)
	if err != nil {
		return runtime.Snapshot{}, wrapEngineError(KindNotFound, err, "instance %q", instanceId)
	}
	return instance.ToSnapshot(), nil
}

func (e *Engine) GetActiveTasks(ctx context.Context, instanceId string) ([]runtime.UserTaskRecord, error) {
	tasks, err := e.store.ListPendingUserTasks(ctx, instanceId)
	if err != nil {
		return nil, wrapEngineError(KindStoreError, err, "list pending tasks for %q", instanceId)
	}
	return tasks, nil
}

func (e *Engine) SuspendProcess(ctx context.Context, instanceId string) error {
	return e.transition(ctx, instanceId, func(inst *runtime.ProcessInstance) error {
		if inst.Status != runtime.StatusRunning && inst.Status != runtime.StatusSuspendedAtUserTask {
			return newEngineErrorf(KindConflict, "instance %q cannot be suspended from status %s", instanceId, inst.Status)
		}
		inst.Status = runtime.StatusSuspendedAdmin
		return nil
	})
}

func (e *Engine) ResumeProcess(ctx context.Context, instanceId string) error {
	var process *bpmn20.Process
	err := e.transition(ctx, instanceId, func(inst *runtime.ProcessInstance) error {
		if inst.Status != runtime.StatusSuspendedAdmin {
			return newEngineErrorf(KindConflict, "instance %q is not administratively suspended", instanceId)
		}
		p, err := e.loadProcess(ctx, inst.ProcessId)
		if err != nil {
			return err
		}
		process = p
		inst.Status = runtime.StatusRunning
		return nil
	})
	if err != nil {
		return err
	}
	return e.locks.withInstanceLock(instanceId, func() error {
		instance, err := e.store.LoadProcessInstance(ctx, instanceId)
		if err != nil {
			return wrapEngineError(KindNotFound, err, "instance %q", instanceId)
		}
		return e.executor.Advance(ctx, process, &instance)
	})
}

// TerminateProcess cancels the instance. Terminating an already-terminal
// instance is a no-op, per the idempotent-terminate invariant.
func (e *Engine) TerminateProcess(ctx context.Context, instanceId string) error {
	return e.transition(ctx, instanceId, func(inst *runtime.ProcessInstance) error {
		if inst.Status == runtime.StatusTerminated || inst.Status == runtime.StatusCompleted {
			return nil
		}
		// a FAILED instance already left the active gauge in Executor.fail
		wasActive := inst.Status != runtime.StatusFailed
		inst.Status = runtime.StatusTerminated
		inst.CompletedAt = ptr.To(time.Now())
		if e.metrics != nil && wasActive {
			e.metrics.ActiveInstances.Dec()
		}
		return nil
	})
}

func (e *Engine) GetActiveInstances(ctx context.Context) ([]string, error) {
	ids, err := e.store.ListActiveInstanceIds(ctx)
	if err != nil {
		return nil, wrapEngineError(KindStoreError, err, "list active instances")
	}
	return ids, nil
}

func (e *Engine) IsProcessActive(ctx context.Context, instanceId string) (bool, error) {
	instance, err := e.store.LoadProcessInstance(ctx, instanceId)
	if err != nil {
		return false, wrapEngineError(KindNotFound, err, "instance %q", instanceId)
	}
	return instance.Status == runtime.StatusRunning || instance.Status == runtime.StatusSuspendedAtUserTask, nil
}

func (e *Engine) transition(ctx context.Context, instanceId string, mutate func(*runtime.ProcessInstance) error) error {
	return e.locks.withInstanceLock(instanceId, func() error {
		instance, err := e.store.LoadProcessInstance(ctx, instanceId)
		if err != nil {
			return wrapEngineError(KindNotFound, err, "instance %q", instanceId)
		}
		if err := mutate(&instance); err != nil {
			return err
		}
		if err := e.store.SaveProcessInstance(ctx, instance); err != nil {
			return wrapEngineError(KindStoreError, err, "persist instance %q", instanceId)
		}
		return nil
	})
}

func (e *Engine) loadProcess(ctx context.Context, processId string) (*bpmn20.Process, error) {
	def, err := e.store.LoadProcessDefinition(ctx, processId)
	if err != nil {
		return nil, wrapEngineError(KindNotFound, err, "process definition %q", processId)
	}
	process, err := parser.Parse(def.BpmnXml)
	if err != nil {
		return nil, e.classifyParseErr(err)
	}
	return process, nil
}

func (e *Engine) classifyParseErr(err error) error {
	switch err.(type) {
	case *parser.InvalidDefinitionError:
		return wrapEngineError(KindInvalidDefinition, err, "parse process definition")
	default:
		return wrapEngineError(KindParseError, err, "parse process definition")
	}
}
