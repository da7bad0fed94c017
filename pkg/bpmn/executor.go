package bpmn

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bpmnkit/engine/pkg/bpmn/model/bpmn20"
	"github.com/bpmnkit/engine/pkg/bpmn/runtime"
	"github.com/bpmnkit/engine/pkg/ptr"
	"github.com/bpmnkit/engine/pkg/storage"
)

// Executor interprets a process graph against an instance's execution
// state: an eager, depth-first, advance-until-suspension loop. It holds no
// per-instance state of its own — everything it needs to resume comes from
// the persisted ProcessInstance plus the immutable Process definition,
// per the suspension/re-entry invariant.
type Executor struct {
	evaluator ExpressionEvaluator
	delegates *DelegateRegistry
	store     storage.Store
	logger    *zap.Logger
	metrics   *Metrics
	clock     func() time.Time
}

func NewExecutor(store storage.Store, evaluator ExpressionEvaluator, delegates *DelegateRegistry, logger *zap.Logger, metrics *Metrics) *Executor {
	if evaluator == nil {
		evaluator = degenerateEvaluator{}
	}
	return &Executor{
		evaluator: evaluator,
		delegates: delegates,
		store:     store,
		logger:    logger,
		metrics:   metrics,
		clock:     time.Now,
	}
}

func (e *Executor) now() time.Time { return e.clock() }

type stepOutcome int

const (
	stepContinue stepOutcome = iota
	stepSuspendUserTask
	stepCompleted
	stepJoinArrived
	stepFork
)

// stepElement dispatches a single node by its type tag, the tagged-variant
// dispatch called for in the redesign notes: one switch, no type
// downcasting. stopAt, when non-empty, names a ParallelGateway join this
// call is racing toward (used only for branch walks from runFork and
// ResumeBranch); at top level stopAt is empty, so a ParallelGateway there
// either forks (more than one outgoing flow) or is passed through.
func (e *Executor) stepElement(ctx context.Context, process *bpmn20.Process, vars map[string]string, elementId string, stopAt string, instanceId string, inBranch bool) (next string, outcome stepOutcome, taskId string, err error) {
	el := process.GetElement(elementId)
	if el == nil {
		return "", 0, "", newEngineErrorf(KindMalformedProcess, "current element %q does not exist in process %q", elementId, process.Id)
	}

	switch el.Type {
	case bpmn20.ElementTypeStartEvent:
		out := process.OutgoingFlows(elementId)
		if len(out) != 1 {
			return "", 0, "", newEngineErrorf(KindMalformedProcess, "start event %q must have exactly one outgoing flow, has %d", elementId, len(out))
		}
		return process.GetFlow(out[0]).TargetRef, stepContinue, "", nil

	case bpmn20.ElementTypeEndEvent:
		return "", stepCompleted, "", nil

	case bpmn20.ElementTypeUserTask:
		return "", stepSuspendUserTask, elementId, nil

	case bpmn20.ElementTypeServiceTask:
		out := process.OutgoingFlows(elementId)
		if len(out) != 1 {
			return "", 0, "", newEngineErrorf(KindMalformedProcess, "service task %q must have exactly one outgoing flow, has %d", elementId, len(out))
		}
		kind, name := el.ServiceTask.DelegateSelector()
		if kind == "" {
			return "", 0, "", wrapEngineError(KindMalformedProcess, errNoDelegateSelector, "service task %q", elementId)
		}
		result, derr := e.delegates.Execute(ctx, name, JobContext{InstanceId: instanceId, ElementId: elementId, Variables: runtime.Clone(vars)})
		if derr != nil {
			return "", 0, "", derr
		}
		runtime.Merge(vars, result)
		return process.GetFlow(out[0]).TargetRef, stepContinue, "", nil

	case bpmn20.ElementTypeExclusiveGateway:
		flowId, ok, everr := resolveExclusiveFlow(process, e.evaluator, elementId, vars)
		if everr != nil {
			return "", 0, "", wrapEngineError(KindMalformedProcess, everr, "evaluate conditions at exclusive gateway %q", elementId)
		}
		if !ok {
			return "", 0, "", newEngineErrorf(KindMalformedProcess, "exclusive gateway %q: no condition matched and no default flow set", elementId)
		}
		return process.GetFlow(flowId).TargetRef, stepContinue, "", nil

	case bpmn20.ElementTypeParallelGateway:
		if elementId == stopAt {
			return "", stepJoinArrived, "", nil
		}
		out := process.OutgoingFlows(elementId)
		if len(out) > 1 {
			if inBranch {
				return "", 0, "", newEngineErrorf(KindMalformedProcess, "nested parallel gateway fork %q inside a branch is not supported", elementId)
			}
			return "", stepFork, elementId, nil
		}
		// pass-through gateway (single outgoing flow; incoming count not checked)
		if len(out) != 1 {
			return "", 0, "", newEngineErrorf(KindMalformedProcess, "parallel gateway %q has no outgoing flow", elementId)
		}
		return process.GetFlow(out[0]).TargetRef, stepContinue, "", nil

	default:
		return "", 0, "", newEngineErrorf(KindMalformedProcess, "element %q has unrecognized type %q", elementId, el.Type)
	}
}

// Advance runs instance forward from its CurrentElement until user-task
// suspension, an end event, termination, or an error. On return, the
// persisted (status, current_element, variables) tuple is sufficient to
// resume the instance, per the suspension invariant: no blocked branch
// survives past this call.
func (e *Executor) Advance(ctx context.Context, process *bpmn20.Process, instance *runtime.ProcessInstance) error {
	if instance.Status != runtime.StatusRunning {
		return nil
	}
	cur := instance.CurrentElement
	for {
		next, outcome, taskId, err := e.stepElement(ctx, process, instance.Variables, cur, "", instance.InstanceId, false)
		if err != nil {
			return e.fail(ctx, instance, cur, err)
		}
		switch outcome {
		case stepContinue:
			cur = next
			instance.CurrentElement = cur
			if err := e.store.SaveProcessInstance(ctx, *instance); err != nil {
				return wrapEngineError(KindStoreError, err, "persist instance %q after advancing to %q", instance.InstanceId, cur)
			}
			continue

		case stepFork:
			joinId, remaining, ferr := e.runFork(ctx, process, instance.Variables, taskId, instance.InstanceId)
			if ferr != nil {
				return e.fail(ctx, instance, taskId, ferr)
			}
			if remaining > 0 {
				if instance.PendingJoins == nil {
					instance.PendingJoins = map[string]int{}
				}
				instance.PendingJoins[joinId] = remaining
				instance.CurrentElement = taskId // the fork gateway id, as a position marker
				instance.Status = runtime.StatusSuspendedAtUserTask
				if err := e.store.SaveProcessInstance(ctx, *instance); err != nil {
					return wrapEngineError(KindStoreError, err, "persist suspended instance %q", instance.InstanceId)
				}
				return nil
			}
			joinOut := process.OutgoingFlows(joinId)
			if len(joinOut) != 1 {
				return e.fail(ctx, instance, joinId, newEngineErrorf(KindMalformedProcess, "join gateway %q must have exactly one outgoing flow, has %d", joinId, len(joinOut)))
			}
			cur = process.GetFlow(joinOut[0]).TargetRef
			instance.CurrentElement = cur
			if err := e.store.SaveProcessInstance(ctx, *instance); err != nil {
				return wrapEngineError(KindStoreError, err, "persist instance %q after join release", instance.InstanceId)
			}
			continue

		case stepSuspendUserTask:
			instance.CurrentElement = taskId
			instance.Status = runtime.StatusSuspendedAtUserTask
			tx := e.store.NewBatch()
			tx.SaveUserTask(ctx, runtime.UserTaskRecord{
				InstanceId:        instance.InstanceId,
				TaskId:            taskId,
				FormKey:           userTaskFormKey(process, taskId),
				Status:            runtime.UserTaskPending,
				CreatedAt:         e.now(),
				VariablesSnapshot: nil,
			})
			tx.SaveProcessInstance(ctx, *instance)
			if err := tx.Flush(ctx); err != nil {
				return wrapEngineError(KindStoreError, err, "persist suspended instance %q", instance.InstanceId)
			}
			return nil

		case stepCompleted:
			instance.CurrentElement = cur
			instance.Status = runtime.StatusCompleted
			instance.CompletedAt = ptr.To(e.now())
			if err := e.store.SaveProcessInstance(ctx, *instance); err != nil {
				return wrapEngineError(KindStoreError, err, "persist completed instance %q", instance.InstanceId)
			}
			if e.metrics != nil {
				e.metrics.InstancesCompleted.Inc()
				e.metrics.ActiveInstances.Dec()
			}
			return nil

		case stepJoinArrived:
			// stepElement reports stepJoinArrived only when elementId equals
			// stopAt, which Advance always passes empty, and ResumeBranch
			// moves CurrentElement past the join before calling Advance. This
			// case treats the element as a pass-through to its outgoing target.
			out := process.OutgoingFlows(cur)
			if len(out) != 1 {
				return e.fail(ctx, instance, cur, newEngineErrorf(KindMalformedProcess, "join %q must have exactly one outgoing flow", cur))
			}
			cur = process.GetFlow(out[0]).TargetRef
			instance.CurrentElement = cur
			if err := e.store.SaveProcessInstance(ctx, *instance); err != nil {
				return wrapEngineError(KindStoreError, err, "persist instance %q after join pass-through", instance.InstanceId)
			}
			continue
		}
	}
}

func (e *Executor) fail(ctx context.Context, instance *runtime.ProcessInstance, at string, cause error) error {
	instance.CurrentElement = at
	instance.Status = runtime.StatusFailed
	tx := e.store.NewBatch()
	tx.SaveError(ctx, runtime.ErrorRecord{
		InstanceId: instance.InstanceId,
		Message:    cause.Error(),
		OccurredAt: e.now(),
	})
	tx.SaveProcessInstance(ctx, *instance)
	if serr := tx.Flush(ctx); serr != nil {
		e.logger.Error("failed to persist failure state", zap.Error(serr), zap.String("instanceId", instance.InstanceId))
	}
	if e.metrics != nil {
		e.metrics.InstancesFailed.Inc()
		e.metrics.ActiveInstances.Dec()
	}
	return cause
}

// ResumeBranch continues a single fork branch that had suspended at
// taskId, after that task's completion data has been merged into its
// variables snapshot. It walks forward until the branch arrives at its
// join (merging into and possibly releasing the parent instance) or
// suspends again at a further UserTask.
func (e *Executor) ResumeBranch(ctx context.Context, process *bpmn20.Process, instance *runtime.ProcessInstance, task runtime.UserTaskRecord) error {
	out := process.OutgoingFlows(task.TaskId)
	if len(out) != 1 {
		return e.fail(ctx, instance, task.TaskId, newEngineErrorf(KindMalformedProcess, "user task %q must have exactly one outgoing flow", task.TaskId))
	}
	outcome := e.runBranch(ctx, process, task.VariablesSnapshot, process.GetFlow(out[0]).TargetRef, task.JoinTarget, instance.InstanceId)
	if outcome.err != nil {
		return e.fail(ctx, instance, task.JoinTarget, outcome.err)
	}
	if outcome.suspendedTask != "" {
		// this branch parked at a further user task; nothing else to do,
		// persistence already happened inside runBranch.
		return nil
	}

	for k, v := range outcome.vars {
		instance.Variables[k] = v
	}
	remaining := instance.PendingJoins[task.JoinTarget] - 1
	if remaining > 0 {
		instance.PendingJoins[task.JoinTarget] = remaining
		if err := e.store.SaveProcessInstance(ctx, *instance); err != nil {
			return wrapEngineError(KindStoreError, err, "persist instance %q after branch arrival", instance.InstanceId)
		}
		return nil
	}

	delete(instance.PendingJoins, task.JoinTarget)
	joinOut := process.OutgoingFlows(task.JoinTarget)
	if len(joinOut) != 1 {
		return e.fail(ctx, instance, task.JoinTarget, newEngineErrorf(KindMalformedProcess, "join %q must have exactly one outgoing flow", task.JoinTarget))
	}
	instance.CurrentElement = process.GetFlow(joinOut[0]).TargetRef
	instance.Status = runtime.StatusRunning
	if err := e.store.SaveProcessInstance(ctx, *instance); err != nil {
		return wrapEngineError(KindStoreError, err, "persist instance %q after join release", instance.InstanceId)
	}
	return e.Advance(ctx, process, instance)
}
