package bpmn

import (
	"context"
	"sync"

	"github.com/bpmnkit/engine/pkg/bpmn/model/bpmn20"
	"github.com/bpmnkit/engine/pkg/bpmn/runtime"
)

// findMatchingJoin locates the ParallelGateway a fork's branches must
// converge on. The process model does not record fork/join pairing
// explicitly (spec: "not inferred from structure"); this walks forward
// from each outgoing branch until it hits a ParallelGateway with more than
// one incoming flow, and requires every branch to agree on the same one.
// Nested forks (a fork reachable from within another fork's branch) are
// not supported by this walk and are rejected as MalformedProcess by the
// caller; see DESIGN.md for why this scope was drawn here.
func findMatchingJoin(process *bpmn20.Process, forkId string) (string, bool) {
	var joinId string
	for _, fid := range process.OutgoingFlows(forkId) {
		flow := process.GetFlow(fid)
		found, ok := walkToJoin(process, flow.TargetRef, map[string]bool{})
		if !ok {
			return "", false
		}
		if joinId == "" {
			joinId = found
		} else if joinId != found {
			return "", false
		}
	}
	return joinId, joinId != ""
}

func walkToJoin(process *bpmn20.Process, elementId string, visited map[string]bool) (string, bool) {
	if visited[elementId] {
		return "", false
	}
	visited[elementId] = true
	el := process.GetElement(elementId)
	if el == nil {
		return "", false
	}
	if el.Type == bpmn20.ElementTypeParallelGateway && len(process.IncomingFlows(elementId)) > 1 {
		return elementId, true
	}
	out := process.OutgoingFlows(elementId)
	if len(out) != 1 {
		return "", false
	}
	return walkToJoin(process, process.GetFlow(out[0]).TargetRef, visited)
}

type branchOutcome struct {
	vars          map[string]string
	arrived       bool
	suspendedTask string
	err           error
}

// runFork spawns one goroutine per outgoing flow of forkId, each walking
// forward over a deep copy of vars until it reaches the matching join or
// suspends at a UserTask (persisting that branch's position as a
// UserTaskRecord so it can be resumed independently later). Variables of
// branches that arrived are merged into vars here, in fork-outgoing order.
// It returns the join's id and the number of branches still outstanding;
// if remaining is zero, the caller continues execution past the join.
func (e *Executor) runFork(ctx context.Context, process *bpmn20.Process, vars map[string]string, forkId string, instanceId string) (joinId string, remaining int, err error) {
	joinId, ok := findMatchingJoin(process, forkId)
	if !ok {
		return "", 0, newEngineErrorf(KindMalformedProcess, "fork %q has no reachable matching join (a branch ends without converging, or ambiguous joins)", forkId)
	}

	outgoing := process.OutgoingFlows(forkId)
	results := make([]branchOutcome, len(outgoing))
	var wg sync.WaitGroup
	for i, fid := range outgoing {
		wg.Add(1)
		go func(i int, fid string) {
			defer wg.Done()
			flow := process.GetFlow(fid)
			results[i] = e.runBranch(ctx, process, runtime.Clone(vars), flow.TargetRef, joinId, instanceId)
		}(i, fid)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return joinId, 0, r.err
		}
	}
	for _, r := range results {
		if r.arrived {
			for k, v := range r.vars {
				vars[k] = v
			}
		} else {
			remaining++
		}
	}
	return joinId, remaining, nil
}

// runBranch walks a single fork branch, in isolation from its siblings,
// until it arrives at joinId or suspends. A branch that reaches an end
// event without passing through the join is an unmatched fork and is
// reported as MalformedProcess, per the "no branch silently dropped"
// invariant.
func (e *Executor) runBranch(ctx context.Context, process *bpmn20.Process, vars map[string]string, startElement string, joinId string, instanceId string) branchOutcome {
	cur := startElement
	for {
		next, outcome, taskId, err := e.stepElement(ctx, process, vars, cur, joinId, instanceId, true)
		if err != nil {
			return branchOutcome{err: err}
		}
		switch outcome {
		case stepJoinArrived:
			return branchOutcome{vars: vars, arrived: true}
		case stepSuspendUserTask:
			if err := e.store.SaveUserTask(ctx, runtime.UserTaskRecord{
				InstanceId:        instanceId,
				TaskId:            taskId,
				FormKey:           userTaskFormKey(process, taskId),
				Status:            runtime.UserTaskPending,
				CreatedAt:         e.now(),
				VariablesSnapshot: runtime.Clone(vars),
				JoinTarget:        joinId,
			}); err != nil {
				return branchOutcome{err: wrapEngineError(KindStoreError, err, "persist branch user task %q", taskId)}
			}
			return branchOutcome{suspendedTask: taskId}
		case stepCompleted:
			return branchOutcome{err: newEngineErrorf(KindMalformedProcess, "branch reached end event %q without converging at join %q", cur, joinId)}
		case stepContinue:
			cur = next
		}
	}
}

func userTaskFormKey(process *bpmn20.Process, taskId string) string {
	el := process.GetElement(taskId)
	if el == nil || el.UserTask == nil {
		return ""
	}
	return el.UserTask.FormKey
}
