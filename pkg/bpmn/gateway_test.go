package bpmn_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpmnkit/engine/pkg/bpmn"
	"github.com/bpmnkit/engine/pkg/bpmn/runtime"
	"github.com/bpmnkit/engine/pkg/storage/inmemory"
)

const forkJoinXml = `<?xml version="1.0"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="forkjoin">
    <startEvent id="start" />
    <parallelGateway id="fork" />
    <userTask id="userA" />
    <userTask id="userB" />
    <parallelGateway id="join" />
    <endEvent id="end" />
    <sequenceFlow id="f1" sourceRef="start" targetRef="fork" />
    <sequenceFlow id="f2" sourceRef="fork" targetRef="userA" />
    <sequenceFlow id="f3" sourceRef="fork" targetRef="userB" />
    <sequenceFlow id="f4" sourceRef="userA" targetRef="join" />
    <sequenceFlow id="f5" sourceRef="userB" targetRef="join" />
    <sequenceFlow id="f6" sourceRef="join" targetRef="end" />
  </process>
</definitions>`

// S3 — parallel fan-out/join, completing branches in forward order.
func TestGateway_ParallelForkJoin_ForwardOrder(t *testing.T) {
	ctx := context.Background()
	engine := bpmn.NewEngine(inmemory.NewStore())

	id, err := engine.StartProcess(ctx, []byte(forkJoinXml), nil)
	require.NoError(t, err)

	state, err := engine.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusSuspendedAtUserTask, state.Status)

	tasks, err := engine.GetActiveTasks(ctx, id)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	require.NoError(t, engine.CompleteTask(ctx, id, "userA", nil))
	state, err = engine.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusSuspendedAtUserTask, state.Status, "still waiting on userB")

	require.NoError(t, engine.CompleteTask(ctx, id, "userB", nil))
	state, err = engine.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusCompleted, state.Status)
}

// S3 — the reverse completion order must reach the same terminal state.
func TestGateway_ParallelForkJoin_ReverseOrder(t *testing.T) {
	ctx := context.Background()
	engine := bpmn.NewEngine(inmemory.NewStore())

	id, err := engine.StartProcess(ctx, []byte(forkJoinXml), nil)
	require.NoError(t, err)

	require.NoError(t, engine.CompleteTask(ctx, id, "userB", nil))
	state, err := engine.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusSuspendedAtUserTask, state.Status)

	require.NoError(t, engine.CompleteTask(ctx, id, "userA", nil))
	state, err = engine.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusCompleted, state.Status)
}

func TestGateway_ParallelForkJoin_VariableMerge(t *testing.T) {
	ctx := context.Background()
	engine := bpmn.NewEngine(inmemory.NewStore())

	id, err := engine.StartProcess(ctx, []byte(forkJoinXml), nil)
	require.NoError(t, err)

	require.NoError(t, engine.CompleteTask(ctx, id, "userA", []byte(`{"shared":"fromA","onlyA":"1"}`)))
	require.NoError(t, engine.CompleteTask(ctx, id, "userB", []byte(`{"shared":"fromB","onlyB":"2"}`)))

	state, err := engine.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1", state.Variables["onlyA"])
	assert.Equal(t, "2", state.Variables["onlyB"])
	assert.Equal(t, "fromB", state.Variables["shared"], "last arrival wins")
}
