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

const linearXml = `<?xml version="1.0"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="approval">
    <startEvent id="start" />
    <userTask id="approve" formKey="approveForm" />
    <endEvent id="end" />
    <sequenceFlow id="f1" sourceRef="start" targetRef="approve" />
    <sequenceFlow id="f2" sourceRef="approve" targetRef="end" />
  </process>
</definitions>`

// S1 — linear happy path.
func TestEngine_LinearHappyPath(t *testing.T) {
	ctx := context.Background()
	engine := bpmn.NewEngine(inmemory.NewStore())

	id, err := engine.StartProcess(ctx, []byte(linearXml), []byte(`{"days":5}`))
	require.NoError(t, err)

	state, err := engine.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "approve", state.CurrentElement)
	assert.Equal(t, runtime.StatusSuspendedAtUserTask, state.Status)
	assert.Equal(t, "5", state.Variables["days"])

	require.NoError(t, engine.CompleteTask(ctx, id, "approve", []byte(`{"approved":true}`)))

	state, err = engine.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusCompleted, state.Status)
	assert.Equal(t, "5", state.Variables["days"])
	assert.Equal(t, "true", state.Variables["approved"])

	tasks, err := engine.GetActiveTasks(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

const exclusiveXml = `<?xml version="1.0"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="routing">
    <startEvent id="start" />
    <exclusiveGateway id="xor" default="flowB" />
    <endEvent id="endA" />
    <endEvent id="endB" />
    <sequenceFlow id="f1" sourceRef="start" targetRef="xor" />
    <sequenceFlow id="flowA" sourceRef="xor" targetRef="endA"><conditionExpression>approved == true</conditionExpression></sequenceFlow>
    <sequenceFlow id="flowB" sourceRef="xor" targetRef="endB" />
  </process>
</definitions>`

// S2 — exclusive routing with default.
func TestEngine_ExclusiveRoutingWithDefault(t *testing.T) {
	ctx := context.Background()

	engine := bpmn.NewEngine(inmemory.NewStore())
	id, err := engine.StartProcess(ctx, []byte(exclusiveXml), []byte(`{"approved":false}`))
	require.NoError(t, err)
	state, err := engine.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "endB", state.CurrentElement)
	assert.Equal(t, runtime.StatusCompleted, state.Status)

	engine2 := bpmn.NewEngine(inmemory.NewStore())
	id2, err := engine2.StartProcess(ctx, []byte(exclusiveXml), []byte(`{"approved":true}`))
	require.NoError(t, err)
	state2, err := engine2.GetProcessState(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, "endA", state2.CurrentElement)
}

const serviceTaskXml = `<?xml version="1.0"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="compute">
    <startEvent id="start" />
    <serviceTask id="svc" topic="compute" />
    <endEvent id="end" />
    <sequenceFlow id="f1" sourceRef="start" targetRef="svc" />
    <sequenceFlow id="f2" sourceRef="svc" targetRef="end" />
  </process>
</definitions>`

// S4 — service task merges output.
func TestEngine_ServiceTaskMergesOutput(t *testing.T) {
	ctx := context.Background()
	engine := bpmn.NewEngine(inmemory.NewStore(), bpmn.WithDelegate("compute", func(_ context.Context, _ bpmn.JobContext) (map[string]interface{}, error) {
		return map[string]interface{}{"result": 42}, nil
	}))

	id, err := engine.StartProcess(ctx, []byte(serviceTaskXml), nil)
	require.NoError(t, err)

	state, err := engine.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusCompleted, state.Status)
	assert.Equal(t, "42", state.Variables["result"])
}

const noStartEventXml = `<?xml version="1.0"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="malformed">
    <endEvent id="end" />
  </process>
</definitions>`

// S5 — malformed definition.
func TestEngine_MalformedDefinitionRejected(t *testing.T) {
	ctx := context.Background()
	engine := bpmn.NewEngine(inmemory.NewStore())

	_, err := engine.StartProcess(ctx, []byte(noStartEventXml), nil)
	require.Error(t, err)
	kind, ok := bpmn.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, bpmn.KindInvalidDefinition, kind)

	_, loadErr := engine.GetProcessState(ctx, "any-id")
	assert.Error(t, loadErr)
}

// S6 — restart from persisted state: a fresh Engine against the same
// store must be able to resume an instance a prior Engine suspended.
func TestEngine_RestartFromPersistedState(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()

	first := bpmn.NewEngine(store)
	id, err := first.StartProcess(ctx, []byte(linearXml), nil)
	require.NoError(t, err)

	second := bpmn.NewEngine(store)
	require.NoError(t, second.CompleteTask(ctx, id, "approve", []byte(`{"approved":true}`)))

	state, err := second.GetProcessState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusCompleted, state.Status)
}

// start_process_by_id: a second instance of an already-deployed
// definition can be started by process id alone, without resubmitting XML.
func TestEngine_StartProcessByID(t *testing.T) {
	ctx := context.Background()
	engine := bpmn.NewEngine(inmemory.NewStore())

	firstId, err := engine.StartProcess(ctx, []byte(linearXml), []byte(`{"days":1}`))
	require.NoError(t, err)

	secondId, err := engine.StartProcessByID(ctx, "approval", []byte(`{"days":2}`))
	require.NoError(t, err)
	assert.NotEqual(t, firstId, secondId)

	state, err := engine.GetProcessState(ctx, secondId)
	require.NoError(t, err)
	assert.Equal(t, "approve", state.CurrentElement)
	assert.Equal(t, "2", state.Variables["days"])

	_, err = engine.StartProcessByID(ctx, "no-such-process", nil)
	require.Error(t, err)
	kind, ok := bpmn.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, bpmn.KindNotFound, kind)
}

// Idempotent terminate: terminating a COMPLETED instance is a no-op.
func TestEngine_IdempotentTerminate(t *testing.T) {
	ctx := context.Background()
	engine := bpmn.NewEngine(inmemory.NewStore())

	id, err := engine.StartProcess(ctx, []byte(linearXml), nil)
	require.NoError(t, err)
	require.NoError(t, engine.CompleteTask(ctx, id, "approve", nil))

	require.NoError(t, engine.TerminateProcess(ctx, id))
	require.NoError(t, engine.TerminateProcess(ctx, id))
}
