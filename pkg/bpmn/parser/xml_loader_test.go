package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linearXml = `<?xml version="1.0"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="approval" name="Approval">
    <startEvent id="start" />
    <userTask id="approve" formKey="approveForm" />
    <endEvent id="end" />
    <sequenceFlow id="f1" sourceRef="start" targetRef="approve" />
    <sequenceFlow id="f2" sourceRef="approve" targetRef="end" />
  </process>
</definitions>`

func TestParse_LinearHappyPath(t *testing.T) {
	process, err := Parse([]byte(linearXml))
	require.NoError(t, err)
	assert.Equal(t, "approval", process.Id)
	assert.Equal(t, "start", process.StartEventId)
	assert.Equal(t, []string{"f1"}, process.OutgoingFlows("start"))
	assert.Equal(t, []string{"f2"}, process.OutgoingFlows("approve"))
	assert.NotNil(t, process.GetElement("approve").UserTask)
	assert.Equal(t, "approveForm", process.GetElement("approve").UserTask.FormKey)
}

func TestParse_MissingStartEvent(t *testing.T) {
	const xmlBytes = `<?xml version="1.0"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="broken">
    <endEvent id="end" />
  </process>
</definitions>`
	_, err := Parse([]byte(xmlBytes))
	require.Error(t, err)
	var invalid *InvalidDefinitionError
	require.ErrorAs(t, err, &invalid)
}

func TestParse_MultipleStartEvents(t *testing.T) {
	const xmlBytes = `<?xml version="1.0"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="ambiguous">
    <startEvent id="s1" />
    <startEvent id="s2" />
    <endEvent id="end" />
  </process>
</definitions>`
	_, err := Parse([]byte(xmlBytes))
	require.Error(t, err)
	var invalid *InvalidDefinitionError
	require.ErrorAs(t, err, &invalid)
}

func TestParse_DanglingFlowReference(t *testing.T) {
	const xmlBytes = `<?xml version="1.0"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="dangling">
    <startEvent id="start" />
    <endEvent id="end" />
    <sequenceFlow id="f1" sourceRef="start" targetRef="nowhere" />
  </process>
</definitions>`
	_, err := Parse([]byte(xmlBytes))
	require.Error(t, err)
	var invalid *InvalidDefinitionError
	require.ErrorAs(t, err, &invalid)
}

func TestParse_MissingNamespace(t *testing.T) {
	const xmlBytes = `<?xml version="1.0"?>
<definitions>
  <process id="approval">
    <startEvent id="start" />
    <endEvent id="end" />
  </process>
</definitions>`
	_, err := Parse([]byte(xmlBytes))
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParse_WrongNamespace(t *testing.T) {
	const xmlBytes = `<?xml version="1.0"?>
<definitions xmlns="http://example.com/not-bpmn">
  <process id="approval">
    <startEvent id="start" />
    <endEvent id="end" />
  </process>
</definitions>`
	_, err := Parse([]byte(xmlBytes))
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParse_NoProcessId(t *testing.T) {
	const xmlBytes = `<?xml version="1.0"?>
<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process>
    <startEvent id="start" />
    <endEvent id="end" />
  </process>
</definitions>`
	_, err := Parse([]byte(xmlBytes))
	require.Error(t, err)
	var invalid *InvalidDefinitionError
	require.ErrorAs(t, err, &invalid)
}
