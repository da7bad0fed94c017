// Package parser converts BPMN 2.0 XML into an immutable bpmn20.Process
// graph. Parse is a pure function over input bytes: it either returns a
// fully built graph or an error, never a partially built one.
package parser

import (
	"encoding/xml"
	"fmt"

	"github.com/bpmnkit/engine/pkg/bpmn/model/bpmn20"
)

const bpmnNamespace = "http://www.omg.org/spec/BPMN/20100524/MODEL"

// ParseError reports a malformed BPMN document: bad XML, a missing
// namespace, or an unrecognized element type inside a process.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "bpmn parse error: " + e.Reason
}

// InvalidDefinitionError reports a structurally invalid, but well-formed,
// process: missing process id, no start event, more than one start event,
// or a flow referencing an unknown element.
type InvalidDefinitionError struct {
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	return "invalid bpmn definition: " + e.Reason
}

type xmlDefinitions struct {
	XMLName   xml.Name     `xml:"definitions"`
	Processes []xmlProcess `xml:"process"`
	Flows     []xmlFlow    `xml:"sequenceFlow"` // direct children of <definitions> only; Parse uses them only when the first process declares no sequenceFlow of its own, and flows nested anywhere else are not collected
}

type xmlProcess struct {
	Id              string      `xml:"id,attr"`
	Name            string      `xml:"name,attr"`
	StartEvents     []xmlNode   `xml:"startEvent"`
	EndEvents       []xmlNode   `xml:"endEvent"`
	UserTasks       []xmlNode   `xml:"userTask"`
	ServiceTasks    []xmlNode   `xml:"serviceTask"`
	ParallelGateways []xmlNode  `xml:"parallelGateway"`
	ExclusiveGateways []xmlNode `xml:"exclusiveGateway"`
	Flows           []xmlFlow   `xml:"sequenceFlow"`
	Other           []xmlAny    `xml:",any"`
}

type xmlNode struct {
	Id         string `xml:"id,attr"`
	Name       string `xml:"name,attr"`
	FormKey    string `xml:"formKey,attr"`
	Assignee   string `xml:"assignee,attr"`
	ClassName  string `xml:"class,attr"`
	Expression string `xml:"expression,attr"`
	Topic      string `xml:"topic,attr"`
	Default    string `xml:"default,attr"`
}

type xmlFlow struct {
	Id         string `xml:"id,attr"`
	Name       string `xml:"name,attr"`
	SourceRef  string `xml:"sourceRef,attr"`
	TargetRef  string `xml:"targetRef,attr"`
	Condition  string `xml:"conditionExpression"`
}

type xmlAny struct {
	XMLName xml.Name
}

// recognizedLocalNames lists the child element names of a process that
// Parse accepts. sequenceFlow is handled separately above.
var recognizedLocalNames = map[string]bool{
	"startEvent":       true,
	"endEvent":         true,
	"userTask":         true,
	"serviceTask":      true,
	"parallelGateway":  true,
	"exclusiveGateway": true,
	"sequenceFlow":     true,
	"extensionElements": true, // BPMN allows vendor extensions; not a flow element
	"documentation":    true,
}

// Parse implements parse(xml_bytes) -> Process | ParseError. Processing
// order: locate the first process element, collect its children in
// document order, collect sequence flows, cross-link into indices, then
// validate.
func Parse(xmlBytes []byte) (*bpmn20.Process, error) {
	var defs xmlDefinitions
	if err := xml.Unmarshal(xmlBytes, &defs); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	if defs.XMLName.Space != bpmnNamespace {
		if defs.XMLName.Space == "" {
			return nil, &ParseError{Reason: "missing BPMN namespace on definitions element"}
		}
		return nil, &ParseError{Reason: fmt.Sprintf("unexpected namespace %q, expected %q", defs.XMLName.Space, bpmnNamespace)}
	}
	if len(defs.Processes) == 0 {
		return nil, &ParseError{Reason: "no process element found"}
	}
	proc := defs.Processes[0]
	if proc.Id == "" {
		return nil, &InvalidDefinitionError{Reason: "process element has no id"}
	}

	for _, any := range proc.Other {
		if !recognizedLocalNames[any.XMLName.Local] {
			return nil, &ParseError{Reason: fmt.Sprintf("unrecognized element type %q inside process %q", any.XMLName.Local, proc.Id)}
		}
	}

	var elements []*bpmn20.Element
	var startEventIds []string

	for _, n := range proc.StartEvents {
		elements = append(elements, &bpmn20.Element{Id: n.Id, Name: n.Name, Type: bpmn20.ElementTypeStartEvent})
		startEventIds = append(startEventIds, n.Id)
	}
	for _, n := range proc.EndEvents {
		elements = append(elements, &bpmn20.Element{Id: n.Id, Name: n.Name, Type: bpmn20.ElementTypeEndEvent})
	}
	for _, n := range proc.UserTasks {
		elements = append(elements, &bpmn20.Element{
			Id: n.Id, Name: n.Name, Type: bpmn20.ElementTypeUserTask,
			UserTask: &bpmn20.UserTaskAttributes{FormKey: n.FormKey, Assignee: n.Assignee},
		})
	}
	for _, n := range proc.ServiceTasks {
		elements = append(elements, &bpmn20.Element{
			Id: n.Id, Name: n.Name, Type: bpmn20.ElementTypeServiceTask,
			ServiceTask: &bpmn20.ServiceTaskAttributes{ClassName: n.ClassName, Expression: n.Expression, Topic: n.Topic},
		})
	}
	for _, n := range proc.ParallelGateways {
		elements = append(elements, &bpmn20.Element{Id: n.Id, Name: n.Name, Type: bpmn20.ElementTypeParallelGateway})
	}
	for _, n := range proc.ExclusiveGateways {
		elements = append(elements, &bpmn20.Element{
			Id: n.Id, Name: n.Name, Type: bpmn20.ElementTypeExclusiveGateway,
			ExclusiveGateway: &bpmn20.ExclusiveGatewayAttributes{DefaultFlow: n.Default},
		})
	}

	elementIds := make(map[string]bool, len(elements))
	for _, e := range elements {
		if elementIds[e.Id] {
			return nil, &InvalidDefinitionError{Reason: fmt.Sprintf("duplicate element id %q", e.Id)}
		}
		elementIds[e.Id] = true
	}

	flowSource := proc.Flows
	if len(flowSource) == 0 {
		flowSource = defs.Flows
	}
	flowIds := make(map[string]bool, len(flowSource))
	var flows []*bpmn20.SequenceFlow
	for _, f := range flowSource {
		if flowIds[f.Id] {
			return nil, &InvalidDefinitionError{Reason: fmt.Sprintf("duplicate sequence flow id %q", f.Id)}
		}
		flowIds[f.Id] = true
		if !elementIds[f.SourceRef] {
			return nil, &InvalidDefinitionError{Reason: fmt.Sprintf("sequence flow %q has unknown sourceRef %q", f.Id, f.SourceRef)}
		}
		if !elementIds[f.TargetRef] {
			return nil, &InvalidDefinitionError{Reason: fmt.Sprintf("sequence flow %q has unknown targetRef %q", f.Id, f.TargetRef)}
		}
		flows = append(flows, &bpmn20.SequenceFlow{
			Id: f.Id, Name: f.Name, SourceRef: f.SourceRef, TargetRef: f.TargetRef, Condition: f.Condition,
		})
	}

	if len(startEventIds) == 0 {
		return nil, &InvalidDefinitionError{Reason: fmt.Sprintf("process %q has no StartEvent", proc.Id)}
	}
	if len(startEventIds) > 1 {
		return nil, &InvalidDefinitionError{Reason: fmt.Sprintf("process %q has %d StartEvents, exactly one is required", proc.Id, len(startEventIds))}
	}

	return bpmn20.NewProcess(proc.Id, proc.Name, startEventIds[0], elements, flows), nil
}
