package bpmn20

// Process is an immutable, parsed BPMN process definition: a value-typed
// graph free of any reference to executor state. Concurrent readers need no
// synchronization because nothing here is ever mutated after NewProcess returns.
type Process struct {
	Id            string
	Name          string
	StartEventId  string
	elements      map[string]*Element
	flows         map[string]*SequenceFlow
	outgoing      map[string][]string // element id -> ordered sequence flow ids
	incoming      map[string][]string
}

// NewProcess builds a Process from its elements and flows, computing the
// outgoing/incoming indices. Callers (the parser) are responsible for
// validation; NewProcess itself only indexes what it is given.
func NewProcess(id, name, startEventId string, elements []*Element, flows []*SequenceFlow) *Process {
	p := &Process{
		Id:           id,
		Name:         name,
		StartEventId: startEventId,
		elements:     make(map[string]*Element, len(elements)),
		flows:        make(map[string]*SequenceFlow, len(flows)),
		outgoing:     make(map[string][]string),
		incoming:     make(map[string][]string),
	}
	for _, e := range elements {
		p.elements[e.Id] = e
	}
	for _, f := range flows {
		p.flows[f.Id] = f
		p.outgoing[f.SourceRef] = append(p.outgoing[f.SourceRef], f.Id)
		p.incoming[f.TargetRef] = append(p.incoming[f.TargetRef], f.Id)
	}
	return p
}

// GetElement returns the element with the given id, or nil if unknown.
func (p *Process) GetElement(id string) *Element {
	return p.elements[id]
}

// Elements returns all elements in the process. Order is unspecified; use
// OutgoingFlows for document-order traversal.
func (p *Process) Elements() []*Element {
	out := make([]*Element, 0, len(p.elements))
	for _, e := range p.elements {
		out = append(out, e)
	}
	return out
}

// GetFlow returns the sequence flow with the given id, or nil if unknown.
func (p *Process) GetFlow(id string) *SequenceFlow {
	return p.flows[id]
}

// OutgoingFlows returns the ids of flows leaving elementId, in the document
// order they were declared in the source XML.
func (p *Process) OutgoingFlows(elementId string) []string {
	return p.outgoing[elementId]
}

// IncomingFlows returns the ids of flows entering elementId, in document
// order.
func (p *Process) IncomingFlows(elementId string) []string {
	return p.incoming[elementId]
}

// DefaultFlowOf returns the default flow id of an ExclusiveGateway, and
// whether one was configured.
func (p *Process) DefaultFlowOf(exclusiveGatewayId string) (string, bool) {
	el := p.elements[exclusiveGatewayId]
	if el == nil || el.ExclusiveGateway == nil || el.ExclusiveGateway.DefaultFlow == "" {
		return "", false
	}
	return el.ExclusiveGateway.DefaultFlow, true
}
