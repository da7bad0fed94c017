// Package bpmn20 holds the in-memory representation of a parsed BPMN 2.0
// process: a value-typed, read-only graph of flow elements and sequence
// flows, keyed by id, with pre-computed incoming/outgoing indices.
package bpmn20

// ElementType tags the closed set of flow elements this engine understands.
// Node dispatch in the executor switches on this tag rather than on a type
// hierarchy.
type ElementType string

const (
	ElementTypeStartEvent       ElementType = "startEvent"
	ElementTypeEndEvent         ElementType = "endEvent"
	ElementTypeUserTask         ElementType = "userTask"
	ElementTypeServiceTask      ElementType = "serviceTask"
	ElementTypeParallelGateway  ElementType = "parallelGateway"
	ElementTypeExclusiveGateway ElementType = "exclusiveGateway"
)

// Element is a single flow node in the process graph. Type-specific data
// lives in the pointer fields below: the one matching Type is non-nil for
// UserTask, ServiceTask and ExclusiveGateway; all are nil for other types.
type Element struct {
	Id   string
	Name string
	Type ElementType

	UserTask         *UserTaskAttributes
	ServiceTask       *ServiceTaskAttributes
	ExclusiveGateway *ExclusiveGatewayAttributes
}

// UserTaskAttributes holds the attributes specific to a UserTask element.
type UserTaskAttributes struct {
	FormKey    string
	Assignee   string
	FormFields map[string]string
}

// ServiceTaskAttributes holds the attributes specific to a ServiceTask
// element. ClassName, Expression and Topic select the delegate; the parser
// does not check how many are set, DelegateSelector takes the first
// non-empty one in that order, and a task with none set fails when run.
type ServiceTaskAttributes struct {
	ClassName  string
	Expression string
	Topic      string
}

// DelegateSelector returns the name of the first non-empty delegate
// selector field and its value, for the precedence order class_name >
// expression > topic; both are empty when none is set.
func (s *ServiceTaskAttributes) DelegateSelector() (kind string, name string) {
	switch {
	case s.ClassName != "":
		return "class_name", s.ClassName
	case s.Expression != "":
		return "expression", s.Expression
	case s.Topic != "":
		return "topic", s.Topic
	default:
		return "", ""
	}
}

// ExclusiveGatewayAttributes holds the attributes specific to an
// ExclusiveGateway element.
type ExclusiveGatewayAttributes struct {
	DefaultFlow string
}

// SequenceFlow is a directed edge between two elements, optionally guarded
// by a boolean condition expression.
type SequenceFlow struct {
	Id        string
	Name      string
	SourceRef string
	TargetRef string
	Condition string // empty means unconditional
}
