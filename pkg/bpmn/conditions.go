package bpmn

import (
	"github.com/bpmnkit/engine/pkg/bpmn/model/bpmn20"
)

// resolveExclusiveFlow evaluates the outgoing flows of an exclusive
// gateway in document order and returns the id of the first flow whose
// condition evaluates truthy. If none match, the gateway's default flow is
// returned. If neither applies, ok is false and the caller must surface a
// MalformedProcess error.
func resolveExclusiveFlow(process *bpmn20.Process, evaluator ExpressionEvaluator, gatewayId string, variables map[string]string) (flowId string, ok bool, err error) {
	for _, fid := range process.OutgoingFlows(gatewayId) {
		flow := process.GetFlow(fid)
		matched, evalErr := evaluator.Evaluate(flow.Condition, variables)
		if evalErr != nil {
			return "", false, evalErr
		}
		if matched {
			return fid, true, nil
		}
	}
	if def, hasDefault := process.DefaultFlowOf(gatewayId); hasDefault {
		return def, true, nil
	}
	return "", false, nil
}
