package runtime

import (
	"encoding/json"
	"fmt"
)

// Flatten converts an arbitrary JSON init-data object into the engine's
// flat string-keyed variable map. Non-string scalar values are re-encoded
// to their JSON string form; nested objects/arrays are kept as their
// serialized JSON string too, per the opaque-string variable model.
func Flatten(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = encodeScalar(v)
	}
	return out
}

func encodeScalar(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// MergeJSON decodes a JSON object's top-level keys and merges them into
// vars, following the same string-encoding rule as Flatten. Used by
// CompleteTask; ServiceTask delegate results are merged with Merge.
func MergeJSON(vars map[string]string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("decode variable payload: %w", err)
	}
	for k, v := range obj {
		vars[k] = encodeScalar(v)
	}
	return nil
}

// Merge copies src's top-level keys into vars, string-encoding scalars.
func Merge(vars map[string]string, src map[string]interface{}) {
	for k, v := range src {
		vars[k] = encodeScalar(v)
	}
}

// Clone returns a deep copy of a variable map, used to give each parallel
// branch its own isolated variable storage at fork time.
func Clone(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}
