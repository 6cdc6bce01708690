package resolver

import (
	"strings"

	"github.com/openloom/openloom/pkg/core"
)

// appendSuffix marks a key whose array value appends to the lower layer's
// array instead of replacing it. The suffix is stripped from the
// effective key.
const appendSuffix = "+"

// mergeState accumulates the layered merge and the per-leaf layer trace.
type mergeState struct {
	values map[string]interface{}
	trace  map[string]core.ConfigLayer
}

func newMergeState() *mergeState {
	return &mergeState{
		values: make(map[string]interface{}),
		trace:  make(map[string]core.ConfigLayer),
	}
}

// apply merges one layer over the accumulated state. src is never
// mutated; contributed values are deep-copied.
func (m *mergeState) apply(layer core.ConfigLayer, src map[string]interface{}) {
	m.mergeMap(layer, "", m.values, src)
}

// mergeMap merges src into dst key by key, recording trace entries for
// every contributed leaf under the dotted path prefix.
func (m *mergeState) mergeMap(layer core.ConfigLayer, prefix string, dst, src map[string]interface{}) {
	for key, val := range src {
		if strings.HasSuffix(key, appendSuffix) {
			m.appendArray(layer, prefix, dst, strings.TrimSuffix(key, appendSuffix), val)
			continue
		}

		path := joinPath(prefix, key)

		srcMap, srcIsMap := val.(map[string]interface{})
		dstMap, dstIsMap := dst[key].(map[string]interface{})

		if srcIsMap && dstIsMap {
			// Objects merge key by key: overriding one nested field must
			// not erase siblings contributed by lower layers.
			m.mergeMap(layer, path, dstMap, srcMap)
			continue
		}

		if srcIsMap {
			// Replacing a scalar/array with an object: clear stale traces
			// beneath the path, then contribute the whole subtree.
			m.clearTraceUnder(path)
			fresh := make(map[string]interface{}, len(srcMap))
			dst[key] = fresh
			m.mergeMap(layer, path, fresh, srcMap)
			continue
		}

		// Scalars and arrays replace wholesale.
		if dstIsMap {
			m.clearTraceUnder(path)
		}
		dst[key] = deepCopyValue(val)
		m.trace[path] = layer
	}
}

// appendArray implements the "+" key suffix: the layer's array is
// appended to the lower-layer array at the same effective key.
func (m *mergeState) appendArray(layer core.ConfigLayer, prefix string, dst map[string]interface{}, key string, val interface{}) {
	path := joinPath(prefix, key)

	add, ok := val.([]interface{})
	if !ok {
		// Non-array value under an append key degrades to replacement.
		dst[key] = deepCopyValue(val)
		m.trace[path] = layer
		return
	}

	base, _ := dst[key].([]interface{})
	merged := make([]interface{}, 0, len(base)+len(add))
	merged = append(merged, base...)
	for _, item := range add {
		merged = append(merged, deepCopyValue(item))
	}
	dst[key] = merged
	m.trace[path] = layer
}

// clearTraceUnder drops trace entries at and beneath a dotted path, for
// when a higher layer replaces an entire subtree.
func (m *mergeState) clearTraceUnder(path string) {
	for p := range m.trace {
		if p == path || strings.HasPrefix(p, path+".") {
			delete(m.trace, p)
		}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// deepCopyValue copies maps and slices so resolved configurations never
// alias their input layers.
func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}
