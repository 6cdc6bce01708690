package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openloom/openloom/pkg/core"
)

// tokenPattern matches deferred interpolation tokens of the form
// "${env:<key>}". Keys may be dotted paths into the environment layer.
var tokenPattern = regexp.MustCompile(`\$\{env:([a-zA-Z0-9_.-]+)\}`)

// interpolate walks the merged values and resolves ${env:<key>} tokens
// against the environment layer. A string that is exactly one token
// resolves to the referenced value with its type preserved, or to a
// core.UnresolvedToken marker when the key is absent. Tokens embedded in
// a longer string are substituted textually; absent keys leave the token
// text intact for later resolution.
func interpolate(values map[string]interface{}, envLayer map[string]interface{}) {
	for key, val := range values {
		values[key] = interpolateValue(val, envLayer)
	}
}

func interpolateValue(v interface{}, envLayer map[string]interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return interpolateString(val, envLayer)
	case map[string]interface{}:
		interpolate(val, envLayer)
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = interpolateValue(item, envLayer)
		}
		return val
	default:
		return v
	}
}

func interpolateString(s string, envLayer map[string]interface{}) interface{} {
	matches := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	// A string that is exactly one token preserves the referenced
	// value's type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		key := s[matches[0][2]:matches[0][3]]
		if resolved, ok := lookupPath(envLayer, key); ok {
			// Copy so a map or slice value does not alias the
			// environment layer.
			return deepCopyValue(resolved)
		}
		return core.UnresolvedToken{Key: key, Raw: s}
	}

	// Embedded tokens substitute textually; unresolved ones stay intact.
	return tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		key := tokenPattern.FindStringSubmatch(tok)[1]
		if resolved, ok := lookupPath(envLayer, key); ok {
			return fmt.Sprintf("%v", resolved)
		}
		return tok
	})
}

// lookupPath resolves a dotted key path inside the environment layer.
func lookupPath(m map[string]interface{}, path string) (interface{}, bool) {
	cur := interface{}(m)
	for _, part := range strings.Split(path, ".") {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
