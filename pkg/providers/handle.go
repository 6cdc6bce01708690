package providers

import "fmt"

// Handle is the artifact handle the builtin provisioners produce.
type Handle struct {
	// id uniquely identifies the artifact within the run.
	id string

	// kind is the artifact kind (e.g., "bucket-template").
	kind string
}

// NewHandle creates a handle with an id of the form "<kind>/<name>".
func NewHandle(kind, name string) *Handle {
	return &Handle{id: fmt.Sprintf("%s/%s", kind, name), kind: kind}
}

// ID returns the artifact identifier.
func (h *Handle) ID() string { return h.id }

// Kind returns the artifact kind.
func (h *Handle) Kind() string { return h.kind }

// intValue coerces the numeric shapes YAML and JSON decoding produce.
func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
