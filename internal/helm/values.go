package helm

import (
	"strconv"
	"strings"
)

// ExpandValues turns flat dotted-path keys into the nested structure
// chart templates expect: {"operator.replicas": "2"} becomes
// {"operator": {"replicas": 2}}. Scalars that parse as bool or integer
// are typed accordingly, since "true" and true render differently in
// most charts.
func ExpandValues(flat map[string]string) map[string]interface{} {
	root := make(map[string]interface{})
	for key, raw := range flat {
		parts := strings.Split(key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = coerce(raw)
	}
	return root
}

func coerce(raw string) interface{} {
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	return raw
}
