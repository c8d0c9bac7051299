package helm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandValues(t *testing.T) {
	t.Parallel()
	got := ExpandValues(map[string]string{
		"operator.replicas":        "2",
		"operator.rollOutPods":     "true",
		"ipam.mode":                "kubernetes",
		"k8sServiceHost":           "10.0.0.10",
		"hubble.relay.enabled":     "false",
		"hubble.ui.replicas":       "1",
		"persistence.defaultClass": "longhorn",
	})

	want := map[string]interface{}{
		"operator": map[string]interface{}{
			"replicas":    int64(2),
			"rollOutPods": true,
		},
		"ipam": map[string]interface{}{
			"mode": "kubernetes",
		},
		"k8sServiceHost": "10.0.0.10",
		"hubble": map[string]interface{}{
			"relay": map[string]interface{}{"enabled": false},
			"ui":    map[string]interface{}{"replicas": int64(1)},
		},
		"persistence": map[string]interface{}{
			"defaultClass": "longhorn",
		},
	}
	assert.Equal(t, want, got)
}

func TestExpandValues_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, ExpandValues(nil))
	assert.Empty(t, ExpandValues(map[string]string{}))
}

func TestCoerce_DoesNotOvertype(t *testing.T) {
	t.Parallel()
	// Version-like strings must stay strings.
	assert.Equal(t, "1.16", coerce("1.16"))
	assert.Equal(t, int64(42), coerce("42"))
	assert.Equal(t, true, coerce("true"))
	// ParseBool accepts "T" but chart values should not.
	assert.Equal(t, "T", coerce("T"))
	assert.Equal(t, int64(1), coerce("1"))
}
