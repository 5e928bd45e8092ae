package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashAttributes_Deterministic(t *testing.T) {
	attrs := map[string]any{
		"name": "main",
		"cidr": "10.0.0.0/16",
		"tags": []any{"a", "b"},
		"labels": map[string]any{
			"env":  "prod",
			"team": "core",
		},
	}

	assert.Equal(t, HashAttributes(attrs), HashAttributes(attrs))
}

func TestHashAttributes_DetectsChanges(t *testing.T) {
	base := map[string]any{"cidr": "10.0.0.0/16"}

	assert.NotEqual(t, HashAttributes(base), HashAttributes(map[string]any{"cidr": "10.1.0.0/16"}))
	assert.NotEqual(t, HashAttributes(base), HashAttributes(map[string]any{"cidr": "10.0.0.0/16", "extra": true}))
	assert.NotEqual(t, HashAttributes(map[string]any{"v": []any{"a", "b"}}), HashAttributes(map[string]any{"v": []any{"b", "a"}}))
}

func TestHashAttributes_NumbersSurviveJSONRoundTrip(t *testing.T) {
	// JSON decoding turns ints into float64; the hash must not change.
	assert.Equal(t,
		HashAttributes(map[string]any{"port": 5432}),
		HashAttributes(map[string]any{"port": float64(5432)}))

	assert.NotEqual(t,
		HashAttributes(map[string]any{"ratio": 1.5}),
		HashAttributes(map[string]any{"ratio": 1}))
}

func TestHashAttributes_TypeTagged(t *testing.T) {
	// A string that looks like a number must not collide with the number.
	assert.NotEqual(t,
		HashAttributes(map[string]any{"v": "1"}),
		HashAttributes(map[string]any{"v": 1}))

	assert.NotEqual(t,
		HashAttributes(map[string]any{"v": nil}),
		HashAttributes(map[string]any{"v": ""}))
}
