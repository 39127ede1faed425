package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentIDStableUnderKeyOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "nested": map[string]any{"z": 1, "y": 2}}
	b := map[string]any{"a": 1, "nested": map[string]any{"y": 2, "z": 1}, "b": 2}

	idA, err := ContentID(a)
	require.NoError(t, err)
	idB, err := ContentID(b)
	require.NoError(t, err)

	assert.Equal(t, idA, idB)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, idA)
}

func TestContentIDStableUnderStructFieldOrder(t *testing.T) {
	type docA struct {
		Plot   string `json:"plot"`
		Window string `json:"window"`
	}
	type docB struct {
		Window string `json:"window"`
		Plot   string `json:"plot"`
	}

	idA, err := ContentID(docA{Plot: "p1", Window: "w1"})
	require.NoError(t, err)
	idB, err := ContentID(docB{Window: "w1", Plot: "p1"})
	require.NoError(t, err)

	assert.Equal(t, idA, idB)
}

func TestContentIDDiffersOnValueChange(t *testing.T) {
	idA, err := ContentID(map[string]any{"v": 1})
	require.NoError(t, err)
	idB, err := ContentID(map[string]any{"v": 2})
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}
