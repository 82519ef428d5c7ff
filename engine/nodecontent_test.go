package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeUnmarshalJSON_DispatchesByType(t *testing.T) {
	raw := `{
		"id": "ask-name",
		"type": "input",
		"content": {"prompt": "¿Cómo te llamas?", "variableName": "name"},
		"next": [{"id": "bye"}]
	}`

	var node Node
	require.NoError(t, json.Unmarshal([]byte(raw), &node))

	content, ok := node.Content.(InputContent)
	require.True(t, ok)
	assert.Equal(t, "name", content.VariableName)
	assert.Equal(t, "¿Cómo te llamas?", content.Prompt)
	require.Len(t, node.Next, 1)
	assert.Equal(t, "bye", node.Next[0].ID)
}

func TestNodeUnmarshalJSON_UnknownTypeLeavesContentNil(t *testing.T) {
	raw := `{"id": "x", "type": "teleport", "content": {"foo": "bar"}}`

	var node Node
	require.NoError(t, json.Unmarshal([]byte(raw), &node))

	assert.Nil(t, node.Content)
	assert.Equal(t, NodeType("teleport"), node.Type)
}

func TestNodeMarshalJSON_RoundTrip(t *testing.T) {
	node := Node{
		ID:      "delay-1",
		Type:    NodeTypeDelay,
		Content: DelayContent{Seconds: 90},
		Next:    []Edge{{ID: "next-1"}},
	}

	data, err := json.Marshal(node)
	require.NoError(t, err)

	var decoded Node
	require.NoError(t, json.Unmarshal(data, &decoded))

	content, ok := decoded.Content.(DelayContent)
	require.True(t, ok)
	assert.Equal(t, 90, content.Seconds)
}
