package engine

import (
	"testing"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildValidWorkflow() Workflow {
	return Workflow{
		ID:          "wf-1",
		Name:        "onboarding",
		Version:     1,
		StartNodeID: "welcome",
		Nodes: []Node{
			{
				ID:      "welcome",
				Type:    NodeTypeMessage,
				Content: MessageContent{Text: "¡Bienvenido!"},
				Next:    []Edge{{ID: "ask-name"}},
			},
			{
				ID:      "ask-name",
				Type:    NodeTypeInput,
				Content: InputContent{Prompt: "¿Cómo te llamas?", VariableName: "name"},
				Next:    []Edge{{ID: "bye"}},
			},
			{
				ID:      "bye",
				Type:    NodeTypeEnd,
				Content: EndContent{Message: "Adiós {{name}}"},
			},
		},
	}
}

func TestValidate_ValidWorkflow(t *testing.T) {
	wf := buildValidWorkflow()
	assert.NoError(t, wf.Validate())
}

func TestValidate_MissingStartNode(t *testing.T) {
	wf := buildValidWorkflow()
	wf.StartNodeID = "no-existe"

	err := wf.Validate()
	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeValidation))
}

func TestValidate_EdgeToUnknownNode(t *testing.T) {
	wf := buildValidWorkflow()
	wf.Nodes[0].Next = []Edge{{ID: "fantasma"}}

	assert.Error(t, wf.Validate())
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	wf := buildValidWorkflow()
	wf.Nodes = append(wf.Nodes, Node{
		ID:      "welcome",
		Type:    NodeTypeEnd,
		Content: EndContent{},
	})

	assert.Error(t, wf.Validate())
}

func TestValidate_ConditionNodeRequiresEdges(t *testing.T) {
	wf := buildValidWorkflow()
	wf.Nodes[2] = Node{
		ID:      "bye",
		Type:    NodeTypeCondition,
		Content: ConditionContent{},
	}

	assert.Error(t, wf.Validate())
}

func TestValidate_ConditionEdgeExpressionMustParse(t *testing.T) {
	wf := buildValidWorkflow()
	wf.Nodes[2] = Node{
		ID:      "bye",
		Type:    NodeTypeCondition,
		Content: ConditionContent{},
		Next: []Edge{
			{ID: "welcome", Condition: "esto no parsea"},
		},
	}

	assert.Error(t, wf.Validate())
}

func TestValidate_InputNodeRequiresVariableName(t *testing.T) {
	wf := buildValidWorkflow()
	wf.Nodes[1].Content = InputContent{Prompt: "¿Cómo te llamas?"}

	assert.Error(t, wf.Validate())
}

func TestValidate_UnknownNodeType(t *testing.T) {
	wf := buildValidWorkflow()
	wf.Nodes[0].Type = "teleport"
	wf.Nodes[0].Content = nil

	err := wf.Validate()
	require.Error(t, err)
	assert.True(t, errx.IsType(err, errx.TypeValidation))
}

func TestValidate_RejectsCycleWithoutInput(t *testing.T) {
	wf := Workflow{
		ID:          "wf-loop",
		Name:        "loop",
		StartNodeID: "a",
		Nodes: []Node{
			{ID: "a", Type: NodeTypeMessage, Content: MessageContent{Text: "a"}, Next: []Edge{{ID: "b"}}},
			{ID: "b", Type: NodeTypeMessage, Content: MessageContent{Text: "b"}, Next: []Edge{{ID: "a"}}},
		},
	}

	assert.Error(t, wf.Validate())
}

func TestValidate_AllowsCycleThroughInput(t *testing.T) {
	// Un ciclo que pasa por un nodo input es legítimo: la espera del
	// contacto rompe el bucle
	wf := Workflow{
		ID:          "wf-retry",
		Name:        "retry",
		StartNodeID: "ask",
		Nodes: []Node{
			{ID: "ask", Type: NodeTypeInput, Content: InputContent{Prompt: "¿Edad?", VariableName: "age"}, Next: []Edge{{ID: "check"}}},
			{ID: "check", Type: NodeTypeCondition, Content: ConditionContent{}, Next: []Edge{
				{ID: "done", Condition: "age >= 18"},
				{ID: "ask"},
			}},
			{ID: "done", Type: NodeTypeEnd, Content: EndContent{}},
		},
	}

	assert.NoError(t, wf.Validate())
}
