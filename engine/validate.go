package engine

import "fmt"

// Validate verifica la integridad estructural de la definición antes de
// guardarla: referencias de nodos, payloads por tipo y ausencia de ciclos que
// no pasen por un nodo input. Un workflow que pasa esta validación nunca
// puede dejar al stepper en un nodo inexistente ni en un bucle sin espera.
func (w *Workflow) Validate() error {
	if len(w.Nodes) == 0 {
		return ErrInvalidWorkflow().WithDetail("reason", "workflow has no nodes")
	}

	index := make(map[string]*Node, len(w.Nodes))
	for i := range w.Nodes {
		node := &w.Nodes[i]
		if node.ID == "" {
			return ErrInvalidWorkflow().WithDetail("reason", "node with empty id")
		}
		if _, dup := index[node.ID]; dup {
			return ErrInvalidWorkflow().
				WithDetail("reason", "duplicate node id").
				WithDetail("node_id", node.ID)
		}
		index[node.ID] = node
	}

	if w.StartNodeID == "" {
		return ErrInvalidWorkflow().WithDetail("reason", "missing startNodeId")
	}
	if _, ok := index[w.StartNodeID]; !ok {
		return ErrInvalidWorkflow().
			WithDetail("reason", "startNodeId does not reference an existing node").
			WithDetail("start_node_id", w.StartNodeID)
	}

	for i := range w.Nodes {
		if err := validateNode(&w.Nodes[i], index); err != nil {
			return err
		}
	}

	if cycle := findUnbreakableCycle(index); cycle != "" {
		return ErrCyclicWorkflow().WithDetail("node_id", cycle)
	}

	return nil
}

func validateNode(node *Node, index map[string]*Node) error {
	for _, edge := range node.Next {
		if _, ok := index[edge.ID]; !ok {
			return ErrInvalidWorkflow().
				WithDetail("reason", "edge references a non-existent node").
				WithDetail("node_id", node.ID).
				WithDetail("target_id", edge.ID)
		}
	}

	switch node.Type {
	case NodeTypeMessage:
		content, ok := node.Content.(MessageContent)
		if !ok || content.Text == "" {
			return invalidNode(node.ID, "message node requires text")
		}
	case NodeTypeInput:
		content, ok := node.Content.(InputContent)
		if !ok || content.Prompt == "" || content.VariableName == "" {
			return invalidNode(node.ID, "input node requires prompt and variableName")
		}
	case NodeTypeCondition:
		if len(node.Next) == 0 {
			return invalidNode(node.ID, "condition node requires at least one outgoing edge")
		}
		for _, edge := range node.Next {
			if edge.Condition == "" {
				continue // arista por defecto
			}
			if _, err := ParseComparison(edge.Condition); err != nil {
				return invalidNode(node.ID, fmt.Sprintf("invalid edge condition %q", edge.Condition))
			}
		}
	case NodeTypeDelay:
		content, ok := node.Content.(DelayContent)
		if !ok || content.Seconds <= 0 {
			return invalidNode(node.ID, "delay node requires a positive duration")
		}
	case NodeTypeIntegration:
		content, ok := node.Content.(IntegrationContent)
		if !ok || content.URL == "" {
			return invalidNode(node.ID, "integration node requires a url")
		}
	case NodeTypeEnd:
		if len(node.Next) > 0 {
			return invalidNode(node.ID, "end node must not have outgoing edges")
		}
	default:
		return ErrUnknownNodeType().
			WithDetail("node_id", node.ID).
			WithDetail("node_type", string(node.Type))
	}

	return nil
}

func invalidNode(nodeID, reason string) error {
	return ErrInvalidWorkflow().
		WithDetail("node_id", nodeID).
		WithDetail("reason", reason)
}

// findUnbreakableCycle busca un ciclo que no atraviese ningún nodo input. Un
// ciclo así ejecutaría sin pausa; los nodos input rompen la cadena porque el
// stepper se detiene a esperar al contacto, así que se excluyen del grafo.
func findUnbreakableCycle(index map[string]*Node) string {
	const (
		inStack = 1
		done    = 2
	)
	state := make(map[string]int, len(index))

	var visit func(node *Node) string
	visit = func(node *Node) string {
		switch state[node.ID] {
		case inStack:
			return node.ID
		case done:
			return ""
		}

		state[node.ID] = inStack
		for _, edge := range node.Next {
			next, ok := index[edge.ID]
			if !ok || next.Type == NodeTypeInput {
				continue
			}
			if found := visit(next); found != "" {
				return found
			}
		}
		state[node.ID] = done
		return ""
	}

	for i := range index {
		node := index[i]
		if node.Type == NodeTypeInput {
			continue
		}
		if found := visit(node); found != "" {
			return found
		}
	}
	return ""
}
