package engine

import (
	"strconv"
	"strings"
)

// Las condiciones de las aristas usan una gramática mínima:
//
//	identificador operador literal
//
// con operador ∈ {==, !=, >, <, >=, <=}. La expresión se parsea a un AST
// cerrado y se evalúa contra las variables de sesión. Nunca se compila texto
// a código ejecutable: el lado derecho puede contener valores copiados de la
// entrada del contacto.

// CompareOp operador de comparación soportado
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpGe CompareOp = ">="
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpLt CompareOp = "<"
)

// operators in scan order: two-char operators before their one-char prefixes
var operators = []CompareOp{OpEq, OpNe, OpGe, OpLe, OpGt, OpLt}

// Literal lado derecho de una comparación, ya tipado
type Literal struct {
	Raw    string
	Num    float64
	IsNum  bool
	Bool   bool
	IsBool bool
}

// Comparison AST de una condición parseada
type Comparison struct {
	Left  string // identificador, resuelto contra las variables
	Op    CompareOp
	Right Literal
}

// ParseComparison parsea una expresión de condición a su AST
func ParseComparison(expr string) (*Comparison, error) {
	opIdx, op := findOperator(expr)
	if opIdx < 0 {
		return nil, ErrInvalidExpression().
			WithDetail("expression", expr).
			WithDetail("reason", "no comparison operator found")
	}

	left := strings.TrimSpace(expr[:opIdx])
	right := strings.TrimSpace(expr[opIdx+len(op):])

	if !isIdentifier(left) {
		return nil, ErrInvalidExpression().
			WithDetail("expression", expr).
			WithDetail("reason", "left operand is not an identifier")
	}
	if right == "" {
		return nil, ErrInvalidExpression().
			WithDetail("expression", expr).
			WithDetail("reason", "missing right operand")
	}

	return &Comparison{
		Left:  left,
		Op:    op,
		Right: parseLiteral(right),
	}, nil
}

// EvaluateCondition parsea y evalúa una condición contra las variables.
// Las variables nunca se mutan; el error señala expresión malformada y el
// llamador trata la arista como "no coincide".
func EvaluateCondition(expr string, variables map[string]any) (bool, error) {
	cmp, err := ParseComparison(expr)
	if err != nil {
		return false, err
	}
	return cmp.Evaluate(variables), nil
}

// Evaluate evalúa la comparación; identificadores desconocidos se resuelven a
// un centinela undefined que es distinto de todo valor
func (c *Comparison) Evaluate(variables map[string]any) bool {
	value, defined := variables[c.Left]
	if !defined {
		// undefined solo es igual a otro undefined, que un literal nunca es
		return c.Op == OpNe
	}

	if leftNum, ok := toNumber(value); ok && c.Right.IsNum {
		return compareNumbers(leftNum, c.Op, c.Right.Num)
	}

	if leftBool, ok := value.(bool); ok && c.Right.IsBool {
		switch c.Op {
		case OpEq:
			return leftBool == c.Right.Bool
		case OpNe:
			return leftBool != c.Right.Bool
		default:
			return false
		}
	}

	// Comparación textual: solo igualdad/desigualdad; orden sobre texto no
	// numérico evalúa falso
	leftStr := formatVariable(value)
	switch c.Op {
	case OpEq:
		return leftStr == c.Right.Raw
	case OpNe:
		return leftStr != c.Right.Raw
	default:
		return false
	}
}

func findOperator(expr string) (int, CompareOp) {
	for i := 0; i < len(expr); i++ {
		for _, op := range operators {
			if strings.HasPrefix(expr[i:], string(op)) {
				return i, op
			}
		}
	}
	return -1, ""
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9', r == '.':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func parseLiteral(raw string) Literal {
	lit := Literal{Raw: raw}

	if num, err := strconv.ParseFloat(raw, 64); err == nil {
		lit.Num = num
		lit.IsNum = true
		return lit
	}

	if raw == "true" || raw == "false" {
		lit.Bool = raw == "true"
		lit.IsBool = true
		return lit
	}

	// Literales entre comillas se comparan sin ellas
	if len(raw) >= 2 {
		if (raw[0] == '\'' && raw[len(raw)-1] == '\'') || (raw[0] == '"' && raw[len(raw)-1] == '"') {
			lit.Raw = raw[1 : len(raw)-1]
		}
	}

	return lit
}

func compareNumbers(left float64, op CompareOp, right float64) bool {
	switch op {
	case OpEq:
		return left == right
	case OpNe:
		return left != right
	case OpGt:
		return left > right
	case OpLt:
		return left < right
	case OpGe:
		return left >= right
	case OpLe:
		return left <= right
	default:
		return false
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return num, true
	default:
		return 0, false
	}
}
