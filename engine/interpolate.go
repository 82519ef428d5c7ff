package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderRegex matches expressions like {{ name }}
var placeholderRegex = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Interpolate reemplaza cada {{identificador}} por el valor de la variable en
// un solo paso. Los placeholders sin resolver quedan tal cual; el texto
// insertado nunca se re-expande, así valores aportados por el contacto no
// pueden disparar expansiones en cadena.
func Interpolate(template string, variables map[string]any) string {
	if template == "" || !strings.Contains(template, "{{") {
		return template
	}

	return placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(placeholderRegex.FindStringSubmatch(match)[1])

		value, ok := variables[name]
		if !ok {
			return match
		}

		return formatVariable(value)
	})
}

// formatVariable representación textual estable de un valor de sesión
func formatVariable(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
