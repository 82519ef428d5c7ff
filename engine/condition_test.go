package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseComparison_ValidExpressions(t *testing.T) {
	cmp, err := ParseComparison("age >= 18")
	require.NoError(t, err)
	assert.Equal(t, "age", cmp.Left)
	assert.Equal(t, OpGe, cmp.Op)
	assert.True(t, cmp.Right.IsNum)
	assert.Equal(t, float64(18), cmp.Right.Num)

	cmp, err = ParseComparison("status == 'activo'")
	require.NoError(t, err)
	assert.Equal(t, OpEq, cmp.Op)
	assert.Equal(t, "activo", cmp.Right.Raw)

	cmp, err = ParseComparison("confirmed != false")
	require.NoError(t, err)
	assert.True(t, cmp.Right.IsBool)
	assert.False(t, cmp.Right.Bool)
}

func TestParseComparison_MalformedExpressions(t *testing.T) {
	cases := []string{
		"",
		"age",
		"age 18",
		">= 18",
		"age >=",
		"1age >= 18",
		"nombre completo == x",
	}

	for _, expr := range cases {
		_, err := ParseComparison(expr)
		assert.Error(t, err, "expression %q should not parse", expr)
	}
}

func TestEvaluateCondition_NumericComparisons(t *testing.T) {
	vars := map[string]any{"age": "16"}

	// La entrada del contacto llega como texto pero compara numéricamente
	got, err := EvaluateCondition("age >= 18", vars)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = EvaluateCondition("age < 18", vars)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvaluateCondition("age == 16", vars)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateCondition_StringComparisons(t *testing.T) {
	vars := map[string]any{"plan": "premium"}

	got, err := EvaluateCondition("plan == premium", vars)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvaluateCondition("plan == 'premium'", vars)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvaluateCondition("plan != basico", vars)
	require.NoError(t, err)
	assert.True(t, got)

	// Orden sobre texto no numérico evalúa falso, nunca error
	got, err = EvaluateCondition("plan > abc", vars)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateCondition_BoolComparisons(t *testing.T) {
	vars := map[string]any{"confirmed": true}

	got, err := EvaluateCondition("confirmed == true", vars)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvaluateCondition("confirmed != true", vars)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = EvaluateCondition("confirmed > true", vars)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateCondition_UndefinedIdentifier(t *testing.T) {
	vars := map[string]any{}

	got, err := EvaluateCondition("missing == 1", vars)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = EvaluateCondition("missing != 1", vars)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvaluateCondition("missing >= 1", vars)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateCondition_IsDeterministicAndPure(t *testing.T) {
	vars := map[string]any{"age": float64(20), "plan": "basico"}

	for i := 0; i < 5; i++ {
		got, err := EvaluateCondition("age >= 18", vars)
		require.NoError(t, err)
		assert.True(t, got)
	}

	assert.Len(t, vars, 2)
	assert.Equal(t, float64(20), vars["age"])
}
