package expression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluateBool(t *testing.T) {
	e := NewEngine()

	ok, err := e.EvaluateBool(`record.count >= 0`, map[string]interface{}{
		"record": map[string]interface{}{"count": 3},
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.EvaluateBool(`record.count >= 0`, map[string]interface{}{
		"record": map[string]interface{}{"count": -1},
	})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateBoolToleratesUndefinedVariables(t *testing.T) {
	e := NewEngine()
	ok, err := e.EvaluateBool(`missing == nil`, map[string]interface{}{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvaluateBoolRejectsNonBooleanResult(t *testing.T) {
	e := NewEngine()
	_, err := e.EvaluateBool(`1 + 1`, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "did not evaluate to a boolean")
}

func TestBuiltinFunctions(t *testing.T) {
	e := NewEngine()

	ok, err := e.EvaluateBool(`LEN("hello") == 5`, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.EvaluateBool(`LOWER("ABC") == "abc"`, nil)
	require.NoError(t, err)
	require.True(t, ok)

	today := time.Now().Format("2006-01-02")
	ok, err = e.EvaluateBool(`TODAY() == due`, map[string]interface{}{"due": today})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.EvaluateBool(`LEN(42) == 2`, nil)
	require.Error(t, err)
}

func TestValidateCompile(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Validate(`record.count == nil || record.count >= 0`))
	require.Error(t, e.Validate(`record.count >=`))
}

func TestProgramCacheReturnsSameResult(t *testing.T) {
	e := NewEngine()
	for i := 0; i < 3; i++ {
		ok, err := e.EvaluateBool(`LEN(name) > 0`, map[string]interface{}{"name": "x"})
		require.NoError(t, err)
		require.True(t, ok)
	}
}
