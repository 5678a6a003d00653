package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() *Options {
	return NewOptions(func() Conn { return nil })
}

func TestRewriteNamedParametersOrdersByFirstOccurrence(t *testing.T) {
	text, args, err := RewriteNamedParameters(testOptions(),
		"SELECT * FROM users WHERE id = @id AND status = @status OR @id IS NULL",
		map[string]any{"id": 7, "status": "active"},
	)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE id = $1 AND status = $2 OR $1 IS NULL", text)
	assert.Equal(t, []any{7, "active"}, args)
}

func TestRewriteNamedParametersNoTokensPassesThrough(t *testing.T) {
	text, args, err := RewriteNamedParameters(testOptions(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", text)
	assert.Nil(t, args)
}

func TestRewriteNamedParametersRejectsValuesWithNoTokens(t *testing.T) {
	_, _, err := RewriteNamedParameters(testOptions(), "SELECT 1", map[string]any{"id": 1})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeNoNamedParameters, code)
}

func TestRewriteNamedParametersMissingValue(t *testing.T) {
	_, _, err := RewriteNamedParameters(testOptions(), "SELECT * FROM t WHERE id = @id", map[string]any{})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeMissingQueryParameter, code)
	assert.Contains(t, err.Error(), "Missing query parameter(s): id")
}

func TestRewriteNamedParametersListsAllMissingValuesInOrder(t *testing.T) {
	_, _, err := RewriteNamedParameters(testOptions(),
		"SELECT * FROM t WHERE id = @id AND status = @status AND owner = @owner",
		map[string]any{"status": "active"},
	)
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeMissingQueryParameter, code)
	assert.Contains(t, err.Error(), "Missing query parameter(s): id, owner")
}
