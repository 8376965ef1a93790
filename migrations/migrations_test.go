package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitKeepsFunctionBodies(t *testing.T) {
	script := `-- header
CREATE TABLE a (id INT);

CREATE FUNCTION f() RETURNS INT
LANGUAGE sql
AS $$
    SELECT 1;
$$;
CREATE INDEX i ON a (id);
`
	stmts := Split(script)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (id INT);", stmts[0])
	assert.Contains(t, stmts[1], "SELECT 1;")
	assert.True(t, strings.HasSuffix(stmts[1], "$$;"))
	assert.Equal(t, "CREATE INDEX i ON a (id);", stmts[2])
}

func TestStatementsEmbedded(t *testing.T) {
	stmts, err := Statements()
	require.NoError(t, err)
	require.NotEmpty(t, stmts)

	joined := strings.Join(stmts, "\n")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS userbot_orders")
	assert.Contains(t, joined, "FUNCTION increment_stat")
	assert.Contains(t, joined, "FUNCTION increment_chat_stat")
	for _, s := range stmts {
		assert.False(t, strings.HasPrefix(s, "--"), s)
	}
}
