package pgx

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/graphsync/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAttributes(t *testing.T) {
	empty, err := encodeAttributes(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)

	payload, err := encodeAttributes(common.Attributes{common.AttrIteration: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"iteration":2}`, payload)

	_, err = encodeAttributes(common.Attributes{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestDecodeAttributes(t *testing.T) {
	attrs, err := decodeAttributes([]byte(`{"description":["a","b"],"idx":3}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, attrs.Strings(common.AttrDescription))
	assert.Equal(t, 3, attrs.Int(common.AttrIndex))

	attrs, err = decodeAttributes(nil)
	require.NoError(t, err)
	assert.Empty(t, attrs)

	_, err = decodeAttributes([]byte(`{`))
	assert.Error(t, err)
}

func TestDecodeDescriptions(t *testing.T) {
	assert.Equal(t, []string{"one"}, decodeDescriptions([]byte(`"one"`)))
	assert.Equal(t, []string{"x", "y"}, decodeDescriptions([]byte(`["x","y"]`)))
	assert.Nil(t, decodeDescriptions(nil))
	assert.Nil(t, decodeDescriptions([]byte(`null`)))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.Glob(migrationFS, "migrations/*.sql")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	up, err := fs.ReadFile(migrationFS, "migrations/000001_init.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"vertices", "edges", "embeddings", "vector_indexes", "app_locks", "ecc_graphs", "ecc_runs"} {
		assert.True(t, strings.Contains(string(up), "CREATE TABLE IF NOT EXISTS "+table), table)
	}

	pending, err := fs.ReadFile(migrationFS, "migrations/000002_pending_steps.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(pending), "CREATE TABLE IF NOT EXISTS pending_steps")
	assert.Contains(t, string(pending), "correlation_ids")
}
