package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS(t *testing.T) {
	files, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"000001_create_operations.down.sql",
		"000001_create_operations.up.sql",
	}, files)
}
