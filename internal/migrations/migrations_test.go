package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(files, "sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaEnforcesSingleOpenGrant(t *testing.T) {
	body, err := fs.ReadFile(files, "sql/000001_consent_core.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "WHERE revoked_at IS NULL")
	assert.Contains(t, string(body), "token_hash         CHAR(64)     NOT NULL UNIQUE")
}
