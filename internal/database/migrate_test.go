package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesArePaired(t *testing.T) {
	names, err := MigrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %q", n)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCarriesUniqueGuards(t *testing.T) {
	b, err := migrationFS.ReadFile("migrations/000001_schema.up.sql")
	require.NoError(t, err)
	schema := string(b)
	for _, key := range []string{
		"uq_users_email", "uq_users_phone", "uq_users_bootstrap",
		"uq_roles_name", "uq_invitations_pending", "uq_role_privileges",
	} {
		assert.Contains(t, schema, key)
	}
}

func TestRoleNamesCompareAccents(t *testing.T) {
	b, err := migrationFS.ReadFile("migrations/000001_schema.up.sql")
	require.NoError(t, err)
	schema := string(b)
	assert.Contains(t, schema, "utf8mb4_0900_as_ci")
	assert.NotContains(t, schema, "_ai_ci")
}
