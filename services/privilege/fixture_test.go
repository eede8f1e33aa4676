package privilege

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dbaccountsync/services/connection"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - user: app
    host: "%"
    global_privileges: [SELECT]
    database_privileges:
      shop: [SELECT, UPDATE]
    has_password: true
  - user: legacy
    host: ""
    locked: true
`), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Accounts, 2)
	assert.Equal(t, "%", seed.Accounts[0].Host)
	assert.Equal(t, []string{"SELECT", "UPDATE"}, seed.Accounts[0].DatabasePrivileges["shop"])
	assert.True(t, seed.Accounts[0].Password)
	assert.True(t, seed.Accounts[1].Locked)
}

func TestLoadSeed_RejectsAccountWithoutUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  - host: localhost\n"), 0o600))

	_, err := LoadSeed(path)
	assert.ErrorContains(t, err, "has no user")
}

func TestQuoteEscapesLiterals(t *testing.T) {
	assert.Equal(t, `'o''brien'`, quote("o'brien"))
}

func TestFixture_LoadReplacesAccounts(t *testing.T) {
	ctx := context.Background()
	fx, err := StartFixture(ctx, 0, DefaultSeed())
	require.NoError(t, err)
	defer fx.Close()

	conn, err := connection.NewFactoryWith(5*time.Second, 5*time.Second, nil).Open(ctx, fx.Instance("fixture"))
	require.NoError(t, err)
	defer conn.Close()

	rows, err := conn.Query(ctx, "SELECT User, Host FROM mysql.user ORDER BY User")
	require.NoError(t, err)
	assert.Len(t, rows, len(DefaultSeed().Accounts))

	require.NoError(t, fx.Load([]Account{{User: "only", Host: "localhost", DatabasePrivileges: map[string][]string{"db1": {"SELECT"}}}}))

	rows, err = conn.Query(ctx, "SELECT User, Host FROM mysql.user")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "only", rows[0].String("user"))

	rows, err = conn.Query(ctx, "SELECT Db, Select_priv, Insert_priv FROM mysql.db WHERE User = ?", "only")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "db1", rows[0].String("db"))
	assert.True(t, rows[0].Bool("select_priv"))
	assert.False(t, rows[0].Bool("insert_priv"))
}
