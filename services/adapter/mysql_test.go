package adapter_test

import (
	"context"
	"testing"
	"time"

	"dbaccountsync/models"
	"dbaccountsync/services/adapter"
	"dbaccountsync/services/connection"
	"dbaccountsync/services/filter"
	"dbaccountsync/services/privilege"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFixture(t *testing.T, accounts ...privilege.Account) connection.Conn {
	t.Helper()
	ctx := context.Background()
	fx, err := privilege.StartFixture(ctx, 0, &privilege.Seed{Accounts: accounts})
	require.NoError(t, err)
	t.Cleanup(func() { fx.Close() })

	conn, err := connection.NewFactoryWith(5*time.Second, 5*time.Second, nil).Open(ctx, fx.Instance("fixture"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMySQL_GetAccounts(t *testing.T) {
	conn := openFixture(t,
		privilege.Account{User: "root", Host: "localhost", GlobalPrivileges: []string{"SELECT", "INSERT", "SUPER"}, Plugin: "caching_sha2_password", Password: true},
		privilege.Account{User: "app", Host: "%", GlobalPrivileges: []string{"USAGE"},
			DatabasePrivileges: map[string][]string{"shop": {"UPDATE", "SELECT"}, "audit": {"SELECT"}}, MaxConnections: 20},
		privilege.Account{User: "legacy", Host: "", Locked: true},
	)

	a, err := adapter.New(models.DBTypeMySQL, adapter.Options{})
	require.NoError(t, err)
	accounts, err := a.GetAccounts(context.Background(), conn)
	require.NoError(t, err)

	require.Len(t, accounts, 3)
	assert.Equal(t, "app@%", accounts[0].Username)
	assert.Equal(t, "legacy@", accounts[1].Username)
	assert.Equal(t, "root@localhost", accounts[2].Username)

	root := accounts[2].Privileges.(*models.MySQLPrivileges)
	assert.True(t, accounts[2].IsSuperuser)
	assert.Equal(t, []string{"INSERT", "SELECT", "SUPER"}, root.GlobalPrivileges)
	assert.Equal(t, "caching_sha2_password", root.TypeSpecific["plugin"])
	assert.Equal(t, true, root.TypeSpecific["has_auth_string"])

	app := accounts[0].Privileges.(*models.MySQLPrivileges)
	assert.False(t, accounts[0].IsSuperuser)
	assert.Empty(t, app.GlobalPrivileges)
	assert.Equal(t, map[string][]string{"audit": {"SELECT"}, "shop": {"SELECT", "UPDATE"}}, app.DatabasePrivileges)
	assert.Equal(t, int64(20), app.TypeSpecific["max_user_connections"])

	legacy := accounts[1].Privileges.(*models.MySQLPrivileges)
	assert.False(t, legacy.IsActive())
	assert.Equal(t, "", legacy.TypeSpecific["host"])
}

func TestMySQL_GetAccountBindsEmptyHost(t *testing.T) {
	conn := openFixture(t,
		privilege.Account{User: "legacy", Host: ""},
		privilege.Account{User: "legacy", Host: "localhost", GlobalPrivileges: []string{"SELECT"}},
	)

	a, err := adapter.New(models.DBTypeMySQL, adapter.Options{})
	require.NoError(t, err)

	acc, err := a.GetAccount(context.Background(), conn, "legacy@")
	require.NoError(t, err)
	assert.Equal(t, "legacy@", acc.Username)
	assert.Empty(t, acc.Privileges.(*models.MySQLPrivileges).GlobalPrivileges)

	acc, err = a.GetAccount(context.Background(), conn, "legacy@localhost")
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT"}, acc.Privileges.(*models.MySQLPrivileges).GlobalPrivileges)
}

func TestMySQL_FilterRulesExcludeUsers(t *testing.T) {
	conn := openFixture(t,
		privilege.Account{User: "root", Host: "localhost"},
		privilege.Account{User: "mysql.sys", Host: "localhost"},
		privilege.Account{User: "app", Host: "%"},
	)

	a, err := adapter.New(models.DBTypeMySQL, adapter.Options{Rules: filter.Rules{
		models.DBTypeMySQL: {ExcludeUsers: []string{"root"}, ExcludePatterns: []string{"mysql.%"}},
	}})
	require.NoError(t, err)
	accounts, err := a.GetAccounts(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "app@%", accounts[0].Username)
}
