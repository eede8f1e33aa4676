package adapter

import (
	"context"
	"fmt"
	"strings"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/services/connection"
	"dbaccountsync/services/filter"
)

// mysqlGlobalPrivileges maps mysql.user Y/N columns to privilege names.
var mysqlGlobalPrivileges = []struct{ column, name string }{
	{"select_priv", "SELECT"},
	{"insert_priv", "INSERT"},
	{"update_priv", "UPDATE"},
	{"delete_priv", "DELETE"},
	{"create_priv", "CREATE"},
	{"drop_priv", "DROP"},
	{"reload_priv", "RELOAD"},
	{"shutdown_priv", "SHUTDOWN"},
	{"process_priv", "PROCESS"},
	{"file_priv", "FILE"},
	{"grant_priv", "GRANT OPTION"},
	{"references_priv", "REFERENCES"},
	{"index_priv", "INDEX"},
	{"alter_priv", "ALTER"},
	{"show_db_priv", "SHOW DATABASES"},
	{"super_priv", "SUPER"},
	{"create_tmp_table_priv", "CREATE TEMPORARY TABLES"},
	{"lock_tables_priv", "LOCK TABLES"},
	{"execute_priv", "EXECUTE"},
	{"repl_slave_priv", "REPLICATION SLAVE"},
	{"repl_client_priv", "REPLICATION CLIENT"},
	{"create_view_priv", "CREATE VIEW"},
	{"show_view_priv", "SHOW VIEW"},
	{"create_routine_priv", "CREATE ROUTINE"},
	{"alter_routine_priv", "ALTER ROUTINE"},
	{"create_user_priv", "CREATE USER"},
	{"event_priv", "EVENT"},
	{"trigger_priv", "TRIGGER"},
	{"create_tablespace_priv", "CREATE TABLESPACE"},
}

// mysqlDatabasePrivileges maps mysql.db Y/N columns to privilege names.
var mysqlDatabasePrivileges = []struct{ column, name string }{
	{"select_priv", "SELECT"},
	{"insert_priv", "INSERT"},
	{"update_priv", "UPDATE"},
	{"delete_priv", "DELETE"},
	{"create_priv", "CREATE"},
	{"drop_priv", "DROP"},
	{"grant_priv", "GRANT OPTION"},
	{"references_priv", "REFERENCES"},
	{"index_priv", "INDEX"},
	{"alter_priv", "ALTER"},
	{"create_tmp_table_priv", "CREATE TEMPORARY TABLES"},
	{"lock_tables_priv", "LOCK TABLES"},
	{"create_view_priv", "CREATE VIEW"},
	{"show_view_priv", "SHOW VIEW"},
	{"create_routine_priv", "CREATE ROUTINE"},
	{"alter_routine_priv", "ALTER ROUTINE"},
	{"execute_priv", "EXECUTE"},
	{"event_priv", "EVENT"},
	{"trigger_priv", "TRIGGER"},
}

type mysqlAdapter struct {
	rule filter.Rule
}

func (a *mysqlAdapter) DBType() string { return models.DBTypeMySQL }

func (a *mysqlAdapter) DetectChanges(old, new models.Privileges) Diff { return Compare(old, new) }

// SplitMySQLUsername splits "user@host" at the last '@'. The host part may be empty.
func SplitMySQLUsername(username string) (user, host string) {
	i := strings.LastIndex(username, "@")
	if i < 0 {
		return username, ""
	}
	return username[:i], username[i+1:]
}

func (a *mysqlAdapter) GetAccounts(ctx context.Context, conn connection.Conn) ([]models.Account, error) {
	return a.load(ctx, conn, func(b *filter.Builder) *filter.Builder {
		return a.rule.Apply(b, "User")
	})
}

func (a *mysqlAdapter) GetAccount(ctx context.Context, conn connection.Conn, username string) (*models.Account, error) {
	user, host := SplitMySQLUsername(username)
	accounts, err := a.load(ctx, conn, func(b *filter.Builder) *filter.Builder {
		return b.Eq("User", user).Eq("Host", host)
	})
	if err != nil {
		return nil, err
	}
	return single(accounts, username)
}

// load reads mysql.user and mysql.db narrowed by narrow. SELECT * keeps the
// query portable across server versions whose grant tables differ in columns.
func (a *mysqlAdapter) load(ctx context.Context, conn connection.Conn, narrow func(*filter.Builder) *filter.Builder) ([]models.Account, error) {
	b, err := filter.NewBuilder(models.DBTypeMySQL)
	if err != nil {
		return nil, err
	}
	cond, args, err := narrow(b).Where()
	if err != nil {
		return nil, err
	}
	users, err := conn.Query(ctx, "SELECT * FROM mysql.user WHERE "+cond+" ORDER BY User, Host", args...)
	if err != nil {
		return nil, fmt.Errorf("list mysql users: %w", err)
	}

	dbGrants := map[string]map[string][]string{}
	dbRows, err := conn.Query(ctx, "SELECT * FROM mysql.db WHERE "+cond, args...)
	if err != nil {
		logger.Warnf("Skipping database-level privileges for mysql: %v", err)
	}
	for _, row := range dbRows {
		key := row.String("user") + "@" + row.String("host")
		var privs []string
		for _, p := range mysqlDatabasePrivileges {
			if row.Bool(p.column) {
				privs = append(privs, p.name)
			}
		}
		if len(privs) == 0 {
			continue
		}
		if dbGrants[key] == nil {
			dbGrants[key] = map[string][]string{}
		}
		db := row.String("db")
		dbGrants[key][db] = append(dbGrants[key][db], privs...)
	}

	accounts := make([]models.Account, 0, len(users))
	for _, row := range users {
		user, host := row.String("user"), row.String("host")
		username := user + "@" + host

		var global []string
		for _, p := range mysqlGlobalPrivileges {
			if row.Bool(p.column) {
				global = append(global, p.name)
			}
		}
		priv := &models.MySQLPrivileges{
			GlobalPrivileges:   global,
			DatabasePrivileges: dbGrants[username],
			TypeSpecific:       mysqlTypeSpecific(row, user, host),
		}
		priv.Normalize()
		accounts = append(accounts, models.Account{
			Username:    username,
			IsSuperuser: models.SetContains(priv.GlobalPrivileges, "SUPER"),
			Privileges:  priv,
		})
	}
	sortAccounts(accounts)
	return accounts, nil
}

func mysqlTypeSpecific(row connection.Row, user, host string) map[string]any {
	ts := map[string]any{
		"original_username":     user,
		"host":                  host,
		"ssl_type":              row.String("ssl_type"),
		"ssl_cipher":            row.String("ssl_cipher"),
		"x509_issuer":           row.String("x509_issuer"),
		"x509_subject":          row.String("x509_subject"),
		"max_questions":         row.Int64("max_questions"),
		"max_updates":           row.Int64("max_updates"),
		"max_connections":       row.Int64("max_connections"),
		"max_user_connections":  row.Int64("max_user_connections"),
		"plugin":                row.String("plugin"),
		"has_auth_string":       row.String("authentication_string") != "",
		"password_expired":      row.Bool("password_expired"),
		"is_locked":             row.Bool("account_locked"),
		"password_last_changed": nil,
		"password_lifetime":     nil,
	}
	if !row.IsNull("password_last_changed") {
		ts["password_last_changed"] = row.String("password_last_changed")
	}
	if !row.IsNull("password_lifetime") {
		ts["password_lifetime"] = row.Int64("password_lifetime")
	}
	return ts
}

func (a *mysqlAdapter) ValidatePermissions(p models.Privileges, username string) bool {
	if _, ok := p.(*models.MySQLPrivileges); !ok {
		return false
	}
	return username != "" && strings.Contains(username, "@")
}
