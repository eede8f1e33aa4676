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

const mssqlLoginsQuery = `SELECT sp.name, sp.principal_id, CONVERT(VARCHAR(200), sp.sid, 2) AS sid_hex,
	sp.type_desc, sp.is_disabled, sp.default_database_name, sp.default_language_name,
	sl.is_expiration_checked, sl.is_policy_checked,
	IS_SRVROLEMEMBER('sysadmin', sp.name) AS is_sysadmin
FROM sys.server_principals sp
LEFT JOIN sys.sql_logins sl ON sp.principal_id = sl.principal_id AND sp.type = 'S'
WHERE sp.type IN ('S', 'U', 'G') AND %s
ORDER BY sp.name`

const mssqlServerRolesQuery = `SELECT m.name AS member_name, r.name AS role_name
FROM sys.server_role_members rm
JOIN sys.server_principals r ON rm.role_principal_id = r.principal_id
JOIN sys.server_principals m ON rm.member_principal_id = m.principal_id
WHERE %s`

const mssqlServerPermissionsQuery = `SELECT p.name AS grantee, sp.permission_name
FROM sys.server_permissions sp
JOIN sys.server_principals p ON sp.grantee_principal_id = p.principal_id
WHERE sp.state IN ('G', 'W') AND %s`

const mssqlDatabasesQuery = `SELECT TOP (%s) name
FROM sys.databases
WHERE state = 0 AND name NOT IN ('master', 'tempdb', 'model', 'msdb') AND HAS_DBACCESS(name) = 1
ORDER BY name`

// Per-database statements. %[1]s is the bracket-quoted database, %[2]s the
// placeholder bound to its name.
const (
	mssqlDBPrincipalsPart = `SELECT %[2]s AS db_name, dp.principal_id, dp.name AS user_name,
	CONVERT(VARCHAR(200), dp.sid, 2) AS sid_hex
FROM %[1]s.sys.database_principals dp
WHERE dp.type IN ('S', 'U', 'G')`
	mssqlDBRolesPart = `SELECT %[2]s AS db_name, rm.member_principal_id AS principal_id, r.name AS role_name
FROM %[1]s.sys.database_role_members rm
JOIN %[1]s.sys.database_principals r ON rm.role_principal_id = r.principal_id`
	mssqlDBPermissionsPart = `SELECT %[2]s AS db_name, dp.grantee_principal_id AS principal_id, dp.permission_name
FROM %[1]s.sys.database_permissions dp
WHERE dp.state IN ('G', 'W') AND dp.class = 0`
)

type sqlserverAdapter struct {
	rule         filter.Rule
	maxDatabases int
}

type mssqlLogin struct {
	name   string
	sidHex string
	sysadm bool
	priv   *models.SQLServerPrivileges
}

func (a *sqlserverAdapter) DBType() string { return models.DBTypeSQLServer }

func (a *sqlserverAdapter) DetectChanges(old, new models.Privileges) Diff { return Compare(old, new) }

func (a *sqlserverAdapter) GetAccounts(ctx context.Context, conn connection.Conn) ([]models.Account, error) {
	return a.load(ctx, conn, byRule(a.rule))
}

func (a *sqlserverAdapter) GetAccount(ctx context.Context, conn connection.Conn, username string) (*models.Account, error) {
	accounts, err := a.load(ctx, conn, byName(username))
	if err != nil {
		return nil, err
	}
	return single(accounts, username)
}

func (a *sqlserverAdapter) load(ctx context.Context, conn connection.Conn, sc scope) ([]models.Account, error) {
	rows, err := a.query(ctx, conn, mssqlLoginsQuery, sc, "sp.name")
	if err != nil {
		return nil, fmt.Errorf("list sqlserver logins: %w", err)
	}

	logins := make([]*mssqlLogin, 0, len(rows))
	named := map[string]*mssqlLogin{}
	bySID := map[string]*mssqlLogin{}
	for _, row := range rows {
		l := &mssqlLogin{
			name:   row.String("name"),
			sidHex: strings.ToUpper(row.String("sid_hex")),
			sysadm: row.Int64("is_sysadmin") == 1,
			priv: &models.SQLServerPrivileges{
				DatabaseRoles:       map[string][]string{},
				DatabasePermissions: map[string][]string{},
				TypeSpecific:        mssqlTypeSpecific(row),
			},
		}
		logins = append(logins, l)
		named[l.name] = l
		if l.sidHex != "" {
			bySID[l.sidHex] = l
		}
	}
	if len(logins) == 0 {
		return []models.Account{}, nil
	}

	rows, err = a.query(ctx, conn, mssqlServerRolesQuery, sc, "m.name")
	a.skip("server roles", err)
	for _, row := range rows {
		if l := named[row.String("member_name")]; l != nil {
			l.priv.ServerRoles = append(l.priv.ServerRoles, row.String("role_name"))
		}
	}

	rows, err = a.query(ctx, conn, mssqlServerPermissionsQuery, sc, "p.name")
	a.skip("server permissions", err)
	for _, row := range rows {
		if l := named[row.String("grantee")]; l != nil {
			l.priv.ServerPermissions = append(l.priv.ServerPermissions, row.String("permission_name"))
		}
	}

	databases, err := a.databases(ctx, conn)
	a.skip("database enumeration", err)
	if len(databases) > 0 {
		a.loadDatabaseGrants(ctx, conn, databases, named, bySID)
	}

	accounts := make([]models.Account, 0, len(logins))
	for _, l := range logins {
		sysadmin := l.sysadm || models.SetContains(l.priv.ServerRoles, "sysadmin")
		if sysadmin {
			if !models.SetContains(l.priv.ServerRoles, "sysadmin") {
				l.priv.ServerRoles = append(l.priv.ServerRoles, "sysadmin")
			}
			// sysadmin maps to dbo in every database.
			for _, db := range databases {
				l.priv.DatabaseRoles[db] = append(l.priv.DatabaseRoles[db], "db_owner")
			}
		}
		l.priv.Normalize()
		accounts = append(accounts, models.Account{
			Username:    l.name,
			IsSuperuser: strings.EqualFold(l.name, "sa") || sysadmin,
			Privileges:  l.priv,
		})
	}
	sortAccounts(accounts)
	return accounts, nil
}

func mssqlTypeSpecific(row connection.Row) map[string]any {
	disabled := row.Bool("is_disabled")
	ts := map[string]any{
		"principal_id":          row.Int64("principal_id"),
		"is_disabled":           disabled,
		"is_locked":             disabled,
		"account_type":          row.String("type_desc"),
		"default_database":      row.String("default_database_name"),
		"default_language":      row.String("default_language_name"),
		"is_expiration_checked": nil,
		"is_policy_checked":     nil,
	}
	if !row.IsNull("is_expiration_checked") {
		ts["is_expiration_checked"] = row.Bool("is_expiration_checked")
	}
	if !row.IsNull("is_policy_checked") {
		ts["is_policy_checked"] = row.Bool("is_policy_checked")
	}
	return ts
}

func (a *sqlserverAdapter) databases(ctx context.Context, conn connection.Conn) ([]string, error) {
	b, err := filter.NewBuilder(models.DBTypeSQLServer)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(mssqlDatabasesQuery, b.Arg(a.maxDatabases))
	rows, err := conn.Query(ctx, q, b.Args()...)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.String("name"))
	}
	return out, nil
}

// loadDatabaseGrants resolves database users back to logins and attaches
// their database roles and permissions. Each kind of fact is read with one
// UNION ALL statement across all databases.
func (a *sqlserverAdapter) loadDatabaseGrants(ctx context.Context, conn connection.Conn, databases []string, named, bySID map[string]*mssqlLogin) {
	type dbPrincipal struct{ db, id string }
	owners := map[dbPrincipal]*mssqlLogin{}

	for _, row := range a.unionAll(ctx, conn, mssqlDBPrincipalsPart, databases) {
		l := bySID[strings.ToUpper(row.String("sid_hex"))]
		if l == nil {
			l = named[row.String("user_name")]
		}
		if l != nil {
			owners[dbPrincipal{row.String("db_name"), row.String("principal_id")}] = l
		}
	}

	for _, row := range a.unionAll(ctx, conn, mssqlDBRolesPart, databases) {
		db := row.String("db_name")
		if l := owners[dbPrincipal{db, row.String("principal_id")}]; l != nil {
			l.priv.DatabaseRoles[db] = append(l.priv.DatabaseRoles[db], row.String("role_name"))
		}
	}

	for _, row := range a.unionAll(ctx, conn, mssqlDBPermissionsPart, databases) {
		db := row.String("db_name")
		if l := owners[dbPrincipal{db, row.String("principal_id")}]; l != nil {
			l.priv.DatabasePermissions[db] = append(l.priv.DatabasePermissions[db], row.String("permission_name"))
		}
	}
}

// unionAll runs part for every database in one statement. When the combined
// statement fails, it falls back to one statement per database and skips the
// databases that still fail.
func (a *sqlserverAdapter) unionAll(ctx context.Context, conn connection.Conn, part string, databases []string) []connection.Row {
	q, args, err := mssqlUnion(part, databases)
	if err != nil {
		a.skip("database grants", err)
		return nil
	}
	rows, err := conn.Query(ctx, q, args...)
	if err == nil {
		return rows
	}
	logger.Warnf("Combined sqlserver database query failed, retrying per database: %v", err)

	var out []connection.Row
	for _, db := range databases {
		q, args, err := mssqlUnion(part, []string{db})
		if err != nil {
			continue
		}
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			logger.Warnf("Skipping sqlserver database %s: %v", db, err)
			continue
		}
		out = append(out, rows...)
	}
	return out
}

func mssqlUnion(part string, databases []string) (string, []any, error) {
	b, err := filter.NewBuilder(models.DBTypeSQLServer)
	if err != nil {
		return "", nil, err
	}
	parts := make([]string, 0, len(databases))
	for _, db := range databases {
		parts = append(parts, fmt.Sprintf(part, QuoteSQLServerIdent(db), b.Arg(db)))
	}
	return strings.Join(parts, "\nUNION ALL\n"), b.Args(), nil
}

// QuoteSQLServerIdent bracket-quotes a SQL Server identifier.
func QuoteSQLServerIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (a *sqlserverAdapter) query(ctx context.Context, conn connection.Conn, tmpl string, sc scope, column string) ([]connection.Row, error) {
	cond, args, err := where(models.DBTypeSQLServer, sc, column)
	if err != nil {
		return nil, err
	}
	return conn.Query(ctx, fmt.Sprintf(tmpl, cond), args...)
}

func (a *sqlserverAdapter) skip(what string, err error) {
	if err != nil {
		logger.Warnf("Skipping %s for sqlserver: %v", what, err)
	}
}

func (a *sqlserverAdapter) ValidatePermissions(p models.Privileges, username string) bool {
	ss, ok := p.(*models.SQLServerPrivileges)
	if !ok || username == "" {
		return false
	}
	_, hasDisabled := ss.TypeSpecific["is_disabled"]
	return hasDisabled
}
