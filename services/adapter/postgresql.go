package adapter

import (
	"context"
	"fmt"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/services/connection"
	"dbaccountsync/services/filter"
)

// Role attribute keys stored in role_attributes.
const (
	PGAttrSuperuser       = "SUPERUSER"
	PGAttrInherit         = "INHERIT"
	PGAttrCreateRole      = "CREATEROLE"
	PGAttrCreateDB        = "CREATEDB"
	PGAttrLogin           = "LOGIN"
	PGAttrReplication     = "REPLICATION"
	PGAttrBypassRLS       = "BYPASSRLS"
	PGAttrConnectionLimit = "CONNECTION_LIMIT"
	PGAttrValidUntil      = "VALID_UNTIL"
)

const pgRolesQuery = `SELECT r.rolname, r.rolsuper, r.rolinherit, r.rolcreaterole, r.rolcreatedb,
	r.rolcanlogin, r.rolreplication, r.rolbypassrls, r.rolconnlimit,
	CASE WHEN r.rolvaliduntil IS NULL OR r.rolvaliduntil = 'infinity'::timestamptz THEN NULL
		ELSE to_char(r.rolvaliduntil AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"') END AS valid_until
FROM pg_roles r
WHERE %s
ORDER BY r.rolname`

const pgMembershipQuery = `SELECT m.rolname AS member, g.rolname AS role_name
FROM pg_auth_members am
JOIN pg_roles g ON g.oid = am.roleid
JOIN pg_roles m ON m.oid = am.member
WHERE %s`

const pgDatabaseQuery = `SELECT r.rolname, d.datname,
	has_database_privilege(r.oid, d.oid, 'CONNECT') AS can_connect,
	has_database_privilege(r.oid, d.oid, 'CREATE') AS can_create,
	has_database_privilege(r.oid, d.oid, 'TEMPORARY') AS can_temp
FROM pg_roles r CROSS JOIN pg_database d
WHERE NOT d.datistemplate AND %s`

const pgTablespaceQuery = `SELECT r.rolname, t.spcname
FROM pg_roles r CROSS JOIN pg_tablespace t
WHERE has_tablespace_privilege(r.oid, t.oid, 'CREATE') AND %s`

const pgUsageQuery = `SELECT DISTINCT grantee, privilege_type
FROM information_schema.role_usage_grants
WHERE %s`

type postgresAdapter struct {
	rule filter.Rule
}

func (a *postgresAdapter) DBType() string { return models.DBTypePostgreSQL }

func (a *postgresAdapter) DetectChanges(old, new models.Privileges) Diff { return Compare(old, new) }

func (a *postgresAdapter) GetAccounts(ctx context.Context, conn connection.Conn) ([]models.Account, error) {
	return a.load(ctx, conn, byRule(a.rule))
}

func (a *postgresAdapter) GetAccount(ctx context.Context, conn connection.Conn, username string) (*models.Account, error) {
	accounts, err := a.load(ctx, conn, byName(username))
	if err != nil {
		return nil, err
	}
	return single(accounts, username)
}

func (a *postgresAdapter) load(ctx context.Context, conn connection.Conn, sc scope) ([]models.Account, error) {
	roles, err := a.query(ctx, conn, pgRolesQuery, sc, "r.rolname")
	if err != nil {
		return nil, fmt.Errorf("list postgresql roles: %w", err)
	}

	memberships := map[string][]string{}
	rows, err := a.query(ctx, conn, pgMembershipQuery, sc, "m.rolname")
	a.skip("role memberships", err)
	for _, row := range rows {
		member := row.String("member")
		memberships[member] = append(memberships[member], row.String("role_name"))
	}

	databases := map[string]map[string][]string{}
	rows, err = a.query(ctx, conn, pgDatabaseQuery, sc, "r.rolname")
	a.skip("database privileges", err)
	for _, row := range rows {
		var privs []string
		if row.Bool("can_connect") {
			privs = append(privs, "CONNECT")
		}
		if row.Bool("can_create") {
			privs = append(privs, "CREATE")
		}
		if row.Bool("can_temp") {
			privs = append(privs, "TEMPORARY")
		}
		if len(privs) == 0 {
			continue
		}
		appendNested(databases, row.String("rolname"), row.String("datname"), privs...)
	}

	tablespaces := map[string]map[string][]string{}
	rows, err = a.query(ctx, conn, pgTablespaceQuery, sc, "r.rolname")
	a.skip("tablespace privileges", err)
	for _, row := range rows {
		appendNested(tablespaces, row.String("rolname"), row.String("spcname"), "CREATE")
	}

	usage := map[string][]string{}
	rows, err = a.query(ctx, conn, pgUsageQuery, sc, "grantee")
	a.skip("usage grants", err)
	for _, row := range rows {
		grantee := row.String("grantee")
		usage[grantee] = append(usage[grantee], row.String("privilege_type"))
	}

	accounts := make([]models.Account, 0, len(roles))
	for _, row := range roles {
		name := row.String("rolname")
		attrs := map[string]any{
			PGAttrSuperuser:       row.Bool("rolsuper"),
			PGAttrInherit:         row.Bool("rolinherit"),
			PGAttrCreateRole:      row.Bool("rolcreaterole"),
			PGAttrCreateDB:        row.Bool("rolcreatedb"),
			PGAttrLogin:           row.Bool("rolcanlogin"),
			PGAttrReplication:     row.Bool("rolreplication"),
			PGAttrBypassRLS:       row.Bool("rolbypassrls"),
			PGAttrConnectionLimit: row.Int64("rolconnlimit"),
			PGAttrValidUntil:      nil,
		}
		if !row.IsNull("valid_until") {
			attrs[PGAttrValidUntil] = row.String("valid_until")
		}

		system := usage[name]
		if row.Bool("rolsuper") {
			system = append(system, PGAttrSuperuser)
		}
		priv := &models.PostgreSQLPrivileges{
			PredefinedRoles:      memberships[name],
			RoleAttributes:       attrs,
			DatabasePrivileges:   databases[name],
			TablespacePrivileges: tablespaces[name],
			SystemPrivileges:     system,
		}
		priv.Normalize()
		accounts = append(accounts, models.Account{
			Username:    name,
			IsSuperuser: row.Bool("rolsuper"),
			Privileges:  priv,
		})
	}
	sortAccounts(accounts)
	return accounts, nil
}

func (a *postgresAdapter) query(ctx context.Context, conn connection.Conn, tmpl string, sc scope, column string) ([]connection.Row, error) {
	cond, args, err := where(models.DBTypePostgreSQL, sc, column)
	if err != nil {
		return nil, err
	}
	return conn.Query(ctx, fmt.Sprintf(tmpl, cond), args...)
}

func (a *postgresAdapter) skip(what string, err error) {
	if err != nil {
		logger.Warnf("Skipping %s for postgresql: %v", what, err)
	}
}

func (a *postgresAdapter) ValidatePermissions(p models.Privileges, username string) bool {
	pg, ok := p.(*models.PostgreSQLPrivileges)
	if !ok || username == "" {
		return false
	}
	_, hasLogin := pg.RoleAttributes[PGAttrLogin]
	return hasLogin
}

// appendNested appends values to m[outer][inner].
func appendNested(m map[string]map[string][]string, outer, inner string, values ...string) {
	if m[outer] == nil {
		m[outer] = map[string][]string{}
	}
	m[outer][inner] = append(m[outer][inner], values...)
}
