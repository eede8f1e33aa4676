package adapter

import (
	"context"
	"fmt"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/services/connection"
	"dbaccountsync/services/filter"
)

// Tablespace privilege tags stored in tablespace_privileges_oracle.
const (
	OracleAllTablespaces = "ALL_TABLESPACES"
	OracleUnlimited      = "UNLIMITED"
	OracleQuota          = "QUOTA"
	OracleOwner          = "OWNER"
	OracleIndexOwner     = "INDEX_OWNER"
)

// oracleSource is a dictionary query with its user_* fallback used when the
// connecting principal cannot read the dba_* views.
type oracleSource struct {
	name     string
	dba      string
	column   string
	fallback string
}

var (
	oracleUsers = oracleSource{
		name: "users",
		dba: `SELECT username, account_status, default_tablespace, profile, expiry_date
FROM dba_users WHERE %s ORDER BY username`,
		column: "username",
		fallback: `SELECT username, account_status, default_tablespace, NULL AS profile, expiry_date
FROM user_users`,
	}
	oracleRoles = oracleSource{
		name:     "roles",
		dba:      `SELECT grantee, granted_role FROM dba_role_privs WHERE %s`,
		column:   "grantee",
		fallback: `SELECT username AS grantee, granted_role FROM user_role_privs`,
	}
	oracleSysPrivs = oracleSource{
		name:     "system privileges",
		dba:      `SELECT grantee, privilege FROM dba_sys_privs WHERE %s`,
		column:   "grantee",
		fallback: `SELECT username AS grantee, privilege FROM user_sys_privs`,
	}
	oracleQuotas = oracleSource{
		name:     "tablespace quotas",
		dba:      `SELECT username, tablespace_name, max_bytes FROM dba_ts_quotas WHERE %s`,
		column:   "username",
		fallback: `SELECT USER AS username, tablespace_name, max_bytes FROM user_ts_quotas`,
	}
	oracleTables = oracleSource{
		name: "table ownership",
		dba: `SELECT owner, tablespace_name FROM dba_tables
WHERE tablespace_name IS NOT NULL AND %s GROUP BY owner, tablespace_name`,
		column: "owner",
		fallback: `SELECT USER AS owner, tablespace_name FROM user_tables
WHERE tablespace_name IS NOT NULL GROUP BY tablespace_name`,
	}
	oracleIndexes = oracleSource{
		name: "index ownership",
		dba: `SELECT owner, tablespace_name FROM dba_indexes
WHERE tablespace_name IS NOT NULL AND %s GROUP BY owner, tablespace_name`,
		column: "owner",
		fallback: `SELECT USER AS owner, tablespace_name FROM user_indexes
WHERE tablespace_name IS NOT NULL GROUP BY tablespace_name`,
	}
)

type oracleAdapter struct {
	rule filter.Rule
}

func (a *oracleAdapter) DBType() string { return models.DBTypeOracle }

func (a *oracleAdapter) DetectChanges(old, new models.Privileges) Diff { return Compare(old, new) }

func (a *oracleAdapter) GetAccounts(ctx context.Context, conn connection.Conn) ([]models.Account, error) {
	return a.load(ctx, conn, byRule(a.rule))
}

func (a *oracleAdapter) GetAccount(ctx context.Context, conn connection.Conn, username string) (*models.Account, error) {
	accounts, err := a.load(ctx, conn, byName(username))
	if err != nil {
		return nil, err
	}
	return single(accounts, username)
}

func (a *oracleAdapter) load(ctx context.Context, conn connection.Conn, sc scope) ([]models.Account, error) {
	users, err := a.query(ctx, conn, oracleUsers, sc)
	if err != nil {
		return nil, fmt.Errorf("list oracle users: %w", err)
	}

	roles := map[string][]string{}
	for _, row := range a.optional(ctx, conn, oracleRoles, sc) {
		roles[row.String("grantee")] = append(roles[row.String("grantee")], row.String("granted_role"))
	}

	sysPrivs := map[string][]string{}
	for _, row := range a.optional(ctx, conn, oracleSysPrivs, sc) {
		sysPrivs[row.String("grantee")] = append(sysPrivs[row.String("grantee")], row.String("privilege"))
	}

	tablespaces := map[string]map[string][]string{}
	for _, row := range a.optional(ctx, conn, oracleQuotas, sc) {
		tag := OracleQuota
		if row.Int64("max_bytes") == -1 {
			tag = OracleUnlimited
		}
		appendNested(tablespaces, row.String("username"), row.String("tablespace_name"), tag)
	}
	for _, row := range a.optional(ctx, conn, oracleTables, sc) {
		appendNested(tablespaces, row.String("owner"), row.String("tablespace_name"), OracleOwner)
	}
	for _, row := range a.optional(ctx, conn, oracleIndexes, sc) {
		appendNested(tablespaces, row.String("owner"), row.String("tablespace_name"), OracleIndexOwner)
	}

	accounts := make([]models.Account, 0, len(users))
	for _, row := range users {
		name := row.String("username")
		ts := tablespaces[name]
		if models.SetContains(sysPrivs[name], "UNLIMITED TABLESPACE") {
			if ts == nil {
				ts = map[string][]string{}
			}
			ts[OracleAllTablespaces] = append(ts[OracleAllTablespaces], OracleUnlimited)
		}
		priv := &models.OraclePrivileges{
			Roles:                roles[name],
			SystemPrivileges:     sysPrivs[name],
			TablespacePrivileges: ts,
			TypeSpecific: map[string]any{
				"account_status":     row.String("account_status"),
				"default_tablespace": row.String("default_tablespace"),
				"profile":            row.String("profile"),
				"expiry_date":        nil,
			},
		}
		if !row.IsNull("expiry_date") {
			priv.TypeSpecific["expiry_date"] = row.String("expiry_date")
		}
		priv.Normalize()
		accounts = append(accounts, models.Account{
			Username: name,
			IsSuperuser: models.SetContains(priv.Roles, "DBA") ||
				models.SetContains(priv.SystemPrivileges, "GRANT ANY PRIVILEGE"),
			Privileges: priv,
		})
	}
	sortAccounts(accounts)
	return accounts, nil
}

// query runs the dba_* form of src and falls back to the user_* form. Rows of
// the fallback are narrowed by sc.keep since the user views take no WHERE.
func (a *oracleAdapter) query(ctx context.Context, conn connection.Conn, src oracleSource, sc scope) ([]connection.Row, error) {
	cond, args, err := where(models.DBTypeOracle, sc, src.column)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, fmt.Sprintf(src.dba, cond), args...)
	if err == nil {
		return rows, nil
	}
	logger.Debugf("Oracle dba view for %s unavailable, using user view: %v", src.name, err)
	rows, err = conn.Query(ctx, src.fallback)
	if err != nil {
		return nil, err
	}
	kept := rows[:0]
	for _, row := range rows {
		if sc.keep(row.String(src.column)) {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

// optional runs query for a detail source; a failure is logged and the
// source contributes nothing.
func (a *oracleAdapter) optional(ctx context.Context, conn connection.Conn, src oracleSource, sc scope) []connection.Row {
	rows, err := a.query(ctx, conn, src, sc)
	if err != nil {
		logger.Warnf("Skipping %s for oracle: %v", src.name, err)
		return nil
	}
	return rows
}

func (a *oracleAdapter) ValidatePermissions(p models.Privileges, username string) bool {
	o, ok := p.(*models.OraclePrivileges)
	if !ok || username == "" {
		return false
	}
	_, hasStatus := o.TypeSpecific["account_status"]
	return hasStatus
}
