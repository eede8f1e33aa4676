package classification

import (
	"testing"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		dbType  string
		want    Expression
		wantErr string
	}{
		{
			name:   "tagged mysql defaults to OR",
			raw:    `{"type":"mysql_permissions","global_privileges":["SUPER"]}`,
			dbType: models.DBTypeMySQL,
			want:   MySQLExpression{Operator: OperatorOr, GlobalPrivileges: []string{"SUPER"}},
		},
		{
			name:   "tagged sqlserver defaults to OR",
			raw:    `{"type":"sqlserver_permissions","server_roles":["sysadmin"]}`,
			dbType: models.DBTypeSQLServer,
			want:   SQLServerExpression{Operator: OperatorOr, ServerRoles: []string{"sysadmin"}},
		},
		{
			name:   "tagged mysql explicit and",
			raw:    `{"type":"mysql_permissions","operator":"and","global_privileges":["SUPER"]}`,
			dbType: models.DBTypeMySQL,
			want:   MySQLExpression{Operator: OperatorAnd, GlobalPrivileges: []string{"SUPER"}},
		},
		{
			name:   "tagged sqlserver lower-case operator",
			raw:    `{"type":"sqlserver_permissions","operator":"or","server_roles":["sysadmin"],"server_permissions":["CONTROL SERVER"]}`,
			dbType: models.DBTypeSQLServer,
			want:   SQLServerExpression{Operator: OperatorOr, ServerRoles: []string{"sysadmin"}, ServerPermissions: []string{"CONTROL SERVER"}},
		},
		{
			name:   "dotted mysql",
			raw:    `"global_privileges.SUPER"`,
			dbType: models.DBTypeMySQL,
			want:   MySQLExpression{Operator: OperatorAnd, GlobalPrivileges: []string{"SUPER"}},
		},
		{
			name:   "dotted oracle system privilege",
			raw:    `"system_privileges.CREATE SESSION"`,
			dbType: models.DBTypeOracle,
			want:   OracleExpression{SystemPrivileges: []string{"CREATE SESSION"}},
		},
		{
			name:   "dotted oracle role",
			raw:    `"roles.DBA"`,
			dbType: models.DBTypeOracle,
			want:   OracleExpression{Roles: []string{"DBA"}},
		},
		{
			name:    "unknown operator",
			raw:     `{"type":"mysql_permissions","operator":"XOR"}`,
			dbType:  models.DBTypeMySQL,
			wantErr: "operator must be AND or OR",
		},
		{
			name:    "dialect mismatch",
			raw:     `{"type":"oracle_permissions","roles":["DBA"]}`,
			dbType:  models.DBTypeMySQL,
			wantErr: "oracle_permissions expression on a mysql rule",
		},
		{
			name:    "unknown type",
			raw:     `{"type":"db2_permissions"}`,
			dbType:  models.DBTypeMySQL,
			wantErr: "unknown expression type",
		},
		{
			name:    "dotted without name",
			raw:     `"global_privileges"`,
			dbType:  models.DBTypeMySQL,
			wantErr: "must look like slot.NAME",
		},
		{
			name:    "postgres system privileges are not a dotted slot",
			raw:     `"system_privileges.CONNECT"`,
			dbType:  models.DBTypePostgreSQL,
			wantErr: "not supported",
		},
		{
			name:    "empty",
			raw:     ` `,
			dbType:  models.DBTypeMySQL,
			wantErr: "empty rule expression",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.raw), tt.dbType)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, errs.ErrValidationFailed)
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshalAddsType(t *testing.T) {
	raw, err := Marshal(PostgreSQLExpression{RoleAttributes: []string{"SUPERUSER"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"postgresql_permissions","role_attributes":["SUPERUSER"]}`, string(raw))

	back, err := Parse(raw, models.DBTypePostgreSQL)
	require.NoError(t, err)
	assert.Equal(t, PostgreSQLExpression{RoleAttributes: []string{"SUPERUSER"}}, back)
}

func TestEvaluate(t *testing.T) {
	mysql := func(global ...string) models.Account {
		return models.Account{Username: "u@%", Privileges: &models.MySQLPrivileges{GlobalPrivileges: global}}
	}
	sqlserver := models.Account{Username: "svc", Privileges: &models.SQLServerPrivileges{
		ServerRoles:       []string{"sysadmin"},
		ServerPermissions: []string{"CONNECT SQL"},
	}}
	pg := models.Account{Username: "alice", Privileges: &models.PostgreSQLPrivileges{
		RoleAttributes: map[string]any{"SUPERUSER": true, "CREATEDB": false, "CONNECTION_LIMIT": int64(-1)},
	}}
	oracle := models.Account{Username: "APP", Privileges: &models.OraclePrivileges{
		Roles:            []string{"CONNECT", "DBA"},
		SystemPrivileges: []string{"CREATE SESSION"},
	}}

	tests := []struct {
		name string
		expr Expression
		acc  models.Account
		want bool
	}{
		{"mysql and all present", MySQLExpression{Operator: OperatorAnd, GlobalPrivileges: []string{"SELECT", "INSERT"}}, mysql("SELECT", "INSERT"), true},
		{"mysql and one missing", MySQLExpression{Operator: OperatorAnd, GlobalPrivileges: []string{"SELECT", "INSERT"}}, mysql("SELECT"), false},
		{"mysql or one present", MySQLExpression{Operator: OperatorOr, GlobalPrivileges: []string{"DROP", "INSERT"}}, mysql("INSERT"), true},
		{"mysql privilege names are exact", MySQLExpression{Operator: OperatorAnd, GlobalPrivileges: []string{"SELECT"}}, mysql("select"), false},
		{"mysql exclude disqualifies", MySQLExpression{Operator: OperatorAnd, GlobalPrivileges: []string{"SELECT"}, ExcludePrivileges: []string{"SUPER"}}, mysql("SELECT", "SUPER"), false},
		{"mysql empty include passes", MySQLExpression{Operator: OperatorAnd, ExcludePrivileges: []string{"SUPER"}}, mysql("SELECT"), true},
		{"sqlserver and both terms", SQLServerExpression{Operator: OperatorAnd, ServerRoles: []string{"sysadmin"}, ServerPermissions: []string{"CONTROL SERVER"}}, sqlserver, false},
		{"sqlserver or either term", SQLServerExpression{Operator: OperatorOr, ServerRoles: []string{"sysadmin"}, ServerPermissions: []string{"CONTROL SERVER"}}, sqlserver, true},
		{"sqlserver no terms", SQLServerExpression{Operator: OperatorAnd}, sqlserver, true},
		{"postgres true attribute", PostgreSQLExpression{RoleAttributes: []string{"SUPERUSER"}}, pg, true},
		{"postgres attribute names are exact", PostgreSQLExpression{RoleAttributes: []string{"superuser"}}, pg, false},
		{"postgres false attribute", PostgreSQLExpression{RoleAttributes: []string{"CREATEDB"}}, pg, false},
		{"postgres absent attribute", PostgreSQLExpression{RoleAttributes: []string{"REPLICATION"}}, pg, false},
		{"oracle roles and privileges", OracleExpression{Roles: []string{"DBA"}, SystemPrivileges: []string{"CREATE SESSION"}}, oracle, true},
		{"oracle missing role", OracleExpression{Roles: []string{"DBA", "RESOURCE"}}, oracle, false},
		{"dialect mismatch never matches", MySQLExpression{Operator: OperatorAnd}, pg, false},
		{"nil expression", nil, oracle, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.expr, tt.acc))
		})
	}
}

func TestEvaluate_OperatorOmitted(t *testing.T) {
	expr, err := Parse([]byte(`{"type":"mysql_permissions","global_privileges":["SUPER","SELECT"]}`), models.DBTypeMySQL)
	require.NoError(t, err)

	acc := models.Account{Username: "reader@%", Privileges: &models.MySQLPrivileges{GlobalPrivileges: []string{"SELECT"}}}
	assert.True(t, Evaluate(expr, acc))

	expr, err = Parse([]byte(`{"type":"sqlserver_permissions","server_roles":["sysadmin"],"server_permissions":["CONTROL SERVER"]}`), models.DBTypeSQLServer)
	require.NoError(t, err)
	svc := models.Account{Username: "svc", Privileges: &models.SQLServerPrivileges{ServerRoles: []string{"sysadmin"}}}
	assert.True(t, Evaluate(expr, svc))
}
