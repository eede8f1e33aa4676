package models

import (
	"fmt"
	"sort"
	"strings"
)

// Database dialects supported by the sync engine.
const (
	DBTypeMySQL      = "mysql"
	DBTypePostgreSQL = "postgresql"
	DBTypeSQLServer  = "sqlserver"
	DBTypeOracle     = "oracle"
)

// SupportedDBTypes lists the dialects in a stable order.
var SupportedDBTypes = []string{DBTypeMySQL, DBTypePostgreSQL, DBTypeSQLServer, DBTypeOracle}

// IsSupportedDBType reports whether dbType names a known dialect.
func IsSupportedDBType(dbType string) bool {
	for _, t := range SupportedDBTypes {
		if t == dbType {
			return true
		}
	}
	return false
}

// NewSet builds a sorted, de-duplicated name list.
// Privilege lists are always stored in this canonical form so that the
// order returned by a target database never shows up as a change.
func NewSet(names ...string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SetContains reports whether name is present in set (exact match).
func SetContains(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}

// NewSetMap canonicalizes every value list of m and drops empty entries.
func NewSetMap(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		set := NewSet(v...)
		if len(set) == 0 {
			continue
		}
		out[k] = set
	}
	return out
}

// Privileges is the discriminated privilege bag of one account.
// Exactly one variant exists per dialect; code must switch on the concrete type.
type Privileges interface {
	DBType() string
	// IsActive derives the account activity flag from the variant's slots.
	IsActive() bool
	// Normalize puts every slot into canonical form.
	Normalize()
}

// MySQLPrivileges holds the mysql slots.
type MySQLPrivileges struct {
	GlobalPrivileges   []string            `json:"global_privileges"`
	DatabasePrivileges map[string][]string `json:"database_privileges"`
	TypeSpecific       map[string]any      `json:"type_specific"`
}

// DBType implements Privileges.
func (p *MySQLPrivileges) DBType() string { return DBTypeMySQL }

// IsActive is true unless the account is locked.
func (p *MySQLPrivileges) IsActive() bool {
	return !boolValue(p.TypeSpecific["is_locked"])
}

// Normalize implements Privileges.
func (p *MySQLPrivileges) Normalize() {
	p.GlobalPrivileges = NewSet(p.GlobalPrivileges...)
	p.DatabasePrivileges = NewSetMap(p.DatabasePrivileges)
	if p.TypeSpecific == nil {
		p.TypeSpecific = map[string]any{}
	}
}

// PostgreSQLPrivileges holds the postgresql slots.
type PostgreSQLPrivileges struct {
	PredefinedRoles      []string            `json:"predefined_roles"`
	RoleAttributes       map[string]any      `json:"role_attributes"`
	DatabasePrivileges   map[string][]string `json:"database_privileges_pg"`
	TablespacePrivileges map[string][]string `json:"tablespace_privileges"`
	SystemPrivileges     []string            `json:"system_privileges"`
}

// DBType implements Privileges.
func (p *PostgreSQLPrivileges) DBType() string { return DBTypePostgreSQL }

// IsActive follows the LOGIN attribute; roles that cannot log in are kept but inactive.
func (p *PostgreSQLPrivileges) IsActive() bool {
	return boolValue(p.RoleAttributes["LOGIN"])
}

// Normalize implements Privileges.
func (p *PostgreSQLPrivileges) Normalize() {
	p.PredefinedRoles = NewSet(p.PredefinedRoles...)
	p.DatabasePrivileges = NewSetMap(p.DatabasePrivileges)
	p.TablespacePrivileges = NewSetMap(p.TablespacePrivileges)
	p.SystemPrivileges = NewSet(p.SystemPrivileges...)
	if p.RoleAttributes == nil {
		p.RoleAttributes = map[string]any{}
	}
}

// SQLServerPrivileges holds the sqlserver slots.
type SQLServerPrivileges struct {
	ServerRoles         []string            `json:"server_roles"`
	ServerPermissions   []string            `json:"server_permissions"`
	DatabaseRoles       map[string][]string `json:"database_roles"`
	DatabasePermissions map[string][]string `json:"database_permissions"`
	TypeSpecific        map[string]any      `json:"type_specific"`
}

// DBType implements Privileges.
func (p *SQLServerPrivileges) DBType() string { return DBTypeSQLServer }

// IsActive is derived from is_disabled, mirrored into is_locked.
func (p *SQLServerPrivileges) IsActive() bool {
	if v, ok := p.TypeSpecific["is_disabled"]; ok {
		return !boolValue(v)
	}
	return !boolValue(p.TypeSpecific["is_locked"])
}

// Normalize implements Privileges.
func (p *SQLServerPrivileges) Normalize() {
	p.ServerRoles = NewSet(p.ServerRoles...)
	p.ServerPermissions = NewSet(p.ServerPermissions...)
	p.DatabaseRoles = NewSetMap(p.DatabaseRoles)
	p.DatabasePermissions = NewSetMap(p.DatabasePermissions)
	if p.TypeSpecific == nil {
		p.TypeSpecific = map[string]any{}
	}
}

// OraclePrivileges holds the oracle slots.
type OraclePrivileges struct {
	Roles                []string            `json:"oracle_roles"`
	SystemPrivileges     []string            `json:"system_privileges"`
	TablespacePrivileges map[string][]string `json:"tablespace_privileges_oracle"`
	TypeSpecific         map[string]any      `json:"type_specific"`
}

// DBType implements Privileges.
func (p *OraclePrivileges) DBType() string { return DBTypeOracle }

// IsActive is true only for OPEN accounts; EXPIRED(GRACE) counts as locked.
func (p *OraclePrivileges) IsActive() bool {
	status, _ := p.TypeSpecific["account_status"].(string)
	return strings.EqualFold(status, "OPEN")
}

// Normalize implements Privileges.
func (p *OraclePrivileges) Normalize() {
	p.Roles = NewSet(p.Roles...)
	p.SystemPrivileges = NewSet(p.SystemPrivileges...)
	p.TablespacePrivileges = NewSetMap(p.TablespacePrivileges)
	if p.TypeSpecific == nil {
		p.TypeSpecific = map[string]any{}
	}
}

// EmptyPrivileges returns a zero variant for dbType.
func EmptyPrivileges(dbType string) (Privileges, error) {
	var p Privileges
	switch dbType {
	case DBTypeMySQL:
		p = &MySQLPrivileges{}
	case DBTypePostgreSQL:
		p = &PostgreSQLPrivileges{}
	case DBTypeSQLServer:
		p = &SQLServerPrivileges{}
	case DBTypeOracle:
		p = &OraclePrivileges{}
	default:
		return nil, fmt.Errorf("no privilege model for db_type %q", dbType)
	}
	p.Normalize()
	return p, nil
}

// Account is one discovered principal with its normalized privileges.
type Account struct {
	ID          uint       `json:"id,omitempty"`
	InstanceID  uint       `json:"instance_id,omitempty"`
	Username    string     `json:"username"`
	IsSuperuser bool       `json:"is_superuser"`
	Privileges  Privileges `json:"permissions"`
}

// DBType returns the dialect of the account's privilege variant.
func (a Account) DBType() string {
	if a.Privileges == nil {
		return ""
	}
	return a.Privileges.DBType()
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	case string:
		switch strings.ToUpper(b) {
		case "Y", "YES", "TRUE", "T", "1":
			return true
		}
	}
	return false
}

// BoolValue interprets driver and JSON representations of a boolean flag.
func BoolValue(v any) bool {
	return boolValue(v)
}
