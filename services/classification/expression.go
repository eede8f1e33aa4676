package classification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
)

// Expression types.
const (
	TypeMySQL      = "mysql_permissions"
	TypeSQLServer  = "sqlserver_permissions"
	TypePostgreSQL = "postgresql_permissions"
	TypeOracle     = "oracle_permissions"
)

// Operators combining the terms of an expression.
const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

// Expression is a parsed rule expression. Each variant belongs to one dialect
// and only ever matches accounts of that dialect.
type Expression interface {
	Type() string
	DBType() string
	Matches(p models.Privileges) bool
}

// MySQLExpression matches on global privileges.
type MySQLExpression struct {
	Operator          string   `json:"operator"`
	GlobalPrivileges  []string `json:"global_privileges"`
	ExcludePrivileges []string `json:"exclude_privileges"`
}

// SQLServerExpression matches on server permissions and roles.
type SQLServerExpression struct {
	Operator          string   `json:"operator"`
	ServerPermissions []string `json:"server_permissions"`
	ServerRoles       []string `json:"server_roles"`
}

// PostgreSQLExpression requires every listed role attribute to be true.
type PostgreSQLExpression struct {
	RoleAttributes []string `json:"role_attributes"`
}

// OracleExpression requires every listed role and system privilege.
type OracleExpression struct {
	Roles            []string `json:"roles"`
	SystemPrivileges []string `json:"system_privileges"`
}

func (MySQLExpression) Type() string        { return TypeMySQL }
func (MySQLExpression) DBType() string      { return models.DBTypeMySQL }
func (SQLServerExpression) Type() string    { return TypeSQLServer }
func (SQLServerExpression) DBType() string  { return models.DBTypeSQLServer }
func (PostgreSQLExpression) Type() string   { return TypePostgreSQL }
func (PostgreSQLExpression) DBType() string { return models.DBTypePostgreSQL }
func (OracleExpression) Type() string       { return TypeOracle }
func (OracleExpression) DBType() string     { return models.DBTypeOracle }

// legacyFields maps the first part of a dotted expression to the slot it tests.
// system_privileges is resolved against the rule's db_type.
var legacyFields = map[string]string{
	"global_privileges":  models.DBTypeMySQL,
	"server_roles":       models.DBTypeSQLServer,
	"server_permissions": models.DBTypeSQLServer,
	"role_attributes":    models.DBTypePostgreSQL,
	"roles":              models.DBTypeOracle,
	"oracle_roles":       models.DBTypeOracle,
	"system_privileges":  models.DBTypeOracle,
}

// Parse decodes a stored rule expression. raw is either a JSON object tagged by
// "type" or a JSON string in the dotted form "slot.NAME". The result must belong
// to dbType.
func Parse(raw []byte, dbType string) (Expression, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty rule expression", errs.ErrValidationFailed)
	}

	var expr Expression
	var err error
	if raw[0] == '"' {
		var dotted string
		if err := json.Unmarshal(raw, &dotted); err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrValidationFailed, err)
		}
		expr, err = ParseDotted(dotted, dbType)
	} else {
		expr, err = parseTagged(raw)
	}
	if err != nil {
		return nil, err
	}
	if expr.DBType() != dbType {
		return nil, fmt.Errorf("%w: %s expression on a %s rule", errs.ErrValidationFailed, expr.Type(), dbType)
	}
	return expr, nil
}

// ParseDotted converts "global_privileges.SUPER" style expressions into a
// single-term AND expression.
func ParseDotted(s, dbType string) (Expression, error) {
	field, name, ok := strings.Cut(strings.TrimSpace(s), ".")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: dotted expression %q must look like slot.NAME", errs.ErrValidationFailed, s)
	}
	owner, known := legacyFields[field]
	if !known {
		return nil, fmt.Errorf("%w: unknown slot %q in expression %q", errs.ErrValidationFailed, field, s)
	}
	if field == "system_privileges" && dbType != "" {
		owner = dbType
	}

	switch {
	case field == "global_privileges":
		return MySQLExpression{Operator: OperatorAnd, GlobalPrivileges: []string{name}}, nil
	case field == "server_roles":
		return SQLServerExpression{Operator: OperatorAnd, ServerRoles: []string{name}}, nil
	case field == "server_permissions":
		return SQLServerExpression{Operator: OperatorAnd, ServerPermissions: []string{name}}, nil
	case field == "role_attributes":
		return PostgreSQLExpression{RoleAttributes: []string{name}}, nil
	case owner == models.DBTypeOracle && field == "system_privileges":
		return OracleExpression{SystemPrivileges: []string{name}}, nil
	case owner == models.DBTypeOracle:
		return OracleExpression{Roles: []string{name}}, nil
	}
	return nil, fmt.Errorf("%w: %q is not supported for %s rules", errs.ErrValidationFailed, s, dbType)
}

func parseTagged(raw []byte) (Expression, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrValidationFailed, err)
	}

	var expr Expression
	var err error
	switch head.Type {
	case TypeMySQL:
		var e MySQLExpression
		err = json.Unmarshal(raw, &e)
		e.Operator, err = operator(e.Operator, err)
		expr = e
	case TypeSQLServer:
		var e SQLServerExpression
		err = json.Unmarshal(raw, &e)
		e.Operator, err = operator(e.Operator, err)
		expr = e
	case TypePostgreSQL:
		var e PostgreSQLExpression
		err = json.Unmarshal(raw, &e)
		expr = e
	case TypeOracle:
		var e OracleExpression
		err = json.Unmarshal(raw, &e)
		expr = e
	default:
		return nil, fmt.Errorf("%w: unknown expression type %q", errs.ErrValidationFailed, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrValidationFailed, head.Type, err)
	}
	return expr, nil
}

// operator normalizes op. A rule without an operator matches on any term.
func operator(op string, err error) (string, error) {
	if err != nil {
		return op, err
	}
	switch strings.ToUpper(strings.TrimSpace(op)) {
	case OperatorAnd:
		return OperatorAnd, nil
	case "", OperatorOr:
		return OperatorOr, nil
	}
	return op, fmt.Errorf("operator must be AND or OR, got %q", op)
}

// Marshal encodes expr in the tagged form.
func Marshal(expr Expression) ([]byte, error) {
	body, err := json.Marshal(expr)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	m["type"] = expr.Type()
	return json.Marshal(m)
}
