package classification

import "dbaccountsync/models"

// Evaluate reports whether expr matches the account. Accounts of another
// dialect never match.
func Evaluate(expr Expression, acc models.Account) bool {
	if expr == nil || acc.Privileges == nil || acc.DBType() != expr.DBType() {
		return false
	}
	return expr.Matches(acc.Privileges)
}

// Matches tests the include list under Operator, then disqualifies on any
// excluded privilege. An empty include list passes.
func (e MySQLExpression) Matches(p models.Privileges) bool {
	priv, ok := p.(*models.MySQLPrivileges)
	if !ok {
		return false
	}
	if len(e.GlobalPrivileges) > 0 {
		var include bool
		if e.Operator == OperatorAnd {
			include = containsAll(priv.GlobalPrivileges, e.GlobalPrivileges)
		} else {
			include = containsAny(priv.GlobalPrivileges, e.GlobalPrivileges)
		}
		if !include {
			return false
		}
	}
	return !containsAny(priv.GlobalPrivileges, e.ExcludePrivileges)
}

// Matches builds one term per non-empty list and combines the terms with Operator.
func (e SQLServerExpression) Matches(p models.Privileges) bool {
	priv, ok := p.(*models.SQLServerPrivileges)
	if !ok {
		return false
	}
	var terms []bool
	if len(e.ServerPermissions) > 0 {
		terms = append(terms, containsAll(priv.ServerPermissions, e.ServerPermissions))
	}
	if len(e.ServerRoles) > 0 {
		terms = append(terms, containsAll(priv.ServerRoles, e.ServerRoles))
	}
	if len(terms) == 0 {
		return true
	}
	if e.Operator == OperatorAnd {
		for _, t := range terms {
			if !t {
				return false
			}
		}
		return true
	}
	for _, t := range terms {
		if t {
			return true
		}
	}
	return false
}

func (e PostgreSQLExpression) Matches(p models.Privileges) bool {
	priv, ok := p.(*models.PostgreSQLPrivileges)
	if !ok {
		return false
	}
	for _, attr := range e.RoleAttributes {
		if !models.BoolValue(priv.RoleAttributes[attr]) {
			return false
		}
	}
	return true
}

func (e OracleExpression) Matches(p models.Privileges) bool {
	priv, ok := p.(*models.OraclePrivileges)
	if !ok {
		return false
	}
	return containsAll(priv.Roles, e.Roles) && containsAll(priv.SystemPrivileges, e.SystemPrivileges)
}

func containsAll(granted, required []string) bool {
	for _, r := range required {
		if !models.SetContains(granted, r) {
			return false
		}
	}
	return true
}

func containsAny(granted, candidates []string) bool {
	for _, c := range candidates {
		if models.SetContains(granted, c) {
			return true
		}
	}
	return false
}
