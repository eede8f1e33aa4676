// Package filter turns per-dialect account exclusion lists into parameterized
// WHERE fragments. Values only ever reach SQL through bound parameters.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
)

// Placeholder renders the n-th (1-based) bind parameter of a dialect.
type Placeholder func(n int) string

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// PlaceholderFor returns the bind parameter style of dbType.
func PlaceholderFor(dbType string) (Placeholder, error) {
	switch dbType {
	case models.DBTypeMySQL:
		return func(int) string { return "?" }, nil
	case models.DBTypePostgreSQL:
		return func(n int) string { return "$" + strconv.Itoa(n) }, nil
	case models.DBTypeSQLServer:
		return func(n int) string { return "@p" + strconv.Itoa(n) }, nil
	case models.DBTypeOracle:
		return func(n int) string { return ":" + strconv.Itoa(n) }, nil
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedDialect, dbType)
}

// Builder accumulates conditions and their bound arguments for one statement.
// Values are accepted only through Arg and the condition helpers; column names
// must be plain identifiers.
type Builder struct {
	placeholder Placeholder
	conds       []string
	args        []any
	err         error
}

// NewBuilder creates a builder using the bind style of dbType.
func NewBuilder(dbType string) (*Builder, error) {
	ph, err := PlaceholderFor(dbType)
	if err != nil {
		return nil, err
	}
	return &Builder{placeholder: ph}, nil
}

// Arg binds v and returns its placeholder. Use it for values outside the
// WHERE fragment so that every argument of a statement shares one numbering.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	return b.placeholder(len(b.args))
}

// Args returns the bound arguments in placeholder order.
func (b *Builder) Args() []any {
	return b.args
}

// NotIn adds "column NOT IN (...)". An empty value list adds nothing.
func (b *Builder) NotIn(column string, values ...string) *Builder {
	if !b.checkColumn(column) || len(values) == 0 {
		return b
	}
	holders := make([]string, len(values))
	for i, v := range values {
		holders[i] = b.Arg(v)
	}
	b.conds = append(b.conds, fmt.Sprintf("%s NOT IN (%s)", column, strings.Join(holders, ", ")))
	return b
}

// NotLike adds "column NOT LIKE pattern".
func (b *Builder) NotLike(column, pattern string) *Builder {
	if !b.checkColumn(column) {
		return b
	}
	b.conds = append(b.conds, fmt.Sprintf("%s NOT LIKE %s", column, b.Arg(pattern)))
	return b
}

// Eq adds "column = value".
func (b *Builder) Eq(column string, value any) *Builder {
	if !b.checkColumn(column) {
		return b
	}
	b.conds = append(b.conds, fmt.Sprintf("%s = %s", column, b.Arg(value)))
	return b
}

// Where returns the AND-joined fragment ("1=1" when empty) and the bound arguments.
func (b *Builder) Where() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if len(b.conds) == 0 {
		return "1=1", b.args, nil
	}
	return strings.Join(b.conds, " AND "), b.args, nil
}

func (b *Builder) checkColumn(column string) bool {
	if b.err != nil {
		return false
	}
	if !identifierPattern.MatchString(column) {
		b.err = fmt.Errorf("refusing non-identifier column %q", column)
		return false
	}
	return true
}
