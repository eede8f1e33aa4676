// Package adapter extracts the canonical account and privilege model from a
// live target connection, one implementation per dialect.
package adapter

import (
	"context"
	"fmt"
	"sort"

	"dbaccountsync/config"
	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/services/connection"
	"dbaccountsync/services/filter"
)

// DefaultMaxSQLServerDatabases caps the databases enumerated per SQL Server sync.
const DefaultMaxSQLServerDatabases = 50

// Adapter reads accounts of one dialect.
type Adapter interface {
	DBType() string
	// GetAccounts returns every account that survives the dialect's filter rules,
	// ordered by username.
	GetAccounts(ctx context.Context, conn connection.Conn) ([]models.Account, error)
	// GetAccount loads a single account by username, bypassing filter rules.
	// It returns errs.ErrNotFound when the principal does not exist.
	GetAccount(ctx context.Context, conn connection.Conn, username string) (*models.Account, error)
	// ValidatePermissions checks that p has the shape this dialect produces.
	ValidatePermissions(p models.Privileges, username string) bool
	// DetectChanges diffs two privilege bags slot by slot.
	DetectChanges(old, new models.Privileges) Diff
}

// Options tunes adapter construction.
type Options struct {
	Rules                 filter.Rules
	MaxSQLServerDatabases int
}

// New returns the adapter of dbType.
func New(dbType string, opts Options) (Adapter, error) {
	if opts.Rules == nil {
		opts.Rules = filter.DefaultRules()
	}
	rule := opts.Rules.For(dbType)
	switch dbType {
	case models.DBTypeMySQL:
		return &mysqlAdapter{rule: rule}, nil
	case models.DBTypePostgreSQL:
		return &postgresAdapter{rule: rule}, nil
	case models.DBTypeSQLServer:
		max := opts.MaxSQLServerDatabases
		if max <= 0 {
			max = DefaultMaxSQLServerDatabases
		}
		return &sqlserverAdapter{rule: rule, maxDatabases: max}, nil
	case models.DBTypeOracle:
		return &oracleAdapter{rule: rule}, nil
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedDialect, dbType)
}

// For returns the adapter of dbType configured from the active filter rules
// and config.Cfg.
func For(dbType string) (Adapter, error) {
	return New(dbType, Options{
		Rules:                 filter.Active(),
		MaxSQLServerDatabases: config.Cfg.MaxDatabasesPerSQLServerSync,
	})
}

// scope narrows a query to a set of principals through column. keep applies
// the same narrowing to names read from views that cannot take a WHERE.
type scope struct {
	apply func(b *filter.Builder, column string) *filter.Builder
	keep  func(name string) bool
}

// where builds a WHERE fragment for dbType narrowed by sc on column.
func where(dbType string, sc scope, column string) (string, []any, error) {
	b, err := filter.NewBuilder(dbType)
	if err != nil {
		return "", nil, err
	}
	return sc.apply(b, column).Where()
}

func byRule(rule filter.Rule) scope {
	return scope{
		apply: func(b *filter.Builder, column string) *filter.Builder {
			return rule.Apply(b, column)
		},
		keep: func(name string) bool { return !rule.Excludes(name) },
	}
}

func byName(username string) scope {
	return scope{
		apply: func(b *filter.Builder, column string) *filter.Builder {
			return b.Eq(column, username)
		},
		keep: func(name string) bool { return name == username },
	}
}

func single(accounts []models.Account, username string) (*models.Account, error) {
	for i := range accounts {
		if accounts[i].Username == username {
			return &accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: account %q", errs.ErrNotFound, username)
}

func sortAccounts(accounts []models.Account) {
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })
}
