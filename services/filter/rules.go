package filter

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"

	"gopkg.in/yaml.v3"
)

// Rule is the exclusion list of one dialect.
type Rule struct {
	ExcludeUsers    []string `yaml:"exclude_users" json:"exclude_users"`
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"` // SQL LIKE patterns
}

// Apply adds the rule's conditions on column to b.
func (r Rule) Apply(b *Builder, column string) *Builder {
	b.NotIn(column, r.ExcludeUsers...)
	for _, p := range r.ExcludePatterns {
		b.NotLike(column, p)
	}
	return b
}

// Excludes reports whether the rule filters out name. Patterns follow SQL LIKE
// with % and _ wildcards.
func (r Rule) Excludes(name string) bool {
	if models.SetContains(r.ExcludeUsers, name) {
		return true
	}
	for _, p := range r.ExcludePatterns {
		if likeMatch(p, name) {
			return true
		}
	}
	return false
}

func likeMatch(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatch(pattern[1:], s[i:]) {
				return true
			}
		}
		return false
	case '_':
		return s != "" && likeMatch(pattern[1:], s[1:])
	}
	return s != "" && s[0] == pattern[0] && likeMatch(pattern[1:], s[1:])
}

// Rules maps a dialect to its exclusion list.
type Rules map[string]Rule

// For returns the rule of dbType; unknown dialects get an empty rule.
func (r Rules) For(dbType string) Rule {
	return r[dbType]
}

type fileFormat struct {
	DatabaseFilters map[string]Rule `yaml:"database_filters"`
}

// DefaultRules returns the built-in exclusion lists.
func DefaultRules() Rules {
	return Rules{
		models.DBTypeMySQL: {},
		models.DBTypePostgreSQL: {
			ExcludeUsers:    []string{"postgres", "rdsadmin", "rds_superuser"},
			ExcludePatterns: []string{"pg_%"},
		},
		models.DBTypeSQLServer: {
			ExcludeUsers:    []string{"public", "guest", "dbo"},
			ExcludePatterns: []string{"##%", `NT SERVICE\%`, `NT AUTHORITY\%`, `BUILTIN\%`, "NT %"},
		},
		models.DBTypeOracle: {
			ExcludeUsers: []string{
				"SCOTT", "CTXSYS", "EXFSYS", "MDDATA", "APPQOSSYS", "OUTLN", "DIP", "TSMSYS",
				"WMSYS", "XDB", "ANONYMOUS", "ORDPLUGINS", "ORDSYS", "SI_INFORMTN_SCHEMA", "MDSYS",
				"OLAPSYS", "SPATIAL_CSW_ADMIN_USR", "SPATIAL_WFS_ADMIN_USR", "APEX_PUBLIC_USER",
				"APEX_030200", "FLOWS_FILES", "HR", "OE", "PM", "IX", "SH", "BI", "DEMO", "ADMIN",
				"AUDSYS", "GSMADMIN_INTERNAL", "GSMCATUSER", "GSMUSER", "LBACSYS", "OJVMSYS",
				"ORACLE_OCM", "ORDDATA", "ORDS_METADATA", "ORDS_PUBLIC_USER", "PDBADMIN", "RDSADMIN",
				"REMOTE_SCHEDULER_AGENT", "SYSBACKUP", "SYSDG", "SYSKM", "SYSRAC", "SYS$UMF",
				"XS$NULL", "OWBSYS", "OWBSYS_AUDIT",
			},
			ExcludePatterns: []string{"SYS$%", "GSM%", "XDB%", "APEX%", "ORD%", "SPATIAL_%"},
		},
	}
}

// LoadRules reads a database_filters yaml file and overlays it on the defaults.
// A dialect present in the file replaces each list it sets. A missing file yields the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debugf("Filter rules file %s not found, using built-in defaults", path)
		return rules, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read filter rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules overlays yaml content on the defaults.
func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse filter rules: %w", err)
	}
	for dbType, override := range f.DatabaseFilters {
		if !models.IsSupportedDBType(dbType) {
			logger.Warnf("Ignoring filter rules for unknown db_type %q", dbType)
			continue
		}
		current := rules[dbType]
		if override.ExcludeUsers != nil {
			current.ExcludeUsers = override.ExcludeUsers
		}
		if override.ExcludePatterns != nil {
			current.ExcludePatterns = override.ExcludePatterns
		}
		rules[dbType] = current
	}
	return rules, nil
}

var (
	active   = DefaultRules()
	activeMu sync.RWMutex
)

// SetActive replaces the process-wide rules used by the adapters.
func SetActive(r Rules) {
	activeMu.Lock()
	defer activeMu.Unlock()
	active = r
}

// Active returns the process-wide rules.
func Active() Rules {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return active
}
