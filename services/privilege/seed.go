package privilege

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"dbaccountsync/utils"

	"gopkg.in/yaml.v3"
)

// Account describes one mysql.user row and its mysql.db grants.
type Account struct {
	User               string              `yaml:"user"`
	Host               string              `yaml:"host"`
	GlobalPrivileges   []string            `yaml:"global_privileges"`
	DatabasePrivileges map[string][]string `yaml:"database_privileges"`
	Plugin             string              `yaml:"plugin"`
	Password           bool                `yaml:"has_password"`
	SSLType            string              `yaml:"ssl_type"`
	MaxConnections     int                 `yaml:"max_connections"`
	PasswordExpired    bool                `yaml:"password_expired"`
	Locked             bool                `yaml:"locked"`
}

// Seed is the fixture content.
type Seed struct {
	Accounts []Account `yaml:"accounts"`
}

// LoadSeed reads a yaml seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for i, a := range s.Accounts {
		if a.User == "" {
			return nil, fmt.Errorf("parse seed %s: account %d has no user", path, i)
		}
	}
	return &s, nil
}

// DefaultSeed is used by the fixture command when no seed file is given.
func DefaultSeed() *Seed {
	return &Seed{Accounts: []Account{
		{User: "root", Host: "localhost", GlobalPrivileges: allGlobal(), Plugin: "caching_sha2_password", Password: true},
		{User: "app", Host: "%", GlobalPrivileges: []string{"SELECT"},
			DatabasePrivileges: map[string][]string{"shop": {"SELECT", "INSERT", "UPDATE", "DELETE"}},
			Plugin:             "caching_sha2_password", Password: true, MaxConnections: 50},
		{User: "report", Host: "10.0.0.%", GlobalPrivileges: []string{"SELECT", "SHOW VIEW"},
			Plugin: "mysql_native_password", Password: true},
		{User: "legacy", Host: "", Plugin: "mysql_native_password", Locked: true},
	}}
}

func allGlobal() []string {
	out := make([]string, 0, len(userPrivColumns))
	for _, c := range userPrivColumns {
		out = append(out, c.privilege)
	}
	return out
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func quote(s string) string {
	return "'" + utils.EscapeSQL(s) + "'"
}

func hasPrivilege(list []string, name string) bool {
	for _, p := range list {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

func (a Account) userInsert() string {
	cols := []string{"Host", "User"}
	vals := []string{quote(a.Host), quote(a.User)}
	for _, c := range userPrivColumns {
		cols = append(cols, c.column)
		vals = append(vals, quote(yn(hasPrivilege(a.GlobalPrivileges, c.privilege))))
	}

	auth := ""
	if a.Password {
		auth = "*" + strings.Repeat("A", 40)
	}
	attrs := map[string]string{
		"ssl_type":              quote(a.SSLType),
		"ssl_cipher":            quote(""),
		"x509_issuer":           quote(""),
		"x509_subject":          quote(""),
		"max_questions":         quote("0"),
		"max_updates":           quote("0"),
		"max_connections":       quote("0"),
		"max_user_connections":  quote(strconv.Itoa(a.MaxConnections)),
		"plugin":                quote(a.Plugin),
		"authentication_string": quote(auth),
		"password_expired":      quote(yn(a.PasswordExpired)),
		"password_last_changed": "NULL",
		"password_lifetime":     "NULL",
		"account_locked":        quote(yn(a.Locked)),
	}
	for _, c := range userAttrColumns {
		cols = append(cols, c)
		vals = append(vals, attrs[c])
	}
	return fmt.Sprintf("INSERT INTO mysql.user (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(vals, ", "))
}

func (a Account) dbInserts() []string {
	names := make([]string, 0, len(a.DatabasePrivileges))
	for db := range a.DatabasePrivileges {
		names = append(names, db)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, db := range names {
		privs := a.DatabasePrivileges[db]
		cols := []string{"Host", "Db", "User"}
		vals := []string{quote(a.Host), quote(db), quote(a.User)}
		for _, c := range dbPrivColumns {
			cols = append(cols, c.column)
			vals = append(vals, quote(yn(hasPrivilege(privs, c.privilege))))
		}
		out = append(out, fmt.Sprintf("INSERT INTO mysql.db (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(vals, ", ")))
	}
	return out
}
