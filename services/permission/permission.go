// Package permission answers "what can this account do right now" by reading
// the live target. It never touches stored state.
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/repository"
	"dbaccountsync/services/adapter"
	"dbaccountsync/services/connection"

	"gorm.io/gorm"
)

// Entry is one labelled group of values, e.g. one database and its grants.
type Entry struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Section is one block of the presentation.
type Section struct {
	Title   string  `json:"title"`
	Entries []Entry `json:"entries"`
}

// View is the privilege tree of one account.
type View struct {
	InstanceID  uint      `json:"instance_id"`
	DBType      string    `json:"db_type"`
	Username    string    `json:"username"`
	IsSuperuser bool      `json:"is_superuser"`
	IsActive    bool      `json:"is_active"`
	Sections    []Section `json:"sections"`
}

// Service reads account permissions from live targets.
type Service interface {
	// GetPermissions loads username from the instance and renders its privilege tree.
	// It returns errs.ErrNotFound when the instance or the account does not exist.
	GetPermissions(ctx context.Context, instanceID uint, username string) (*View, error)
}

type service struct {
	instanceRepo repository.InstanceRepository
	factory      connection.Factory
	adapterFor   func(dbType string) (adapter.Adapter, error)
}

// NewService creates a permission service on the global store and connection factory.
func NewService() Service {
	return NewServiceWithDeps(repository.NewInstanceRepository(), connection.NewFactory())
}

// NewServiceWithDeps creates a service with injected dependencies.
func NewServiceWithDeps(instanceRepo repository.InstanceRepository, factory connection.Factory) Service {
	return &service{instanceRepo: instanceRepo, factory: factory, adapterFor: adapter.For}
}

func (s *service) GetPermissions(ctx context.Context, instanceID uint, username string) (*View, error) {
	inst, err := s.instanceRepo.GetByID(nil, instanceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: instance %d", errs.ErrNotFound, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load instance %d: %w", errs.ErrPersistence, instanceID, err)
	}

	ad, err := s.adapterFor(inst.DBType)
	if err != nil {
		return nil, err
	}
	conn, err := s.factory.Open(ctx, inst)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	acc, err := ad.GetAccount(ctx, conn, username)
	if err != nil {
		return nil, err
	}
	logger.Debugf("instance=%s db_type=%s loaded permissions of %q", inst.Name, inst.DBType, username)

	view := Present(*acc)
	view.InstanceID = inst.ID
	return view, nil
}

// Present renders an account as a per-dialect privilege tree.
func Present(acc models.Account) *View {
	v := &View{
		DBType:      acc.DBType(),
		Username:    acc.Username,
		IsSuperuser: acc.IsSuperuser,
	}
	if acc.Privileges == nil {
		return v
	}
	v.IsActive = acc.Privileges.IsActive()

	switch p := acc.Privileges.(type) {
	case *models.MySQLPrivileges:
		v.Sections = []Section{
			listSection("Global privileges", p.GlobalPrivileges),
			mapSection("Database privileges", p.DatabasePrivileges),
			valuesSection("Account", p.TypeSpecific),
		}
	case *models.PostgreSQLPrivileges:
		v.Sections = []Section{
			roleAttributeSection(p.RoleAttributes),
			listSection("Predefined roles", p.PredefinedRoles),
			mapSection("Database privileges", p.DatabasePrivileges),
			mapSection("Tablespace privileges", p.TablespacePrivileges),
			listSection("System privileges", p.SystemPrivileges),
		}
	case *models.SQLServerPrivileges:
		v.Sections = []Section{
			listSection("Server roles", p.ServerRoles),
			listSection("Server permissions", p.ServerPermissions),
			mapSection("Database roles", p.DatabaseRoles),
			mapSection("Database permissions", p.DatabasePermissions),
			valuesSection("Login", p.TypeSpecific),
		}
	case *models.OraclePrivileges:
		v.Sections = []Section{
			listSection("Roles", p.Roles),
			listSection("System privileges", p.SystemPrivileges),
			oracleTablespaceSection(p.TablespacePrivileges),
			valuesSection("Account", p.TypeSpecific),
		}
	}
	return v
}

func listSection(title string, values []string) Section {
	s := Section{Title: title}
	if len(values) > 0 {
		s.Entries = []Entry{{Name: title, Values: values}}
	}
	return s
}

func mapSection(title string, m map[string][]string) Section {
	s := Section{Title: title}
	for _, k := range sortedKeys(m) {
		s.Entries = append(s.Entries, Entry{Name: k, Values: m[k]})
	}
	return s
}

func valuesSection(title string, m map[string]any) Section {
	s := Section{Title: title}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Entries = append(s.Entries, Entry{Name: k, Values: []string{render(m[k])}})
	}
	return s
}

// roleAttributeSection lists granted boolean attributes first, then valued ones.
func roleAttributeSection(attrs map[string]any) Section {
	s := Section{Title: "Role attributes"}
	var granted []string
	var valued []string
	for k, v := range attrs {
		if _, ok := v.(bool); ok {
			if models.BoolValue(v) {
				granted = append(granted, k)
			}
			continue
		}
		valued = append(valued, k)
	}
	sort.Strings(granted)
	sort.Strings(valued)
	if len(granted) > 0 {
		s.Entries = append(s.Entries, Entry{Name: "granted", Values: granted})
	}
	for _, k := range valued {
		s.Entries = append(s.Entries, Entry{Name: k, Values: []string{render(attrs[k])}})
	}
	return s
}

var oracleTablespaceLabels = map[string]string{
	adapter.OracleUnlimited:  "unlimited quota",
	adapter.OracleQuota:      "limited quota",
	adapter.OracleOwner:      "owns tables",
	adapter.OracleIndexOwner: "owns indexes",
}

func oracleTablespaceSection(m map[string][]string) Section {
	s := Section{Title: "Tablespaces"}
	for _, ts := range sortedKeys(m) {
		name := ts
		if ts == adapter.OracleAllTablespaces {
			name = "all tablespaces"
		}
		values := make([]string, 0, len(m[ts]))
		for _, tag := range m[ts] {
			if label, ok := oracleTablespaceLabels[tag]; ok {
				values = append(values, label)
			} else {
				values = append(values, strings.ToLower(tag))
			}
		}
		s.Entries = append(s.Entries, Entry{Name: name, Values: values})
	}
	sort.Slice(s.Entries, func(i, j int) bool { return s.Entries[i].Name < s.Entries[j].Name })
	return s
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "yes"
		}
		return "no"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
