package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Change types recorded on CurrentAccountSyncData.LastChangeType and AccountChangeLog.ChangeType.
const (
	ChangeTypeAdd             = "add"
	ChangeTypeModifyPrivilege = "modify_privilege"
	ChangeTypeModifyOther     = "modify_other"
	ChangeTypeDelete          = "delete"
	ChangeTypeRestore         = "restore"
)

// CurrentAccountSyncData is the latest known state of one account on one instance.
// Only the slot columns belonging to DBType are non-null.
type CurrentAccountSyncData struct {
	ID          uint   `gorm:"primaryKey;column:id" json:"id"`
	InstanceID  uint   `gorm:"column:instance_id;not null;uniqueIndex:uk_instance_dbtype_username,priority:1" json:"instance_id"`
	DBType      string `gorm:"column:db_type;size:20;not null;uniqueIndex:uk_instance_dbtype_username,priority:2" json:"db_type"`
	Username    string `gorm:"column:username;size:255;not null;uniqueIndex:uk_instance_dbtype_username,priority:3" json:"username"`
	IsSuperuser bool   `gorm:"column:is_superuser;not null" json:"is_superuser"`
	IsActive    bool   `gorm:"column:is_active;not null" json:"is_active"` // Derived from the slots on every write

	// mysql
	GlobalPrivileges   datatypes.JSON `gorm:"column:global_privileges" json:"global_privileges,omitempty"`
	DatabasePrivileges datatypes.JSON `gorm:"column:database_privileges" json:"database_privileges,omitempty"`
	// mysql, sqlserver, oracle
	TypeSpecific datatypes.JSON `gorm:"column:type_specific" json:"type_specific,omitempty"`
	// postgresql
	PredefinedRoles      datatypes.JSON `gorm:"column:predefined_roles" json:"predefined_roles,omitempty"`
	RoleAttributes       datatypes.JSON `gorm:"column:role_attributes" json:"role_attributes,omitempty"`
	DatabasePrivilegesPG datatypes.JSON `gorm:"column:database_privileges_pg" json:"database_privileges_pg,omitempty"`
	TablespacePrivileges datatypes.JSON `gorm:"column:tablespace_privileges" json:"tablespace_privileges,omitempty"`
	// postgresql, oracle
	SystemPrivileges datatypes.JSON `gorm:"column:system_privileges" json:"system_privileges,omitempty"`
	// sqlserver
	ServerRoles         datatypes.JSON `gorm:"column:server_roles" json:"server_roles,omitempty"`
	ServerPermissions   datatypes.JSON `gorm:"column:server_permissions" json:"server_permissions,omitempty"`
	DatabaseRoles       datatypes.JSON `gorm:"column:database_roles" json:"database_roles,omitempty"`
	DatabasePermissions datatypes.JSON `gorm:"column:database_permissions" json:"database_permissions,omitempty"`
	// oracle
	OracleRoles                datatypes.JSON `gorm:"column:oracle_roles" json:"oracle_roles,omitempty"`
	TablespacePrivilegesOracle datatypes.JSON `gorm:"column:tablespace_privileges_oracle" json:"tablespace_privileges_oracle,omitempty"`

	SessionID      string     `gorm:"column:session_id;size:36" json:"session_id"`                  // Last session that touched the row
	LastSyncTime   time.Time  `gorm:"column:last_sync_time;not null" json:"last_sync_time"`
	LastChangeType string     `gorm:"column:last_change_type;size:20;not null" json:"last_change_type"` // add, modify_privilege, modify_other, delete, restore
	LastChangeTime time.Time  `gorm:"column:last_change_time;not null" json:"last_change_time"`
	IsDeleted      bool       `gorm:"column:is_deleted;not null;index" json:"is_deleted"`           // Soft delete flag
	DeletedTime    *time.Time `gorm:"column:deleted_time" json:"deleted_time"`
}

// TableName specifies the static table name for GORM.
func (CurrentAccountSyncData) TableName() string {
	return "current_account_sync_data"
}

// Privileges decodes the slot columns of the row's dialect into a typed variant.
func (r *CurrentAccountSyncData) Privileges() (Privileges, error) {
	var p Privileges
	var err error
	switch r.DBType {
	case DBTypeMySQL:
		v := &MySQLPrivileges{}
		err = decodeSlots(
			slot{r.GlobalPrivileges, &v.GlobalPrivileges},
			slot{r.DatabasePrivileges, &v.DatabasePrivileges},
			slot{r.TypeSpecific, &v.TypeSpecific},
		)
		p = v
	case DBTypePostgreSQL:
		v := &PostgreSQLPrivileges{}
		err = decodeSlots(
			slot{r.PredefinedRoles, &v.PredefinedRoles},
			slot{r.RoleAttributes, &v.RoleAttributes},
			slot{r.DatabasePrivilegesPG, &v.DatabasePrivileges},
			slot{r.TablespacePrivileges, &v.TablespacePrivileges},
			slot{r.SystemPrivileges, &v.SystemPrivileges},
		)
		p = v
	case DBTypeSQLServer:
		v := &SQLServerPrivileges{}
		err = decodeSlots(
			slot{r.ServerRoles, &v.ServerRoles},
			slot{r.ServerPermissions, &v.ServerPermissions},
			slot{r.DatabaseRoles, &v.DatabaseRoles},
			slot{r.DatabasePermissions, &v.DatabasePermissions},
			slot{r.TypeSpecific, &v.TypeSpecific},
		)
		p = v
	case DBTypeOracle:
		v := &OraclePrivileges{}
		err = decodeSlots(
			slot{r.OracleRoles, &v.Roles},
			slot{r.SystemPrivileges, &v.SystemPrivileges},
			slot{r.TablespacePrivilegesOracle, &v.TablespacePrivileges},
			slot{r.TypeSpecific, &v.TypeSpecific},
		)
		p = v
	default:
		return nil, fmt.Errorf("no privilege model for db_type %q", r.DBType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode privileges of %s/%s: %w", r.DBType, r.Username, err)
	}
	p.Normalize()
	return p, nil
}

// SetPrivileges clears every slot column and writes the canonical form of p into the
// columns of its dialect. DBType and IsActive follow p.
func (r *CurrentAccountSyncData) SetPrivileges(p Privileges) error {
	r.clearSlots()
	p.Normalize()
	r.DBType = p.DBType()
	r.IsActive = p.IsActive()

	var err error
	switch v := p.(type) {
	case *MySQLPrivileges:
		err = encodeSlots(
			slot{&r.GlobalPrivileges, v.GlobalPrivileges},
			slot{&r.DatabasePrivileges, v.DatabasePrivileges},
			slot{&r.TypeSpecific, v.TypeSpecific},
		)
	case *PostgreSQLPrivileges:
		err = encodeSlots(
			slot{&r.PredefinedRoles, v.PredefinedRoles},
			slot{&r.RoleAttributes, v.RoleAttributes},
			slot{&r.DatabasePrivilegesPG, v.DatabasePrivileges},
			slot{&r.TablespacePrivileges, v.TablespacePrivileges},
			slot{&r.SystemPrivileges, v.SystemPrivileges},
		)
	case *SQLServerPrivileges:
		err = encodeSlots(
			slot{&r.ServerRoles, v.ServerRoles},
			slot{&r.ServerPermissions, v.ServerPermissions},
			slot{&r.DatabaseRoles, v.DatabaseRoles},
			slot{&r.DatabasePermissions, v.DatabasePermissions},
			slot{&r.TypeSpecific, v.TypeSpecific},
		)
	case *OraclePrivileges:
		err = encodeSlots(
			slot{&r.OracleRoles, v.Roles},
			slot{&r.SystemPrivileges, v.SystemPrivileges},
			slot{&r.TablespacePrivilegesOracle, v.TablespacePrivileges},
			slot{&r.TypeSpecific, v.TypeSpecific},
		)
	default:
		return fmt.Errorf("unknown privilege variant %T", p)
	}
	if err != nil {
		return fmt.Errorf("encode privileges of %s: %w", r.Username, err)
	}
	return nil
}

func (r *CurrentAccountSyncData) clearSlots() {
	r.GlobalPrivileges = nil
	r.DatabasePrivileges = nil
	r.TypeSpecific = nil
	r.PredefinedRoles = nil
	r.RoleAttributes = nil
	r.DatabasePrivilegesPG = nil
	r.TablespacePrivileges = nil
	r.SystemPrivileges = nil
	r.ServerRoles = nil
	r.ServerPermissions = nil
	r.DatabaseRoles = nil
	r.DatabasePermissions = nil
	r.OracleRoles = nil
	r.TablespacePrivilegesOracle = nil
}

// ToAccount converts the row into the in-memory account form.
func (r *CurrentAccountSyncData) ToAccount() (Account, error) {
	p, err := r.Privileges()
	if err != nil {
		return Account{}, err
	}
	return Account{
		ID:          r.ID,
		InstanceID:  r.InstanceID,
		Username:    r.Username,
		IsSuperuser: r.IsSuperuser,
		Privileges:  p,
	}, nil
}

// slot pairs a JSON column with a Go value. For decoding col is the column and
// val a pointer target; for encoding col is a pointer to the column.
type slot struct {
	col any
	val any
}

func decodeSlots(slots ...slot) error {
	for _, s := range slots {
		raw, _ := s.col.(datatypes.JSON)
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, s.val); err != nil {
			return err
		}
	}
	return nil
}

func encodeSlots(slots ...slot) error {
	for _, s := range slots {
		col := s.col.(*datatypes.JSON)
		b, err := json.Marshal(s.val)
		if err != nil {
			return err
		}
		*col = datatypes.JSON(b)
	}
	return nil
}

// AccountChangeLog is an append-only change event for one account.
type AccountChangeLog struct {
	ID            uint           `gorm:"primaryKey;column:id" json:"id"`
	InstanceID    uint           `gorm:"column:instance_id;not null;index:idx_change_instance_user_time,priority:1" json:"instance_id"`
	DBType        string         `gorm:"column:db_type;size:20;not null;index:idx_change_instance_user_time,priority:2" json:"db_type"`
	Username      string         `gorm:"column:username;size:255;not null;index:idx_change_instance_user_time,priority:3;index:idx_change_username_time,priority:1" json:"username"`
	ChangeType    string         `gorm:"column:change_type;size:20;not null;index:idx_change_type_time,priority:1" json:"change_type"`
	ChangeTime    time.Time      `gorm:"column:change_time;not null;index:idx_change_instance_user_time,priority:4;index:idx_change_type_time,priority:2;index:idx_change_username_time,priority:2" json:"change_time"`
	SessionID     string         `gorm:"column:session_id;size:36" json:"session_id"`
	Status        string         `gorm:"column:status;size:20;not null" json:"status"`       // success
	Message       string         `gorm:"column:message;type:text" json:"message"`            // Human readable summary
	PrivilegeDiff datatypes.JSON `gorm:"column:privilege_diff" json:"privilege_diff,omitempty"`
	OtherDiff     datatypes.JSON `gorm:"column:other_diff" json:"other_diff,omitempty"`         // type_specific only
}

// TableName specifies the static table name for GORM.
func (AccountChangeLog) TableName() string {
	return "account_change_log"
}
