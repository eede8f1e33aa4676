package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/pkg/storetest"
	"dbaccountsync/repository"
	"dbaccountsync/services/adapter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type harness struct {
	db     *gorm.DB
	engine *engine
	repo   repository.AccountRepository
	inst   *models.Instance
	ad     adapter.Adapter
	clock  time.Time
}

func newHarness(t *testing.T, dbType string) *harness {
	t.Helper()
	db := storetest.New(t)
	ad, err := adapter.New(dbType, adapter.Options{})
	require.NoError(t, err)

	h := &harness{
		db:    db,
		repo:  repository.NewAccountRepositoryWithDB(db),
		inst:  storetest.Instance(t, db, "inst-"+dbType, dbType),
		ad:    ad,
		clock: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	h.engine = NewEngineWithDeps(repository.NewBaseRepositoryWithDB(db), h.repo).(*engine)
	h.engine.now = func() time.Time {
		h.clock = h.clock.Add(time.Minute)
		return h.clock
	}
	return h
}

func (h *harness) sync(t *testing.T, accounts ...models.Account) *Result {
	t.Helper()
	res, err := h.engine.Reconcile(context.Background(), h.inst, h.ad, accounts, "session-1")
	require.NoError(t, err)
	return res
}

func (h *harness) changes(t *testing.T, username string) []models.AccountChangeLog {
	t.Helper()
	logs, err := h.repo.ListChangeLogs(nil, h.inst.ID, username)
	require.NoError(t, err)
	return logs
}

func (h *harness) row(t *testing.T, username string) *models.CurrentAccountSyncData {
	t.Helper()
	row, err := h.repo.GetByUsername(nil, h.inst.ID, h.inst.DBType, username)
	require.NoError(t, err)
	return row
}

func mysqlAccount(username string, global []string, ts map[string]any) models.Account {
	if ts == nil {
		ts = map[string]any{"is_locked": false}
	}
	return models.Account{
		Username:    username,
		IsSuperuser: models.SetContains(global, "SUPER"),
		Privileges:  &models.MySQLPrivileges{GlobalPrivileges: global, TypeSpecific: ts},
	}
}

func changeTypes(logs []models.AccountChangeLog) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.ChangeType
	}
	return out
}

func TestReconcile_MySQLAddModifyDelete(t *testing.T) {
	h := newHarness(t, models.DBTypeMySQL)

	res := h.sync(t, mysqlAccount("root@localhost", []string{"SELECT", "INSERT", "SUPER"}, nil))
	assert.Equal(t, 1, res.Added)
	assert.True(t, h.row(t, "root@localhost").IsSuperuser)

	res = h.sync(t, mysqlAccount("root@localhost", []string{"SUPER", "SELECT"}, nil))
	assert.Equal(t, 1, res.Modified)
	assert.True(t, h.row(t, "root@localhost").IsSuperuser)

	res = h.sync(t)
	assert.Equal(t, 1, res.Deleted)

	logs := h.changes(t, "root@localhost")
	require.Equal(t, []string{models.ChangeTypeAdd, models.ChangeTypeModifyPrivilege, models.ChangeTypeDelete}, changeTypes(logs))

	var diff map[string]adapter.SlotDiff
	require.NoError(t, json.Unmarshal(logs[1].PrivilegeDiff, &diff))
	assert.Equal(t, []any{"INSERT"}, diff["global_privileges"].Removed)
	assert.Empty(t, diff["global_privileges"].Added)
	assert.Contains(t, logs[1].Message, "global privileges")
	assert.Empty(t, logs[1].OtherDiff)

	row := h.row(t, "root@localhost")
	assert.True(t, row.IsDeleted)
	require.NotNil(t, row.DeletedTime)
	assert.Equal(t, models.ChangeTypeDelete, row.LastChangeType)
	assert.True(t, row.IsSuperuser)
}

func TestReconcile_PostgresRestore(t *testing.T) {
	h := newHarness(t, models.DBTypePostgreSQL)
	alice := models.Account{
		Username: "alice",
		Privileges: &models.PostgreSQLPrivileges{
			RoleAttributes: map[string]any{adapter.PGAttrLogin: true, adapter.PGAttrCreateDB: true},
		},
	}

	h.sync(t, alice)
	original := h.row(t, "alice")
	h.sync(t)
	assert.True(t, h.row(t, "alice").IsDeleted)

	res := h.sync(t, alice)
	assert.Equal(t, 1, res.Restored)

	row := h.row(t, "alice")
	assert.False(t, row.IsDeleted)
	assert.Nil(t, row.DeletedTime)
	assert.Equal(t, models.ChangeTypeRestore, row.LastChangeType)
	assert.True(t, row.IsActive)
	assert.JSONEq(t, string(original.RoleAttributes), string(row.RoleAttributes))
	assert.Equal(t, original.ID, row.ID)

	assert.Equal(t, []string{models.ChangeTypeAdd, models.ChangeTypeDelete, models.ChangeTypeRestore}, changeTypes(h.changes(t, "alice")))
}

func TestReconcile_Idempotent(t *testing.T) {
	h := newHarness(t, models.DBTypeMySQL)
	snapshot := []models.Account{
		mysqlAccount("app@%", []string{"SELECT"}, map[string]any{"is_locked": false, "max_user_connections": 10}),
		mysqlAccount("root@localhost", []string{"SUPER"}, nil),
	}

	first := h.sync(t, snapshot...)
	assert.Equal(t, 2, first.Added)
	before := h.changes(t, "")

	second := h.sync(t, snapshot...)
	assert.Equal(t, 2, second.Unchanged)
	assert.Zero(t, second.Added+second.Modified+second.Deleted)
	assert.Len(t, h.changes(t, ""), len(before))
}

func TestReconcile_OrderingIsNotAChange(t *testing.T) {
	h := newHarness(t, models.DBTypeMySQL)
	h.sync(t, models.Account{
		Username: "app@%",
		Privileges: &models.MySQLPrivileges{
			GlobalPrivileges:   []string{"SELECT", "INSERT"},
			DatabasePrivileges: map[string][]string{"shop": {"UPDATE", "SELECT"}},
			TypeSpecific:       map[string]any{"is_locked": false},
		},
	})

	res := h.sync(t, models.Account{
		Username: "app@%",
		Privileges: &models.MySQLPrivileges{
			GlobalPrivileges:   []string{"INSERT", "SELECT", "SELECT"},
			DatabasePrivileges: map[string][]string{"shop": {"SELECT", "UPDATE"}},
			TypeSpecific:       map[string]any{"is_locked": false},
		},
	})
	assert.Equal(t, 1, res.Unchanged)
	assert.Len(t, h.changes(t, "app@%"), 1)
}

func TestReconcile_TypeSpecificOnlyIsModifyOther(t *testing.T) {
	h := newHarness(t, models.DBTypeMySQL)
	h.sync(t, mysqlAccount("app@%", []string{"SELECT"}, map[string]any{"is_locked": false, "plugin": "mysql_native_password"}))
	h.sync(t, mysqlAccount("app@%", []string{"SELECT"}, map[string]any{"is_locked": true, "plugin": "mysql_native_password"}))

	logs := h.changes(t, "app@%")
	require.Len(t, logs, 2)
	assert.Equal(t, models.ChangeTypeModifyOther, logs[1].ChangeType)
	assert.Empty(t, logs[1].PrivilegeDiff)
	assert.NotEmpty(t, logs[1].OtherDiff)
	assert.Contains(t, logs[1].Message, "is_locked")

	row := h.row(t, "app@%")
	assert.Equal(t, models.ChangeTypeModifyOther, row.LastChangeType)
	assert.False(t, row.IsActive)
}

func TestReconcile_SkipsInvalidAccounts(t *testing.T) {
	h := newHarness(t, models.DBTypeMySQL)
	h.sync(t, mysqlAccount("nohost", []string{"SELECT"}, nil))

	res := h.sync(t,
		mysqlAccount("nohost", []string{"SELECT"}, nil),
		mysqlAccount("app@%", []string{"SELECT"}, nil),
		models.Account{Username: "wrong@%", Privileges: &models.OraclePrivileges{}},
	)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Added)
	assert.Zero(t, res.Deleted, "skipped accounts are still present on the target")

	_, err := h.repo.GetByUsername(nil, h.inst.ID, models.DBTypeMySQL, "nohost")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReconcile_EventsShareChangeTime(t *testing.T) {
	h := newHarness(t, models.DBTypeMySQL)
	h.sync(t,
		mysqlAccount("a@%", []string{"SELECT"}, nil),
		mysqlAccount("b@%", []string{"SELECT"}, nil),
		mysqlAccount("c@%", []string{"SELECT"}, nil),
	)

	logs := h.changes(t, "")
	require.Len(t, logs, 3)
	assert.Equal(t, []string{"a@%", "b@%", "c@%"}, []string{logs[0].Username, logs[1].Username, logs[2].Username})
	for _, l := range logs {
		assert.True(t, l.ChangeTime.Equal(logs[0].ChangeTime))
		assert.Equal(t, "session-1", l.SessionID)
	}
}

func TestReconcile_RejectsMismatchedAdapter(t *testing.T) {
	h := newHarness(t, models.DBTypeMySQL)
	pg, err := adapter.New(models.DBTypePostgreSQL, adapter.Options{})
	require.NoError(t, err)

	_, err = h.engine.Reconcile(context.Background(), h.inst, pg, nil, "")
	assert.ErrorIs(t, err, errs.ErrUnsupportedDialect)
}
