package accountsync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/pkg/storetest"
	"dbaccountsync/repository"
	"dbaccountsync/services/connection"
	"dbaccountsync/services/privilege"
	"dbaccountsync/services/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// refusingFactory fails Open for the listed instances and delegates otherwise.
type refusingFactory struct {
	connection.Factory
	refuse map[uint]bool
}

func (f refusingFactory) Open(ctx context.Context, inst *models.Instance) (connection.Conn, error) {
	if f.refuse[inst.ID] {
		return nil, fmt.Errorf("%w: %s: connection refused", errs.ErrConnectFailed, inst.Name)
	}
	return f.Factory.Open(ctx, inst)
}

type env struct {
	db       *gorm.DB
	fx       *privilege.Fixture
	svc      *service
	sessions repository.SyncSessionRepository
	insts    repository.InstanceRepository
	accounts repository.AccountRepository
}

func newEnv(t *testing.T, refuse ...string) (*env, map[string]*models.Instance) {
	t.Helper()
	ctx := context.Background()
	fx, err := privilege.StartFixture(ctx, 0, privilege.DefaultSeed())
	require.NoError(t, err)
	t.Cleanup(func() { fx.Close() })

	db := storetest.New(t)
	e := &env{
		db:       db,
		fx:       fx,
		sessions: repository.NewSyncSessionRepositoryWithDB(db),
		insts:    repository.NewInstanceRepositoryWithDB(db),
		accounts: repository.NewAccountRepositoryWithDB(db),
	}

	byName := map[string]*models.Instance{}
	blocked := map[uint]bool{}
	for _, name := range []string{"i1", "i2", "i3"} {
		inst := storetest.Instance(t, db, name, models.DBTypeMySQL)
		require.NoError(t, db.Model(inst).Update("port", fx.Port).Error)
		byName[name] = inst
	}
	for _, name := range refuse {
		blocked[byName[name].ID] = true
	}

	factory := refusingFactory{Factory: connection.NewFactoryWith(5*time.Second, 5*time.Second, nil), refuse: blocked}
	e.svc = NewServiceWithDeps(
		e.insts,
		e.accounts,
		e.sessions,
		factory,
		reconcile.NewEngineWithDeps(repository.NewBaseRepositoryWithDB(db), e.accounts),
	).(*service)
	return e, byName
}

func TestSyncFleet_InstanceFailureIsolation(t *testing.T) {
	e, insts := newEnv(t, "i2")
	ctx := context.Background()

	session, err := e.svc.SyncFleet(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, session.Status)
	assert.Equal(t, models.SyncTypeManualBatch, session.SyncType)
	assert.Equal(t, 3, session.TotalInstances)
	assert.Equal(t, 2, session.SuccessfulInstances)
	assert.Equal(t, 1, session.FailedInstances)
	require.NotNil(t, session.CompletedAt)

	stored, err := e.svc.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, stored.Records, 3)
	status := map[uint]models.SyncInstanceRecord{}
	for _, r := range stored.Records {
		status[r.InstanceID] = r
	}
	assert.Equal(t, models.SyncStatusCompleted, status[insts["i1"].ID].Status)
	assert.Equal(t, models.SyncStatusFailed, status[insts["i2"].ID].Status)
	assert.Contains(t, status[insts["i2"].ID].ErrorMessage, "connection refused")
	assert.Equal(t, models.SyncStatusCompleted, status[insts["i3"].ID].Status)

	seeded := len(privilege.DefaultSeed().Accounts)
	for _, name := range []string{"i1", "i3"} {
		r := status[insts[name].ID]
		assert.Equal(t, seeded, r.AccountsSynced, name)
		assert.Equal(t, seeded, r.AccountsCreated, name)
		assert.JSONEq(t, fmt.Sprintf(`{"before_count":0,"after_count":%d,"net_change":%d}`, seeded, seeded),
			pick(t, r.SyncDetails, "before_count", "after_count", "net_change"), name)
	}

	n, err := e.accounts.CountLive(nil, insts["i2"].ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncAccounts_ManualSingle(t *testing.T) {
	e, insts := newEnv(t)
	ctx := context.Background()
	inst := insts["i1"]

	out, err := e.svc.SyncAccounts(ctx, inst.ID, models.SyncTypeManualSingle, "")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, out.Status)
	assert.NotEmpty(t, out.SessionID)
	assert.EqualValues(t, len(privilege.DefaultSeed().Accounts), out.NetChange)
	assert.NotEmpty(t, out.MainVersion)

	stored, err := e.insts.GetByID(nil, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SyncCount)
	assert.Equal(t, out.Version, stored.DatabaseVersion)
	assert.Equal(t, out.MainVersion, stored.MainVersion)
	assert.NotNil(t, stored.LastConnectedAt)

	var sessions int64
	require.NoError(t, e.db.Model(&models.SyncSession{}).Count(&sessions).Error)
	assert.Zero(t, sessions)

	// A second pass changes nothing.
	out, err = e.svc.SyncAccounts(ctx, inst.ID, models.SyncTypeManualSingle, "")
	require.NoError(t, err)
	assert.Zero(t, out.NetChange)
	assert.Equal(t, len(privilege.DefaultSeed().Accounts), out.Result.Unchanged)
}

func TestSyncAccounts_TaskTypesDoNotCount(t *testing.T) {
	e, insts := newEnv(t)
	ctx := context.Background()
	inst := insts["i1"]

	out, err := e.svc.SyncAccounts(ctx, inst.ID, models.SyncTypeManualTask, "")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCompleted, out.Status)

	session, err := e.svc.GetSession(ctx, out.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncTypeManualTask, session.SyncType)
	require.Len(t, session.Records, 1)
	assert.Equal(t, models.SyncStatusCompleted, session.Records[0].Status)

	stored, err := e.insts.GetByID(nil, inst.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.SyncCount)
}

func TestSyncAccounts_Errors(t *testing.T) {
	e, insts := newEnv(t, "i2")
	ctx := context.Background()

	_, err := e.svc.SyncAccounts(ctx, insts["i1"].ID, "nightly", "")
	assert.ErrorIs(t, err, errs.ErrValidationFailed)

	_, err = e.svc.SyncAccounts(ctx, 999, models.SyncTypeManualSingle, "")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	out, err := e.svc.SyncAccounts(ctx, insts["i2"].ID, models.SyncTypeManualSingle, "")
	assert.ErrorIs(t, err, errs.ErrConnectFailed)
	require.NotNil(t, out)
	assert.Equal(t, models.SyncStatusFailed, out.Status)

	stored, err := e.insts.GetByID(nil, insts["i2"].ID)
	require.NoError(t, err)
	assert.Zero(t, stored.SyncCount)

	_, err = e.svc.SyncAccounts(ctx, insts["i1"].ID, models.SyncTypeManualBatch, "no-such-session")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCancelSession(t *testing.T) {
	e, insts := newEnv(t)
	ctx := context.Background()

	session := &models.SyncSession{
		SessionID:      "s-cancel",
		SyncType:       models.SyncTypeManualBatch,
		SyncCategory:   models.SyncCategoryAccount,
		Status:         models.SyncStatusRunning,
		StartedAt:      time.Now().UTC(),
		TotalInstances: 2,
	}
	require.NoError(t, e.sessions.Create(nil, session))
	require.NoError(t, e.sessions.CreateRecords(nil, []models.SyncInstanceRecord{
		{SessionID: "s-cancel", InstanceID: insts["i1"].ID, SyncCategory: models.SyncCategoryAccount, Status: models.SyncStatusCompleted},
		{SessionID: "s-cancel", InstanceID: insts["i2"].ID, SyncCategory: models.SyncCategoryAccount, Status: models.SyncStatusPending},
	}))

	require.NoError(t, e.svc.CancelSession(ctx, "s-cancel"))

	stored, err := e.svc.GetSession(ctx, "s-cancel")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusCancelled, stored.Status)
	assert.Equal(t, models.SyncStatusCompleted, stored.Records[0].Status)
	assert.Equal(t, models.SyncStatusFailed, stored.Records[1].Status)
	assert.Equal(t, "session cancelled", stored.Records[1].ErrorMessage)

	assert.ErrorIs(t, e.svc.CancelSession(ctx, "s-cancel"), errs.ErrValidationFailed)
	assert.ErrorIs(t, e.svc.CancelSession(ctx, "missing"), errs.ErrNotFound)
}

func TestRunSession_StopsOnCancelledContext(t *testing.T) {
	e, insts := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, outcomes, err := e.svc.RunSession(ctx, []models.Instance{*insts["i1"], *insts["i3"]}, models.SyncTypeScheduledTask, nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, models.SyncStatusFailed, session.Status)
	assert.Equal(t, 2, session.FailedInstances)
}

func TestTestConnection(t *testing.T) {
	e, insts := newEnv(t, "i2")
	ctx := context.Background()

	res, err := e.svc.TestConnection(ctx, insts["i1"].ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	stored, err := e.insts.GetByID(nil, insts["i1"].ID)
	require.NoError(t, err)
	assert.Equal(t, res.DetailedVersion, stored.DetailedVersion)

	_, err = e.svc.TestConnection(ctx, 999)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

// pick re-encodes only keys of a JSON object.
func pick(t *testing.T, raw []byte, keys ...string) string {
	t.Helper()
	var all map[string]any
	require.NoError(t, json.Unmarshal(raw, &all))
	out := map[string]any{}
	for _, k := range keys {
		out[k] = all[k]
	}
	b, err := json.Marshal(out)
	require.NoError(t, err)
	return string(b)
}
