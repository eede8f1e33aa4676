// Package reconcile turns a fresh account snapshot of one instance into state
// updates and change-log events.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/pkg/events"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/pkg/metrics"
	"dbaccountsync/repository"
	"dbaccountsync/services/adapter"

	"gorm.io/datatypes"
)

// ChangeStatusSuccess is the status of every change-log row written by a sync.
const ChangeStatusSuccess = "success"

// Result counts what one reconciliation did.
type Result struct {
	Synced    int `json:"synced"`
	Added     int `json:"added"`
	Restored  int `json:"restored"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Skipped   int `json:"skipped"`
}

// Created is the number of accounts that became live in this run.
func (r Result) Created() int {
	return r.Added + r.Restored
}

// Engine applies snapshots to the stored current state.
type Engine interface {
	// Reconcile applies snapshot to the current state of inst in one transaction.
	// Accounts failing adapter validation are skipped; any store error rolls
	// back the whole instance and is returned wrapped in errs.ErrPersistence.
	Reconcile(ctx context.Context, inst *models.Instance, ad adapter.Adapter, snapshot []models.Account, sessionID string) (*Result, error)
}

type engine struct {
	baseRepo    repository.BaseRepository
	accountRepo repository.AccountRepository
	now         func() time.Time
}

// NewEngine creates an engine on the global store.
func NewEngine() Engine {
	return NewEngineWithDeps(repository.NewBaseRepository(), repository.NewAccountRepository())
}

// NewEngineWithDeps creates an engine with injected repositories.
func NewEngineWithDeps(baseRepo repository.BaseRepository, accountRepo repository.AccountRepository) Engine {
	return &engine{baseRepo: baseRepo, accountRepo: accountRepo, now: time.Now}
}

func (e *engine) Reconcile(ctx context.Context, inst *models.Instance, ad adapter.Adapter, snapshot []models.Account, sessionID string) (*Result, error) {
	dbType := ad.DBType()
	if inst.DBType != dbType {
		return nil, fmt.Errorf("%w: instance %s is %s, adapter is %s", errs.ErrUnsupportedDialect, inst.Name, inst.DBType, dbType)
	}

	tx := e.baseRepo.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", errs.ErrPersistence, tx.Error)
	}
	tx = tx.WithContext(ctx)

	// One timestamp orders every event of this transaction.
	now := e.now().UTC()

	rows, err := e.accountRepo.ListByInstance(tx, inst.ID, dbType)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: load current state of %s: %w", errs.ErrPersistence, inst.Name, err)
	}
	existing := make(map[string]*models.CurrentAccountSyncData, len(rows))
	for i := range rows {
		existing[rows[i].Username] = &rows[i]
	}

	accounts := make([]models.Account, len(snapshot))
	copy(accounts, snapshot)
	sort.SliceStable(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })

	res := &Result{}
	seen := make(map[string]bool, len(accounts))
	var logs []models.AccountChangeLog
	newLog := func(username, changeType, message string) models.AccountChangeLog {
		return models.AccountChangeLog{
			InstanceID: inst.ID,
			DBType:     dbType,
			Username:   username,
			ChangeType: changeType,
			ChangeTime: now,
			SessionID:  sessionID,
			Status:     ChangeStatusSuccess,
			Message:    message,
		}
	}

	for _, acc := range accounts {
		if seen[acc.Username] {
			logger.Warnf("instance=%s db_type=%s duplicate account %q in snapshot, keeping the first", inst.Name, dbType, acc.Username)
			continue
		}
		seen[acc.Username] = true

		if acc.Privileges == nil || !ad.ValidatePermissions(acc.Privileges, acc.Username) {
			logger.Warnf("instance=%s db_type=%s skipping account %q: %v", inst.Name, dbType, acc.Username, errs.ErrValidationFailed)
			res.Skipped++
			continue
		}

		row, ok := existing[acc.Username]
		var entry *models.AccountChangeLog
		counter := &res.Unchanged
		switch {
		case !ok:
			row = &models.CurrentAccountSyncData{InstanceID: inst.ID, Username: acc.Username}
			l := newLog(acc.Username, models.ChangeTypeAdd, "account added")
			entry = &l
			counter = &res.Added
		case row.IsDeleted:
			row.IsDeleted = false
			row.DeletedTime = nil
			l := newLog(acc.Username, models.ChangeTypeRestore, "account restored")
			entry = &l
			counter = &res.Restored
		default:
			old, err := row.Privileges()
			if err != nil {
				logger.Warnf("instance=%s db_type=%s stored privileges of %q unreadable, comparing against empty: %v", inst.Name, dbType, acc.Username, err)
			}
			diff := ad.DetectChanges(old, acc.Privileges)
			if diff.Empty() {
				break
			}
			l, err := changeEntry(newLog, acc.Username, diff)
			if err != nil {
				logger.Errorf("instance=%s db_type=%s cannot encode diff of %q: %v", inst.Name, dbType, acc.Username, err)
				res.Skipped++
				continue
			}
			entry = &l
			counter = &res.Modified
		}

		if err := row.SetPrivileges(acc.Privileges); err != nil {
			logger.Errorf("instance=%s db_type=%s cannot encode privileges of %q: %v", inst.Name, dbType, acc.Username, err)
			res.Skipped++
			continue
		}
		row.IsSuperuser = acc.IsSuperuser
		row.LastSyncTime = now
		row.SessionID = sessionID
		if entry != nil {
			row.LastChangeType = entry.ChangeType
			row.LastChangeTime = now
		}

		if ok {
			err = e.accountRepo.Save(tx, row)
		} else {
			err = e.accountRepo.Create(tx, row)
		}
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("%w: write account %s on %s: %w", errs.ErrPersistence, acc.Username, inst.Name, err)
		}
		if entry != nil {
			logs = append(logs, *entry)
		}
		*counter++
		res.Synced++
	}

	// rows is ordered by username, so deletions are too.
	for i := range rows {
		row := &rows[i]
		if row.IsDeleted || seen[row.Username] {
			continue
		}
		deletedAt := now
		row.IsDeleted = true
		row.DeletedTime = &deletedAt
		row.LastChangeType = models.ChangeTypeDelete
		row.LastChangeTime = now
		row.LastSyncTime = now
		row.SessionID = sessionID
		if err := e.accountRepo.Save(tx, row); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("%w: mark %s deleted on %s: %w", errs.ErrPersistence, row.Username, inst.Name, err)
		}
		logs = append(logs, newLog(row.Username, models.ChangeTypeDelete, "account no longer present"))
		res.Deleted++
	}

	if err := e.accountRepo.CreateChangeLogs(tx, logs); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: write change log of %s: %w", errs.ErrPersistence, inst.Name, err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("%w: commit %s: %w", errs.ErrPersistence, inst.Name, err)
	}

	for _, l := range logs {
		metrics.AccountChanges.WithLabelValues(dbType, l.ChangeType).Inc()
		events.Emit(ctx, events.New(events.AccountEvent(l.ChangeType), l))
	}
	logger.Infof("instance=%s db_type=%s reconciled %d accounts: added=%d restored=%d modified=%d deleted=%d skipped=%d",
		inst.Name, dbType, res.Synced, res.Added, res.Restored, res.Modified, res.Deleted, res.Skipped)
	return res, nil
}

// changeEntry classifies a non-empty diff. A diff touching only type_specific
// is modify_other; anything else is modify_privilege.
func changeEntry(newLog func(username, changeType, message string) models.AccountChangeLog, username string, diff adapter.Diff) (models.AccountChangeLog, error) {
	privilege, other := diff.Split()
	changeType := models.ChangeTypeModifyPrivilege
	if privilege.Empty() {
		changeType = models.ChangeTypeModifyOther
	}
	l := newLog(username, changeType, adapter.Describe(diff))

	if !privilege.Empty() {
		b, err := json.Marshal(privilege)
		if err != nil {
			return l, err
		}
		l.PrivilegeDiff = datatypes.JSON(b)
	}
	if !other.Empty() {
		b, err := json.Marshal(other)
		if err != nil {
			return l, err
		}
		l.OtherDiff = datatypes.JSON(b)
	}
	return l, nil
}
