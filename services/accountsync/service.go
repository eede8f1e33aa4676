// Package accountsync drives account syncs of single instances and of whole
// sessions, keeping the session and per-instance bookkeeping.
package accountsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/pkg/events"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/pkg/metrics"
	"dbaccountsync/repository"
	"dbaccountsync/services/adapter"
	"dbaccountsync/services/connection"
	"dbaccountsync/services/reconcile"
	"dbaccountsync/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outcome is the result of syncing one instance.
type Outcome struct {
	InstanceID      uint              `json:"instance_id"`
	InstanceName    string            `json:"instance_name"`
	DBType          string            `json:"db_type"`
	SessionID       string            `json:"session_id"`
	Status          string            `json:"status"` // completed, failed
	Version         string            `json:"version,omitempty"`
	MainVersion     string            `json:"main_version,omitempty"`
	DetailedVersion string            `json:"detailed_version,omitempty"`
	BeforeCount     int64             `json:"before_count"`
	AfterCount      int64             `json:"after_count"`
	NetChange       int64             `json:"net_change"`
	Result          *reconcile.Result `json:"result,omitempty"`
	Error           string            `json:"error,omitempty"`
	Duration        time.Duration     `json:"duration"`

	err error
}

// Err returns the failure of a failed outcome.
func (o *Outcome) Err() error {
	return o.err
}

// Service is the sync orchestrator.
type Service interface {
	// SyncAccounts syncs one instance. manual_single runs outside any session and
	// bumps the instance's sync_count; the other types attach to sessionID, or to
	// a new one-instance session when sessionID is empty.
	SyncAccounts(ctx context.Context, instanceID uint, syncType, sessionID string) (*Outcome, error)
	// SyncFleet runs a manual_batch session over instanceIDs, or over every active
	// instance when instanceIDs is empty.
	SyncFleet(ctx context.Context, instanceIDs []uint, createdBy *uint) (*models.SyncSession, error)
	// RunSession creates a session of syncType over instances and syncs them one
	// after another. A failing instance never aborts the session.
	RunSession(ctx context.Context, instances []models.Instance, syncType string, createdBy *uint) (*models.SyncSession, []Outcome, error)
	CancelSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*models.SyncSession, error)
	TestConnection(ctx context.Context, instanceID uint) (*connection.TestResult, error)
}

type service struct {
	instanceRepo repository.InstanceRepository
	accountRepo  repository.AccountRepository
	sessionRepo  repository.SyncSessionRepository
	factory      connection.Factory
	engine       reconcile.Engine
	adapterFor   func(dbType string) (adapter.Adapter, error)
	now          func() time.Time
}

// NewService creates an orchestrator on the global store and configuration.
func NewService() Service {
	return NewServiceWithDeps(
		repository.NewInstanceRepository(),
		repository.NewAccountRepository(),
		repository.NewSyncSessionRepository(),
		connection.NewFactory(),
		reconcile.NewEngine(),
	)
}

// NewServiceWithDeps creates an orchestrator with injected dependencies.
func NewServiceWithDeps(
	instanceRepo repository.InstanceRepository,
	accountRepo repository.AccountRepository,
	sessionRepo repository.SyncSessionRepository,
	factory connection.Factory,
	engine reconcile.Engine,
) Service {
	return &service{
		instanceRepo: instanceRepo,
		accountRepo:  accountRepo,
		sessionRepo:  sessionRepo,
		factory:      factory,
		engine:       engine,
		adapterFor:   adapter.For,
		now:          time.Now,
	}
}

func (s *service) SyncAccounts(ctx context.Context, instanceID uint, syncType, sessionID string) (*Outcome, error) {
	if !models.IsValidSyncType(syncType) {
		return nil, fmt.Errorf("%w: unknown sync type %q", errs.ErrValidationFailed, syncType)
	}
	inst, err := s.loadInstance(instanceID)
	if err != nil {
		return nil, err
	}

	if syncType == models.SyncTypeManualSingle {
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		out, err := s.syncInstance(ctx, inst, sessionID, nil)
		if err != nil {
			return out, err
		}
		if err := s.instanceRepo.IncrementSyncCount(nil, inst.ID); err != nil {
			logger.Warnf("instance=%s db_type=%s failed to increment sync_count: %v", inst.Name, inst.DBType, err)
		}
		return out, nil
	}

	if sessionID == "" {
		_, outcomes, err := s.RunSession(ctx, []models.Instance{*inst}, syncType, nil)
		if err != nil {
			return nil, err
		}
		if len(outcomes) == 0 {
			return nil, fmt.Errorf("%w: instance %s was not synced: %w", errs.ErrConnectFailed, inst.Name, ctx.Err())
		}
		return &outcomes[0], outcomes[0].err
	}

	record, err := s.sessionRepo.GetRecord(nil, sessionID, inst.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: session %s has no record for instance %d", errs.ErrNotFound, sessionID, inst.ID)
		}
		return nil, fmt.Errorf("%w: %w", errs.ErrPersistence, err)
	}
	return s.syncInstance(ctx, inst, sessionID, record)
}

func (s *service) SyncFleet(ctx context.Context, instanceIDs []uint, createdBy *uint) (*models.SyncSession, error) {
	var (
		insts []models.Instance
		err   error
	)
	if len(instanceIDs) == 0 {
		insts, err = s.instanceRepo.GetActive(nil)
	} else {
		insts, err = s.instanceRepo.GetByIDs(nil, instanceIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load instances: %w", errs.ErrPersistence, err)
	}
	session, _, err := s.RunSession(ctx, insts, models.SyncTypeManualBatch, createdBy)
	return session, err
}

func (s *service) RunSession(ctx context.Context, instances []models.Instance, syncType string, createdBy *uint) (*models.SyncSession, []Outcome, error) {
	if syncType == models.SyncTypeManualSingle || !models.IsValidSyncType(syncType) {
		return nil, nil, fmt.Errorf("%w: sync type %q cannot run a session", errs.ErrValidationFailed, syncType)
	}

	session := &models.SyncSession{
		SessionID:      uuid.NewString(),
		SyncType:       syncType,
		SyncCategory:   models.SyncCategoryAccount,
		Status:         models.SyncStatusRunning,
		StartedAt:      s.now().UTC(),
		TotalInstances: len(instances),
		CreatedBy:      createdBy,
	}
	if err := s.sessionRepo.Create(nil, session); err != nil {
		return nil, nil, fmt.Errorf("%w: create session: %w", errs.ErrPersistence, err)
	}
	records := make([]models.SyncInstanceRecord, len(instances))
	for i, inst := range instances {
		records[i] = models.SyncInstanceRecord{
			SessionID:    session.SessionID,
			InstanceID:   inst.ID,
			InstanceName: inst.Name,
			SyncCategory: models.SyncCategoryAccount,
			Status:       models.SyncStatusPending,
		}
	}
	if err := s.sessionRepo.CreateRecords(nil, records); err != nil {
		return nil, nil, fmt.Errorf("%w: create session records: %w", errs.ErrPersistence, err)
	}
	logger.Infof("Sync session %s (%s) started over %d instances", session.SessionID, syncType, len(instances))

	outcomes := make([]Outcome, 0, len(instances))
	for i := range instances {
		if stop := s.interrupted(ctx, session.SessionID); stop != "" {
			logger.Warnf("Sync session %s stopped before instance=%s: %s", session.SessionID, instances[i].Name, stop)
			break
		}
		out, _ := s.syncInstance(ctx, &instances[i], session.SessionID, &records[i])
		outcomes = append(outcomes, *out)
	}

	final, err := s.finishSession(ctx, session.SessionID)
	if err != nil {
		return session, outcomes, err
	}
	return final, outcomes, nil
}

// interrupted reports why a session must not start its next instance, or "".
func (s *service) interrupted(ctx context.Context, sessionID string) string {
	if err := ctx.Err(); err != nil {
		if _, mErr := s.sessionRepo.MarkPendingRecords(nil, sessionID, models.SyncStatusFailed, err.Error()); mErr != nil {
			logger.Errorf("Failed to fail pending records of session %s: %v", sessionID, mErr)
		}
		return err.Error()
	}
	current, err := s.sessionRepo.GetBySessionID(nil, sessionID)
	if err == nil && current.Status == models.SyncStatusCancelled {
		return "session cancelled"
	}
	return ""
}

// finishSession recomputes the counters from the records. A session completes
// unless every instance failed; a cancelled session stays cancelled.
func (s *service) finishSession(ctx context.Context, sessionID string) (*models.SyncSession, error) {
	session, err := s.sessionRepo.GetBySessionID(nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload session %s: %w", errs.ErrPersistence, sessionID, err)
	}
	session.SuccessfulInstances, session.FailedInstances = 0, 0
	for _, r := range session.Records {
		switch r.Status {
		case models.SyncStatusCompleted:
			session.SuccessfulInstances++
		case models.SyncStatusFailed:
			session.FailedInstances++
		}
	}
	if session.Status != models.SyncStatusCancelled {
		session.Status = models.SyncStatusCompleted
		if session.TotalInstances > 0 && session.FailedInstances == session.TotalInstances {
			session.Status = models.SyncStatusFailed
		}
	}
	completedAt := s.now().UTC()
	session.CompletedAt = &completedAt
	if err := s.sessionRepo.Update(nil, session); err != nil {
		return nil, fmt.Errorf("%w: update session %s: %w", errs.ErrPersistence, sessionID, err)
	}

	logger.Infof("Sync session %s %s: total=%d successful=%d failed=%d",
		session.SessionID, session.Status, session.TotalInstances, session.SuccessfulInstances, session.FailedInstances)
	events.Emit(ctx, events.New(events.SessionCompleted, session))
	return session, nil
}

// syncInstance runs one instance end to end. A failure is also carried by the
// outcome and the record.
func (s *service) syncInstance(ctx context.Context, inst *models.Instance, sessionID string, record *models.SyncInstanceRecord) (*Outcome, error) {
	start := s.now()
	out := &Outcome{InstanceID: inst.ID, InstanceName: inst.Name, DBType: inst.DBType, SessionID: sessionID}

	if record != nil {
		startedAt := start.UTC()
		record.Status = models.SyncStatusRunning
		record.StartedAt = &startedAt
		if err := s.sessionRepo.UpdateRecord(nil, record); err != nil {
			logger.Warnf("instance=%s db_type=%s failed to mark record running: %v", inst.Name, inst.DBType, err)
		}
	}
	logger.Infof("instance=%s db_type=%s session=%s account sync started", inst.Name, inst.DBType, sessionID)

	err := s.run(ctx, inst, sessionID, out)
	out.Duration = s.now().Sub(start)
	if err != nil {
		out.Status = models.SyncStatusFailed
		out.Error = err.Error()
		out.err = err
		logger.Errorf("instance=%s db_type=%s session=%s account sync failed: %v", inst.Name, inst.DBType, sessionID, err)
		events.Emit(ctx, events.New(events.InstanceFailed, out))
	} else {
		out.Status = models.SyncStatusCompleted
		logger.Infof("instance=%s db_type=%s session=%s account sync completed in %s: before=%d after=%d net=%d",
			inst.Name, inst.DBType, sessionID, out.Duration, out.BeforeCount, out.AfterCount, out.NetChange)
	}
	metrics.InstanceSyncs.WithLabelValues(inst.DBType, out.Status).Inc()
	metrics.InstanceSyncSeconds.WithLabelValues(inst.DBType).Observe(out.Duration.Seconds())

	if record != nil {
		s.closeRecord(record, out)
	}
	return out, err
}

func (s *service) run(ctx context.Context, inst *models.Instance, sessionID string, out *Outcome) error {
	ad, err := s.adapterFor(inst.DBType)
	if err != nil {
		return err
	}
	conn, err := s.factory.Open(ctx, inst)
	if err != nil {
		return err
	}
	defer conn.Close()

	if version, err := connection.ProbeVersion(ctx, conn); err != nil {
		logger.Warnf("instance=%s db_type=%s version probe failed: %v", inst.Name, inst.DBType, err)
	} else {
		out.Version = version
		out.MainVersion, out.DetailedVersion = utils.ParseDatabaseVersion(inst.DBType, version)
		if err := s.instanceRepo.UpdateVersion(nil, inst.ID, version, out.MainVersion, out.DetailedVersion); err != nil {
			logger.Warnf("instance=%s db_type=%s failed to store version: %v", inst.Name, inst.DBType, err)
		}
		if err := s.instanceRepo.TouchConnected(nil, inst.ID, s.now().UTC()); err != nil {
			logger.Warnf("instance=%s db_type=%s failed to store last_connected_at: %v", inst.Name, inst.DBType, err)
		}
	}

	if out.BeforeCount, err = s.accountRepo.CountLive(nil, inst.ID); err != nil {
		return fmt.Errorf("%w: count accounts: %w", errs.ErrPersistence, err)
	}
	snapshot, err := ad.GetAccounts(ctx, conn)
	if err != nil {
		return err
	}
	if out.Result, err = s.engine.Reconcile(ctx, inst, ad, snapshot, sessionID); err != nil {
		return err
	}
	if out.AfterCount, err = s.accountRepo.CountLive(nil, inst.ID); err != nil {
		return fmt.Errorf("%w: count accounts: %w", errs.ErrPersistence, err)
	}
	out.NetChange = out.AfterCount - out.BeforeCount
	return nil
}

type recordDetails struct {
	BeforeCount     int64  `json:"before_count"`
	AfterCount      int64  `json:"after_count"`
	NetChange       int64  `json:"net_change"`
	Unchanged       int    `json:"unchanged"`
	Skipped         int    `json:"skipped"`
	Version         string `json:"version,omitempty"`
	MainVersion     string `json:"main_version,omitempty"`
	DetailedVersion string `json:"detailed_version,omitempty"`
	DurationMS      int64  `json:"duration_ms"`
}

func (s *service) closeRecord(record *models.SyncInstanceRecord, out *Outcome) {
	completedAt := s.now().UTC()
	record.Status = out.Status
	record.CompletedAt = &completedAt
	record.ErrorMessage = out.Error

	details := recordDetails{
		BeforeCount:     out.BeforeCount,
		AfterCount:      out.AfterCount,
		NetChange:       out.NetChange,
		Version:         out.Version,
		MainVersion:     out.MainVersion,
		DetailedVersion: out.DetailedVersion,
		DurationMS:      out.Duration.Milliseconds(),
	}
	if res := out.Result; res != nil {
		record.AccountsSynced = res.Synced
		record.AccountsCreated = res.Created()
		record.AccountsUpdated = res.Modified
		record.AccountsDeleted = res.Deleted
		details.Unchanged = res.Unchanged
		details.Skipped = res.Skipped
	}
	if b, err := json.Marshal(details); err == nil {
		record.SyncDetails = datatypes.JSON(b)
	}
	if err := s.sessionRepo.UpdateRecord(nil, record); err != nil {
		logger.Errorf("instance=%s failed to write session record %s: %v", out.InstanceName, record.SessionID, err)
	}
}

func (s *service) CancelSession(ctx context.Context, sessionID string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.SyncStatusRunning {
		return fmt.Errorf("%w: session %s is %s", errs.ErrValidationFailed, sessionID, session.Status)
	}
	completedAt := s.now().UTC()
	session.Status = models.SyncStatusCancelled
	session.CompletedAt = &completedAt
	if err := s.sessionRepo.Update(nil, session); err != nil {
		return fmt.Errorf("%w: cancel session %s: %w", errs.ErrPersistence, sessionID, err)
	}
	n, err := s.sessionRepo.MarkPendingRecords(nil, sessionID, models.SyncStatusFailed, "session cancelled")
	if err != nil {
		return fmt.Errorf("%w: cancel records of %s: %w", errs.ErrPersistence, sessionID, err)
	}
	logger.Infof("Sync session %s cancelled, %d unfinished records failed", sessionID, n)
	return nil
}

func (s *service) GetSession(ctx context.Context, sessionID string) (*models.SyncSession, error) {
	session, err := s.sessionRepo.GetBySessionID(nil, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: session %s", errs.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load session %s: %w", errs.ErrPersistence, sessionID, err)
	}
	return session, nil
}

func (s *service) TestConnection(ctx context.Context, instanceID uint) (*connection.TestResult, error) {
	inst, err := s.loadInstance(instanceID)
	if err != nil {
		return nil, err
	}
	res, err := s.factory.TestConnection(ctx, inst)
	if err != nil {
		return nil, err
	}
	if res.Success {
		if err := s.instanceRepo.UpdateVersion(nil, inst.ID, res.Version, res.MainVersion, res.DetailedVersion); err != nil {
			logger.Warnf("instance=%s db_type=%s failed to store version: %v", inst.Name, inst.DBType, err)
		}
	}
	return res, nil
}

func (s *service) loadInstance(id uint) (*models.Instance, error) {
	inst, err := s.instanceRepo.GetByID(nil, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: instance %d", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load instance %d: %w", errs.ErrPersistence, id, err)
	}
	return inst, nil
}
