// Package classification tags accounts from declarative rules. Automatic runs
// rebuild every assignment of their scope under a new batch.
package classification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dbaccountsync/config"
	"dbaccountsync/models"
	"dbaccountsync/pkg/errs"
	"dbaccountsync/pkg/events"
	"dbaccountsync/pkg/lock"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/pkg/metrics"
	"dbaccountsync/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// lockKey serializes every automatic run. A fleet run covers every instance
// scope, so one key is shared by all scopes.
const lockKey = "classification:auto"

// Scope selects the accounts of an automatic run.
type Scope struct {
	InstanceID *uint  // nil = whole fleet
	BatchType  string // manual, scheduled
	CreatedBy  *uint
}

// RuleResult is the per-rule outcome stored in ClassificationBatch.BatchDetails.
type RuleResult struct {
	RuleID         uint   `json:"rule_id"`
	RuleName       string `json:"rule_name"`
	Classification string `json:"classification"`
	Matches        int    `json:"matches"`
	Added          int    `json:"added"`
	Reactivated    int    `json:"reactivated"`
	Error          string `json:"error,omitempty"`
}

// Service runs classification.
type Service interface {
	// AutoClassify rebuilds the assignments of scope. It returns errs.ErrNoRules
	// when no rule is active and errs.ErrLockNotAcquired when another run holds the lock.
	AutoClassify(ctx context.Context, scope Scope) (*models.ClassificationBatch, error)
	// CountMatches evaluates one rule against every live account.
	CountMatches(ctx context.Context, ruleID uint) (int, error)
	// Assign attaches a classification by hand, reactivating an existing row.
	Assign(ctx context.Context, accountID, classificationID uint, assignedBy *uint, notes string) (*models.AccountClassificationAssignment, error)
	// Unassign deactivates an assignment.
	Unassign(ctx context.Context, accountID, classificationID uint) error
}

type service struct {
	baseRepo           repository.BaseRepository
	accountRepo        repository.AccountRepository
	classificationRepo repository.ClassificationRepository
	assignmentRepo     repository.AssignmentRepository
	locker             lock.Locker
	now                func() time.Time
}

// NewService creates a classification service on the global store.
func NewService() Service {
	return NewServiceWithDeps(
		repository.NewBaseRepository(),
		repository.NewAccountRepository(),
		repository.NewClassificationRepository(),
		repository.NewAssignmentRepository(),
		lock.New(config.Cfg.RedisURL, config.Cfg.ClassificationLockTTL),
	)
}

// NewServiceWithDeps creates a service with injected dependencies.
func NewServiceWithDeps(
	baseRepo repository.BaseRepository,
	accountRepo repository.AccountRepository,
	classificationRepo repository.ClassificationRepository,
	assignmentRepo repository.AssignmentRepository,
	locker lock.Locker,
) Service {
	return &service{
		baseRepo:           baseRepo,
		accountRepo:        accountRepo,
		classificationRepo: classificationRepo,
		assignmentRepo:     assignmentRepo,
		locker:             locker,
		now:                time.Now,
	}
}

type compiledRule struct {
	rule models.ClassificationRule
	expr Expression
	err  error
}

func (s *service) AutoClassify(ctx context.Context, scope Scope) (*models.ClassificationBatch, error) {
	handle, ok, err := s.locker.TryLock(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrLockNotAcquired
	}
	defer func() {
		if err := handle.Unlock(); err != nil {
			logger.Warnf("Failed to release classification lock: %v", err)
		}
	}()

	rules, err := s.classificationRepo.ListActiveRules(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: load rules: %w", errs.ErrPersistence, err)
	}
	if len(rules) == 0 {
		return nil, errs.ErrNoRules
	}
	totalRules, err := s.classificationRepo.CountRules(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: count rules: %w", errs.ErrPersistence, err)
	}

	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		expr, err := Parse(r.RuleExpression, r.DBType)
		compiled[i] = compiledRule{rule: r, expr: expr, err: err}
	}

	rows, err := s.accountRepo.ListTargets(nil, scope.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: load accounts: %w", errs.ErrPersistence, err)
	}
	accounts := make([]models.Account, 0, len(rows))
	for i := range rows {
		acc, err := rows[i].ToAccount()
		if err != nil {
			logger.Warnf("Skipping account id=%d in classification: %v", rows[i].ID, err)
			continue
		}
		accounts = append(accounts, acc)
	}

	batchType := scope.BatchType
	if batchType == "" {
		batchType = models.BatchTypeManual
	}
	batch := &models.ClassificationBatch{
		BatchID:       uuid.NewString(),
		BatchType:     batchType,
		Status:        models.BatchStatusRunning,
		InstanceID:    scope.InstanceID,
		CreatedBy:     scope.CreatedBy,
		TotalRules:    int(totalRules),
		ActiveRules:   len(rules),
		TotalAccounts: len(accounts),
		StartedAt:     s.now().UTC(),
	}
	if err := s.assignmentRepo.CreateBatch(nil, batch); err != nil {
		return nil, fmt.Errorf("%w: create batch: %w", errs.ErrPersistence, err)
	}
	logger.Infof("Classification batch %s started: %d rules, %d accounts", batch.BatchID, len(rules), len(accounts))

	results, err := s.rebuild(ctx, batch, scope, compiled, accounts)
	for _, r := range results {
		batch.TotalMatches += r.Matches
		batch.TotalClassificationsAdded += r.Added
		if r.Error != "" {
			batch.FailedCount++
		}
	}
	if details, mErr := json.Marshal(results); mErr == nil {
		batch.BatchDetails = datatypes.JSON(details)
	}
	completedAt := s.now().UTC()
	batch.CompletedAt = &completedAt

	if err != nil {
		batch.Status = models.BatchStatusFailed
		batch.ErrorMessage = err.Error()
		err = fmt.Errorf("%w: %w", errs.ErrBatchClassificationFailed, err)
	} else {
		batch.Status = models.BatchStatusCompleted
	}
	if uErr := s.assignmentRepo.UpdateBatch(nil, batch); uErr != nil {
		logger.Errorf("Failed to record classification batch %s as %s: %v", batch.BatchID, batch.Status, uErr)
	}

	metrics.ClassificationBatches.WithLabelValues(batch.Status).Inc()
	events.Emit(ctx, events.New(events.BatchEvent(batch.Status), batch))
	if err != nil {
		logger.Errorf("Classification batch %s failed: %v", batch.BatchID, err)
		return batch, err
	}
	logger.Infof("Classification batch %s completed: matches=%d added=%d failed_rules=%d",
		batch.BatchID, batch.TotalMatches, batch.TotalClassificationsAdded, batch.FailedCount)
	return batch, nil
}

// rebuild clears and reassigns inside one transaction, so a failed run leaves
// the previous assignments untouched.
func (s *service) rebuild(ctx context.Context, batch *models.ClassificationBatch, scope Scope, rules []compiledRule, accounts []models.Account) ([]RuleResult, error) {
	tx := s.baseRepo.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	tx = tx.WithContext(ctx)

	cleared, err := s.assignmentRepo.DeactivateFor(tx, s.accountRepo.TargetIDs(tx, scope.InstanceID))
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("clear assignments: %w", err)
	}
	logger.Debugf("Classification batch %s cleared %d assignments", batch.BatchID, cleared)

	results := make([]RuleResult, 0, len(rules))
	for _, cr := range rules {
		res := RuleResult{RuleID: cr.rule.ID, RuleName: cr.rule.RuleName}
		if cr.rule.Classification != nil {
			res.Classification = cr.rule.Classification.Name
		}
		if cr.err != nil {
			res.Error = cr.err.Error()
			logger.Warnf("Classification rule %d (%s) skipped: %v", cr.rule.ID, cr.rule.RuleName, cr.err)
			results = append(results, res)
			continue
		}

		var matched []uint
		for _, acc := range accounts {
			if Evaluate(cr.expr, acc) {
				matched = append(matched, acc.ID)
			}
		}
		res.Matches = len(matched)

		if err := s.upsert(tx, batch.BatchID, cr.rule.ClassificationID, matched, &res); err != nil {
			tx.Rollback()
			res.Error = err.Error()
			results = append(results, res)
			return results, fmt.Errorf("rule %d: %w", cr.rule.ID, err)
		}
		results = append(results, res)
	}

	if err := tx.Commit().Error; err != nil {
		return results, fmt.Errorf("commit: %w", err)
	}
	return results, nil
}

// upsert activates (accountID, classificationID) for every matched account.
func (s *service) upsert(tx *gorm.DB, batchID string, classificationID uint, matched []uint, res *RuleResult) error {
	if len(matched) == 0 {
		return nil
	}
	existing, err := s.assignmentRepo.ListByClassification(tx, classificationID, matched)
	if err != nil {
		return err
	}
	have := make(map[uint]bool, len(existing))
	ids := make([]uint, 0, len(existing))
	for _, a := range existing {
		have[a.AccountID] = true
		ids = append(ids, a.ID)
	}
	if err := s.assignmentRepo.Reactivate(tx, ids, batchID); err != nil {
		return err
	}
	res.Reactivated = len(ids)

	var fresh []models.AccountClassificationAssignment
	for _, accountID := range matched {
		if have[accountID] {
			continue
		}
		fresh = append(fresh, models.AccountClassificationAssignment{
			AccountID:        accountID,
			ClassificationID: classificationID,
			AssignmentType:   models.AssignmentTypeAuto,
			BatchID:          batchID,
			IsActive:         true,
		})
	}
	if err := s.assignmentRepo.CreateBatchRows(tx, fresh); err != nil {
		return err
	}
	res.Added = len(fresh)
	return nil
}

func (s *service) CountMatches(ctx context.Context, ruleID uint) (int, error) {
	rule, err := s.classificationRepo.GetRule(nil, ruleID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: rule %d", errs.ErrNotFound, ruleID)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: load rule %d: %w", errs.ErrPersistence, ruleID, err)
	}
	expr, err := Parse(rule.RuleExpression, rule.DBType)
	if err != nil {
		return 0, err
	}

	rows, err := s.accountRepo.ListTargets(nil, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: load accounts: %w", errs.ErrPersistence, err)
	}
	count := 0
	for i := range rows {
		if rows[i].DBType != rule.DBType {
			continue
		}
		acc, err := rows[i].ToAccount()
		if err != nil {
			logger.Warnf("Skipping account id=%d while counting rule %d: %v", rows[i].ID, ruleID, err)
			continue
		}
		if Evaluate(expr, acc) {
			count++
		}
	}
	return count, nil
}

func (s *service) Assign(ctx context.Context, accountID, classificationID uint, assignedBy *uint, notes string) (*models.AccountClassificationAssignment, error) {
	if _, err := s.accountRepo.GetByID(nil, accountID); err != nil {
		return nil, notFound("account", accountID, err)
	}
	if _, err := s.classificationRepo.GetByID(nil, classificationID); err != nil {
		return nil, notFound("classification", classificationID, err)
	}

	a, err := s.assignmentRepo.Get(nil, accountID, classificationID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		a = &models.AccountClassificationAssignment{AccountID: accountID, ClassificationID: classificationID}
	case err != nil:
		return nil, fmt.Errorf("%w: %w", errs.ErrPersistence, err)
	}
	a.AssignmentType = models.AssignmentTypeManual
	a.AssignedBy = assignedBy
	a.Notes = notes
	a.IsActive = true
	if err := s.assignmentRepo.Save(nil, a); err != nil {
		return nil, fmt.Errorf("%w: save assignment: %w", errs.ErrPersistence, err)
	}
	logger.Infof("Account %d manually assigned to classification %d", accountID, classificationID)
	return a, nil
}

func (s *service) Unassign(ctx context.Context, accountID, classificationID uint) error {
	a, err := s.assignmentRepo.Get(nil, accountID, classificationID)
	if err != nil {
		return notFound("assignment", accountID, err)
	}
	if !a.IsActive {
		return nil
	}
	a.IsActive = false
	if err := s.assignmentRepo.Save(nil, a); err != nil {
		return fmt.Errorf("%w: save assignment: %w", errs.ErrPersistence, err)
	}
	logger.Infof("Account %d unassigned from classification %d", accountID, classificationID)
	return nil
}

func notFound(what string, id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", errs.ErrNotFound, what, strconv.FormatUint(uint64(id), 10))
	}
	return fmt.Errorf("%w: load %s %d: %w", errs.ErrPersistence, what, id, err)
}
