package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/resumekit/entitled/internal/config"
	ledgerdomain "github.com/resumekit/entitled/internal/ledger/domain"
	"github.com/resumekit/entitled/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Repo   ledgerdomain.Repository
}

type Service struct {
	log     *zap.Logger
	repo    ledgerdomain.Repository
	timeout time.Duration
}

func New(p ServiceParam) ledgerdomain.Service {
	timeout := time.Duration(p.Config.StoreTimeoutMillis) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Service{
		log:     p.Log.Named("ledger.service"),
		repo:    p.Repo,
		timeout: timeout,
	}
}

func (s *Service) CurrentCount(ctx context.Context, accountID string, resource plan.Resource, period ledgerdomain.Period) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	count, err := s.repo.CurrentCount(ctx, accountID, resource, period)
	if err != nil {
		return 0, s.storeErr("current_count", accountID, resource, err)
	}
	return count, nil
}

func (s *Service) CountsForPeriod(ctx context.Context, accountID string, period ledgerdomain.Period) (map[plan.Resource]int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	counts, err := s.repo.CountsForPeriod(ctx, accountID, period)
	if err != nil {
		return nil, s.storeErr("counts_for_period", accountID, "", err)
	}
	return counts, nil
}

func (s *Service) TryRecordConsumption(ctx context.Context, accountID string, resource plan.Resource, period ledgerdomain.Period, bound plan.Limit) (ledgerdomain.ConsumptionResult, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	result, err := s.repo.TryIncrement(ctx, accountID, resource, period, bound)
	if err != nil {
		return ledgerdomain.ConsumptionResult{}, s.storeErr("try_record_consumption", accountID, resource, err)
	}
	return result, nil
}

func (s *Service) CurrentCapacity(ctx context.Context, accountID string, resource plan.Resource) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	total, err := s.repo.CurrentCapacity(ctx, accountID, resource)
	if err != nil {
		return 0, s.storeErr("current_capacity", accountID, resource, err)
	}
	return total, nil
}

func (s *Service) ReportCapacity(ctx context.Context, accountID string, resource plan.Resource, total int64) error {
	if total < 0 {
		return fmt.Errorf("capacity total must be non-negative, got %d", total)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.repo.ReportCapacity(ctx, accountID, resource, total); err != nil {
		return s.storeErr("report_capacity", accountID, resource, err)
	}
	return nil
}

func (s *Service) History(ctx context.Context, accountID string, before *ledgerdomain.Period, limit int) ([]ledgerdomain.HistoryEntry, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	entries, err := s.repo.History(ctx, accountID, before, limit)
	if err != nil {
		return nil, s.storeErr("history", accountID, "", err)
	}
	return entries, nil
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// storeErr maps any repository failure, timeouts included, to
// ErrStoreUnavailable so callers fail closed instead of reading zero usage.
func (s *Service) storeErr(op, accountID string, resource plan.Resource, err error) error {
	if errors.Is(err, ledgerdomain.ErrStoreUnavailable) {
		return err
	}
	s.log.Warn("ledger store failure",
		zap.String("op", op),
		zap.String("account_id", accountID),
		zap.String("resource", string(resource)),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", ledgerdomain.ErrStoreUnavailable, op, err)
}
