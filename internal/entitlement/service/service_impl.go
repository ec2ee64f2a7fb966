package service

import (
	"context"
	"fmt"

	"github.com/resumekit/entitled/internal/clock"
	entitlementdomain "github.com/resumekit/entitled/internal/entitlement/domain"
	"github.com/resumekit/entitled/internal/flags"
	ledgerdomain "github.com/resumekit/entitled/internal/ledger/domain"
	"github.com/resumekit/entitled/internal/observability/metrics"
	"github.com/resumekit/entitled/internal/plan"
	"github.com/resumekit/entitled/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Catalog *plan.Catalog
	Flags   *flags.Set
	Ledger  ledgerdomain.Service
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	catalog *plan.Catalog
	flags   *flags.Set
	ledger  ledgerdomain.Service
	clock   clock.Clock
	metrics *metrics.Metrics
}

func New(p ServiceParam) entitlementdomain.Service {
	return &Service{
		log:     p.Log.Named("entitlement.service"),
		catalog: p.Catalog,
		flags:   p.Flags,
		ledger:  p.Ledger,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Authorize(ctx context.Context, req entitlementdomain.AuthorizeRequest) (entitlementdomain.Verdict, error) {
	verdict, err := s.authorize(ctx, req)
	if err != nil {
		return entitlementdomain.Verdict{}, err
	}
	s.metrics.RecordVerdict(string(req.Resource), string(verdict.Reason))
	if !verdict.Allowed {
		s.log.Info("authorization denied",
			zap.String("account_id", req.AccountID),
			zap.String("plan", string(req.Plan)),
			zap.String("resource", string(req.Resource)),
			zap.String("reason", string(verdict.Reason)),
		)
	}
	return verdict, nil
}

func (s *Service) authorize(ctx context.Context, req entitlementdomain.AuthorizeRequest) (entitlementdomain.Verdict, error) {
	if !req.Plan.Valid() {
		return entitlementdomain.Verdict{}, fmt.Errorf("%w: %q", plan.ErrUnknownPlan, req.Plan)
	}
	kind, err := s.catalog.Kind(req.Resource)
	if err != nil {
		return entitlementdomain.Verdict{}, fmt.Errorf("%w: %q", err, req.Resource)
	}

	// Global kill switches win over any plan, without touching the ledger.
	if s.flags.Disabled(req.Resource) {
		return denied(entitlementdomain.ReasonGloballyDisabled), nil
	}

	limits, err := s.catalog.LimitsFor(req.Plan)
	if err != nil {
		return entitlementdomain.Verdict{}, err
	}

	switch kind {
	case plan.KindCapacity:
		return s.authorizeCapacity(ctx, req, limits)
	case plan.KindRate:
		return s.authorizeRate(ctx, req, limits)
	case plan.KindBoolean:
		entitled, _ := limits.Entitled(req.Resource)
		if !entitled {
			return denied(entitlementdomain.ReasonNotEntitled), nil
		}
		return allowed(), nil
	default:
		return entitlementdomain.Verdict{}, fmt.Errorf("%w: unhandled kind %q", plan.ErrUnknownResource, kind)
	}
}

// authorizeCapacity produces an advisory verdict from the mirrored capacity
// snapshot. The resource owner re-checks atomically at creation time; this
// check only exists for a fast user-facing answer.
func (s *Service) authorizeCapacity(ctx context.Context, req entitlementdomain.AuthorizeRequest, limits plan.LimitSet) (entitlementdomain.Verdict, error) {
	bound, ok := limits.CapacityLimit(req.Resource)
	if !ok {
		return entitlementdomain.Verdict{}, fmt.Errorf("%w: no capacity limit for %q", plan.ErrUnknownResource, req.Resource)
	}

	current, err := s.ledger.CurrentCapacity(ctx, req.AccountID, req.Resource)
	if err != nil {
		return s.storeUnavailable(req, err), nil
	}

	verdict := entitlementdomain.Verdict{Current: &current}
	if !bound.IsUnbounded() {
		limit := bound.Value()
		verdict.Limit = &limit
	}
	if bound.Allows(current) {
		verdict.Allowed = true
		verdict.Reason = entitlementdomain.ReasonOK
		return verdict, nil
	}
	verdict.Reason = entitlementdomain.ReasonCapacityExceeded
	return verdict, nil
}

// authorizeRate commits consumption when allowed: the atomic check-and-
// increment in the ledger is the authorization.
func (s *Service) authorizeRate(ctx context.Context, req entitlementdomain.AuthorizeRequest, limits plan.LimitSet) (entitlementdomain.Verdict, error) {
	bound, ok := limits.RateLimit(req.Resource)
	if !ok {
		return entitlementdomain.Verdict{}, fmt.Errorf("%w: no rate limit for %q", plan.ErrUnknownResource, req.Resource)
	}

	period := ledgerdomain.PeriodOf(s.clock.Now())
	result, err := s.ledger.TryRecordConsumption(ctx, req.AccountID, req.Resource, period, bound)
	if err != nil {
		return s.storeUnavailable(req, err), nil
	}

	periodEnd := period.End()
	verdict := entitlementdomain.Verdict{
		Current:   &result.NewCount,
		Period:    period.String(),
		PeriodEnd: &periodEnd,
	}
	if !bound.IsUnbounded() {
		limit := bound.Value()
		verdict.Limit = &limit
	}
	if result.Accepted {
		verdict.Allowed = true
		verdict.Reason = entitlementdomain.ReasonOK
		return verdict, nil
	}
	verdict.Reason = entitlementdomain.ReasonRateExceeded
	return verdict, nil
}

// storeUnavailable fails closed: an unreachable ledger denies the action
// rather than risking unrecorded consumption.
func (s *Service) storeUnavailable(req entitlementdomain.AuthorizeRequest, err error) entitlementdomain.Verdict {
	s.log.Error("ledger unavailable, failing closed",
		zap.String("account_id", req.AccountID),
		zap.String("resource", string(req.Resource)),
		zap.Error(err),
	)
	return denied(entitlementdomain.ReasonStoreUnavailable)
}

func (s *Service) UsageSummary(ctx context.Context, accountID string, p plan.Plan) (entitlementdomain.Summary, error) {
	if !p.Valid() {
		return entitlementdomain.Summary{}, fmt.Errorf("%w: %q", plan.ErrUnknownPlan, p)
	}
	limits, err := s.catalog.LimitsFor(p)
	if err != nil {
		return entitlementdomain.Summary{}, err
	}

	period := ledgerdomain.PeriodOf(s.clock.Now())
	counts, err := s.ledger.CountsForPeriod(ctx, accountID, period)
	if err != nil {
		return entitlementdomain.Summary{}, err
	}

	periodEnd := period.End()
	resources := make(map[plan.Resource]entitlementdomain.ResourceUsage)
	for _, resource := range s.catalog.Resources() {
		kind, err := s.catalog.Kind(resource)
		if err != nil {
			return entitlementdomain.Summary{}, err
		}

		usage := entitlementdomain.ResourceUsage{Kind: kind}
		switch kind {
		case plan.KindCapacity:
			bound, _ := limits.CapacityLimit(resource)
			total, err := s.ledger.CurrentCapacity(ctx, accountID, resource)
			if err != nil {
				return entitlementdomain.Summary{}, err
			}
			usage.Used = total
			applyLimit(&usage, bound)
		case plan.KindRate:
			bound, _ := limits.RateLimit(resource)
			usage.Used = counts[resource]
			usage.PeriodEnd = &periodEnd
			applyLimit(&usage, bound)
		case plan.KindBoolean:
			entitled, _ := limits.Entitled(resource)
			usage.Entitled = &entitled
		}
		resources[resource] = usage
	}

	return entitlementdomain.Summary{
		AccountID: accountID,
		Plan:      p,
		Period:    period.String(),
		Resources: resources,
	}, nil
}

func (s *Service) UsageHistory(ctx context.Context, accountID string, pageToken string, pageSize int) (entitlementdomain.HistoryPage, error) {
	if pageSize <= 0 {
		pageSize = 12
	}

	var before *ledgerdomain.Period
	if pageToken != "" {
		cursor, err := pagination.DecodeCursor(pageToken)
		if err != nil {
			return entitlementdomain.HistoryPage{}, fmt.Errorf("%w: %v", entitlementdomain.ErrInvalidPageToken, err)
		}
		period, err := ledgerdomain.ParsePeriod(cursor.Period)
		if err != nil {
			return entitlementdomain.HistoryPage{}, fmt.Errorf("%w: %v", entitlementdomain.ErrInvalidPageToken, err)
		}
		before = &period
	}

	// Over-fetch one period so the page marker knows whether more remain.
	entries, err := s.ledger.History(ctx, accountID, before, pageSize+1)
	if err != nil {
		return entitlementdomain.HistoryPage{}, err
	}

	periods := groupPeriods(entries)
	periods, info, err := pagination.BuildPageInfo(periods, pageSize, func(p string) pagination.Cursor {
		return pagination.Cursor{Period: p}
	})
	if err != nil {
		return entitlementdomain.HistoryPage{}, err
	}

	page := entitlementdomain.HistoryPage{HasMore: info.HasMore}
	if info.HasMore {
		page.NextPageToken = info.NextPageToken
	}
	keep := make(map[string]bool, len(periods))
	for _, p := range periods {
		keep[p] = true
	}
	for _, entry := range entries {
		if !keep[entry.Period] {
			continue
		}
		page.Entries = append(page.Entries, entitlementdomain.HistoryEntry{
			Period:   entry.Period,
			Resource: entry.Resource,
			Used:     entry.Used,
		})
	}
	return page, nil
}

// groupPeriods returns the distinct periods of entries in encounter order
// (the ledger returns them newest first).
func groupPeriods(entries []ledgerdomain.HistoryEntry) []string {
	var periods []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		if seen[entry.Period] {
			continue
		}
		seen[entry.Period] = true
		periods = append(periods, entry.Period)
	}
	return periods
}

func applyLimit(usage *entitlementdomain.ResourceUsage, bound plan.Limit) {
	if bound.IsUnbounded() {
		usage.Unlimited = true
		return
	}
	limit := bound.Value()
	usage.Limit = &limit
}

func denied(reason entitlementdomain.Reason) entitlementdomain.Verdict {
	return entitlementdomain.Verdict{Allowed: false, Reason: reason}
}

func allowed() entitlementdomain.Verdict {
	return entitlementdomain.Verdict{Allowed: true, Reason: entitlementdomain.ReasonOK}
}
