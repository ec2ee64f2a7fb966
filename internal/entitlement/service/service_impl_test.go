package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/resumekit/entitled/internal/clock"
	"github.com/resumekit/entitled/internal/config"
	entitlementdomain "github.com/resumekit/entitled/internal/entitlement/domain"
	"github.com/resumekit/entitled/internal/flags"
	ledgerdomain "github.com/resumekit/entitled/internal/ledger/domain"
	ledgerrepo "github.com/resumekit/entitled/internal/ledger/repository"
	ledgerservice "github.com/resumekit/entitled/internal/ledger/service"
	"github.com/resumekit/entitled/internal/plan"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type engineFixture struct {
	engine entitlementdomain.Service
	ledger ledgerdomain.Service
	clock  *clock.FakeClock
}

func setupEngine(t *testing.T, flagCfg config.FlagConfig) *engineFixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.AutoMigrate(&ledgerdomain.UsageCounter{}, &ledgerdomain.CapacitySnapshot{}); err != nil {
		t.Fatal(err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	ledgerSvc := ledgerservice.New(ledgerservice.ServiceParam{
		Config: config.Config{StoreTimeoutMillis: 2000},
		Log:    zap.NewNop(),
		Repo:   ledgerrepo.Provide(conn, node),
	})

	fake := clock.NewFakeClock(time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	engine := New(ServiceParam{
		Log:     zap.NewNop(),
		Catalog: plan.NewCatalog(),
		Flags:   flags.FromConfig(config.Config{Flags: flagCfg}),
		Ledger:  ledgerSvc,
		Clock:   fake,
	})

	return &engineFixture{engine: engine, ledger: ledgerSvc, clock: fake}
}

func authorize(t *testing.T, f *engineFixture, p plan.Plan, r plan.Resource) entitlementdomain.Verdict {
	t.Helper()
	verdict, err := f.engine.Authorize(context.Background(), entitlementdomain.AuthorizeRequest{
		AccountID: "acct-1",
		Plan:      p,
		Resource:  r,
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	return verdict
}

func TestAuthorizeUnknownPlanIsError(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})

	_, err := f.engine.Authorize(context.Background(), entitlementdomain.AuthorizeRequest{
		AccountID: "acct-1",
		Plan:      plan.Plan("enterprise"),
		Resource:  plan.ResourcePDFExports,
	})
	assert.ErrorIs(t, err, plan.ErrUnknownPlan)
	assert.True(t, entitlementdomain.IsProgrammingError(err))
}

func TestAuthorizeUnknownResourceIsError(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})

	_, err := f.engine.Authorize(context.Background(), entitlementdomain.AuthorizeRequest{
		AccountID: "acct-1",
		Plan:      plan.PlanPro,
		Resource:  plan.Resource("video_exports"),
	})
	assert.ErrorIs(t, err, plan.ErrUnknownResource)
	assert.True(t, entitlementdomain.IsProgrammingError(err))
}

func TestBooleanEntitlement(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})

	verdict := authorize(t, f, plan.PlanFree, plan.ResourcePremiumTemplates)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, entitlementdomain.ReasonNotEntitled, verdict.Reason)

	verdict = authorize(t, f, plan.PlanPro, plan.ResourcePremiumTemplates)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, entitlementdomain.ReasonOK, verdict.Reason)
}

func TestGlobalFlagOverridesPlan(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{DisablePDFExport: true})

	verdict := authorize(t, f, plan.PlanPro, plan.ResourcePDFExports)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, entitlementdomain.ReasonGloballyDisabled, verdict.Reason)

	// The ledger was never touched: no consumption leaked through the flag.
	count, err := f.ledger.CurrentCount(context.Background(), "acct-1", plan.ResourcePDFExports, ledgerdomain.PeriodOf(f.clock.Now()))
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestFreePlanPDFExportScenario(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})

	// Two exports within the free bound.
	for i := 1; i <= 2; i++ {
		verdict := authorize(t, f, plan.PlanFree, plan.ResourcePDFExports)
		assert.True(t, verdict.Allowed, "export %d", i)
		assert.Equal(t, int64(i), *verdict.Current)
		assert.Equal(t, "2024-06", verdict.Period)
	}

	// Third is denied with the limit and count for messaging.
	verdict := authorize(t, f, plan.PlanFree, plan.ResourcePDFExports)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, entitlementdomain.ReasonRateExceeded, verdict.Reason)
	assert.Equal(t, int64(2), *verdict.Limit)
	assert.Equal(t, int64(2), *verdict.Current)

	// Rollover: July starts from zero.
	f.clock.Set(time.Date(2024, 7, 1, 0, 0, 1, 0, time.UTC))
	verdict = authorize(t, f, plan.PlanFree, plan.ResourcePDFExports)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, int64(1), *verdict.Current)
	assert.Equal(t, "2024-07", verdict.Period)
}

func TestMonotonicDenialUntilRollover(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})

	authorize(t, f, plan.PlanFree, plan.ResourcePDFExports)
	authorize(t, f, plan.PlanFree, plan.ResourcePDFExports)

	for i := 0; i < 5; i++ {
		verdict := authorize(t, f, plan.PlanFree, plan.ResourcePDFExports)
		assert.False(t, verdict.Allowed)
		assert.Equal(t, entitlementdomain.ReasonRateExceeded, verdict.Reason)
	}

	count, err := f.ledger.CurrentCount(context.Background(), "acct-1", plan.ResourcePDFExports, ledgerdomain.PeriodOf(f.clock.Now()))
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestProPlanUnboundedExports(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})

	for i := 1; i <= 10; i++ {
		verdict := authorize(t, f, plan.PlanPro, plan.ResourcePDFExports)
		assert.True(t, verdict.Allowed)
		assert.Nil(t, verdict.Limit)
		assert.Equal(t, int64(i), *verdict.Current)
	}
}

func TestCapacityVerdictAdvisory(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})
	ctx := context.Background()

	verdict := authorize(t, f, plan.PlanFree, plan.ResourceResumes)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, int64(0), *verdict.Current)
	assert.Equal(t, int64(3), *verdict.Limit)

	assert.NoError(t, f.ledger.ReportCapacity(ctx, "acct-1", plan.ResourceResumes, 3))
	verdict = authorize(t, f, plan.PlanFree, plan.ResourceResumes)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, entitlementdomain.ReasonCapacityExceeded, verdict.Reason)
	assert.Equal(t, int64(3), *verdict.Current)

	// The capacity verdict never mutates the snapshot.
	total, err := f.ledger.CurrentCapacity(ctx, "acct-1", plan.ResourceResumes)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total)

	// Pro has no resume bound.
	verdict = authorize(t, f, plan.PlanPro, plan.ResourceResumes)
	assert.True(t, verdict.Allowed)
	assert.Nil(t, verdict.Limit)
}

func TestDowngradedPlanKeepsSpentConsumption(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})

	// Consumption recorded under pro counts against free after a downgrade.
	for i := 0; i < 4; i++ {
		verdict := authorize(t, f, plan.PlanPro, plan.ResourceAISuggestions)
		assert.True(t, verdict.Allowed)
	}

	verdict := authorize(t, f, plan.PlanFree, plan.ResourceAISuggestions)
	assert.True(t, verdict.Allowed, "free bound of 10 not yet reached")
	assert.Equal(t, int64(5), *verdict.Current)
}

type failingRepo struct{}

func (failingRepo) CurrentCount(context.Context, string, plan.Resource, ledgerdomain.Period) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingRepo) CountsForPeriod(context.Context, string, ledgerdomain.Period) (map[plan.Resource]int64, error) {
	return nil, errors.New("connection refused")
}

func (failingRepo) TryIncrement(context.Context, string, plan.Resource, ledgerdomain.Period, plan.Limit) (ledgerdomain.ConsumptionResult, error) {
	return ledgerdomain.ConsumptionResult{}, errors.New("connection refused")
}

func (failingRepo) CurrentCapacity(context.Context, string, plan.Resource) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingRepo) ReportCapacity(context.Context, string, plan.Resource, int64) error {
	return errors.New("connection refused")
}

func (failingRepo) History(context.Context, string, *ledgerdomain.Period, int) ([]ledgerdomain.HistoryEntry, error) {
	return nil, errors.New("connection refused")
}

func TestStoreUnavailableFailsClosed(t *testing.T) {
	ledgerSvc := ledgerservice.New(ledgerservice.ServiceParam{
		Config: config.Config{StoreTimeoutMillis: 100},
		Log:    zap.NewNop(),
		Repo:   failingRepo{},
	})
	engine := New(ServiceParam{
		Log:     zap.NewNop(),
		Catalog: plan.NewCatalog(),
		Flags:   flags.FromConfig(config.Config{}),
		Ledger:  ledgerSvc,
		Clock:   clock.NewFakeClock(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)),
	})

	for _, resource := range []plan.Resource{plan.ResourcePDFExports, plan.ResourceResumes} {
		verdict, err := engine.Authorize(context.Background(), entitlementdomain.AuthorizeRequest{
			AccountID: "acct-1",
			Plan:      plan.PlanPro,
			Resource:  resource,
		})
		assert.NoError(t, err)
		assert.False(t, verdict.Allowed, "resource %s must fail closed", resource)
		assert.Equal(t, entitlementdomain.ReasonStoreUnavailable, verdict.Reason)
	}
}

func TestUsageSummaryHasNoSideEffect(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})
	ctx := context.Background()

	authorize(t, f, plan.PlanFree, plan.ResourcePDFExports)
	assert.NoError(t, f.ledger.ReportCapacity(ctx, "acct-1", plan.ResourceResumes, 2))

	for i := 0; i < 3; i++ {
		summary, err := f.engine.UsageSummary(ctx, "acct-1", plan.PlanFree)
		assert.NoError(t, err)
		assert.Equal(t, "2024-06", summary.Period)

		exports := summary.Resources[plan.ResourcePDFExports]
		assert.Equal(t, int64(1), exports.Used)
		assert.Equal(t, int64(2), *exports.Limit)
		assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), *exports.PeriodEnd)

		resumes := summary.Resources[plan.ResourceResumes]
		assert.Equal(t, int64(2), resumes.Used)
		assert.Equal(t, int64(3), *resumes.Limit)

		premium := summary.Resources[plan.ResourcePremiumTemplates]
		assert.NotNil(t, premium.Entitled)
		assert.False(t, *premium.Entitled)
	}

	// Reading the summary three times did not consume anything.
	count, err := f.ledger.CurrentCount(ctx, "acct-1", plan.ResourcePDFExports, ledgerdomain.PeriodOf(f.clock.Now()))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUsageSummaryUnboundedFields(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})

	summary, err := f.engine.UsageSummary(context.Background(), "acct-1", plan.PlanPro)
	assert.NoError(t, err)

	exports := summary.Resources[plan.ResourcePDFExports]
	assert.True(t, exports.Unlimited)
	assert.Nil(t, exports.Limit)
}

func TestUsageHistoryPaging(t *testing.T) {
	f := setupEngine(t, config.FlagConfig{})
	ctx := context.Background()

	// Consume across three months.
	for _, month := range []time.Month{time.April, time.May, time.June} {
		f.clock.Set(time.Date(2024, month, 5, 0, 0, 0, 0, time.UTC))
		authorize(t, f, plan.PlanFree, plan.ResourcePDFExports)
	}

	page, err := f.engine.UsageHistory(ctx, "acct-1", "", 2)
	assert.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextPageToken)
	assert.Len(t, page.Entries, 2)
	assert.Equal(t, "2024-06", page.Entries[0].Period)
	assert.Equal(t, "2024-05", page.Entries[1].Period)

	page, err = f.engine.UsageHistory(ctx, "acct-1", page.NextPageToken, 2)
	assert.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Len(t, page.Entries, 1)
	assert.Equal(t, "2024-04", page.Entries[0].Period)
}
