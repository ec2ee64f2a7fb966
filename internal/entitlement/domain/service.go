package domain

import (
	"context"
	"errors"

	"github.com/resumekit/entitled/internal/plan"
)

// IsProgrammingError reports whether err is a caller defect (unknown plan or
// resource) rather than a quota outcome.
func IsProgrammingError(err error) bool {
	return errors.Is(err, plan.ErrUnknownPlan) || errors.Is(err, plan.ErrUnknownResource)
}

// Service is the entitlement engine. Stateless across calls; every call
// composes the plan catalog, the global flag snapshot and the usage ledger
// into a single verdict.
type Service interface {
	// Authorize decides whether the action is permitted right now. For rate
	// resources an allowed verdict has already committed the consumption.
	// Unknown plans or resources are returned as errors (caller defects),
	// ledger failures surface as a denied verdict with
	// reason=store_unavailable.
	Authorize(ctx context.Context, req AuthorizeRequest) (Verdict, error)

	// UsageSummary reports current usage against limits for display.
	// Side-effect free.
	UsageSummary(ctx context.Context, accountID string, p plan.Plan) (Summary, error)

	// UsageHistory pages through retained period counters, newest first.
	UsageHistory(ctx context.Context, accountID string, pageToken string, pageSize int) (HistoryPage, error)
}
