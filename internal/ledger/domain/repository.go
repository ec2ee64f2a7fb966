package domain

import (
	"context"

	"github.com/resumekit/entitled/internal/plan"
)

// Repository is the storage contract for usage counters and capacity
// snapshots. TryIncrement must be a single atomic conditional update in the
// backing store: concurrent calls on the same (account, resource, period) key
// serialize there, calls on different keys never contend.
type Repository interface {
	CurrentCount(ctx context.Context, accountID string, resource plan.Resource, period Period) (int64, error)
	CountsForPeriod(ctx context.Context, accountID string, period Period) (map[plan.Resource]int64, error)
	TryIncrement(ctx context.Context, accountID string, resource plan.Resource, period Period, bound plan.Limit) (ConsumptionResult, error)

	CurrentCapacity(ctx context.Context, accountID string, resource plan.Resource) (int64, error)
	ReportCapacity(ctx context.Context, accountID string, resource plan.Resource, total int64) error

	// History returns counters for periods strictly before the cursor (or
	// starting at the newest when before is nil), newest first, at most
	// limit periods deep.
	History(ctx context.Context, accountID string, before *Period, limit int) ([]HistoryEntry, error)
}
