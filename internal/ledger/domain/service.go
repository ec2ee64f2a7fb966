package domain

import (
	"context"
	"errors"

	"github.com/resumekit/entitled/internal/plan"
)

// ErrStoreUnavailable reports that the backing store could not be reached
// within the allotted timeout. Callers must treat it as "deny", never as
// zero usage.
var ErrStoreUnavailable = errors.New("store_unavailable")

// Service is the usage ledger: durable, race-safe bookkeeping of consumption.
type Service interface {
	// CurrentCount returns the recorded consumption for the key; 0 for any
	// period never previously touched.
	CurrentCount(ctx context.Context, accountID string, resource plan.Resource, period Period) (int64, error)

	// CountsForPeriod returns all recorded counters for the account in the
	// period, keyed by resource. Read-only.
	CountsForPeriod(ctx context.Context, accountID string, period Period) (map[plan.Resource]int64, error)

	// TryRecordConsumption atomically checks the bound and increments the
	// counter. Exactly one of two concurrent calls at bound-1 is accepted.
	TryRecordConsumption(ctx context.Context, accountID string, resource plan.Resource, period Period, bound plan.Limit) (ConsumptionResult, error)

	// CurrentCapacity returns the mirrored live total of a durable resource.
	CurrentCapacity(ctx context.Context, accountID string, resource plan.Resource) (int64, error)

	// ReportCapacity records the live total reported by the resource owner.
	ReportCapacity(ctx context.Context, accountID string, resource plan.Resource, total int64) error

	// History lists retained period counters, newest first.
	History(ctx context.Context, accountID string, before *Period, limit int) ([]HistoryEntry, error)
}
