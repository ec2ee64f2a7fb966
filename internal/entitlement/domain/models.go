package domain

import (
	"errors"
	"time"

	"github.com/resumekit/entitled/internal/plan"
)

// ErrInvalidPageToken reports an unparseable history cursor.
var ErrInvalidPageToken = errors.New("invalid_page_token")

// Reason classifies a verdict. The set is closed; DeniedByPolicy reasons are
// normal outcomes, not errors.
type Reason string

const (
	ReasonOK               Reason = "ok"
	ReasonGloballyDisabled Reason = "globally_disabled"
	ReasonCapacityExceeded Reason = "capacity_exceeded"
	ReasonRateExceeded     Reason = "rate_exceeded"
	ReasonNotEntitled      Reason = "not_entitled"
	ReasonStoreUnavailable Reason = "store_unavailable"
)

// AuthorizeRequest asks whether the account may perform one action on the
// resource right now. Plan comes from the session layer and is trusted.
type AuthorizeRequest struct {
	AccountID string
	Plan      plan.Plan
	Resource  plan.Resource
}

// Verdict is the outcome of an authorization call. For rate resources an
// allowed verdict means the consumption is already recorded; denial is final
// for this call, the engine never retries or queues.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`

	// Limit and Current are set for capacity and rate verdicts so callers
	// can render quota messaging. Limit is nil when the plan is unbounded.
	Limit   *int64 `json:"limit,omitempty"`
	Current *int64 `json:"current,omitempty"`

	// Period and PeriodEnd are set for rate verdicts.
	Period    string     `json:"period,omitempty"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
}

// ResourceUsage is one row of a usage summary.
type ResourceUsage struct {
	Kind plan.ResourceKind `json:"kind"`

	Used      int64  `json:"used"`
	Limit     *int64 `json:"limit,omitempty"`
	Unlimited bool   `json:"unlimited"`

	// Entitled is set for boolean resources instead of counts.
	Entitled *bool `json:"entitled,omitempty"`

	// PeriodEnd is when the current rate window rolls over.
	PeriodEnd *time.Time `json:"period_end,omitempty"`
}

// Summary is the full quota state of an account, for display. Producing it
// never consumes anything.
type Summary struct {
	AccountID string                          `json:"account_id"`
	Plan      plan.Plan                       `json:"plan"`
	Period    string                          `json:"period"`
	Resources map[plan.Resource]ResourceUsage `json:"resources"`
}

// HistoryPage is a page of retained period counters, newest first.
type HistoryPage struct {
	Entries       []HistoryEntry `json:"entries"`
	NextPageToken string         `json:"next_page_token,omitempty"`
	HasMore       bool           `json:"has_more"`
}

type HistoryEntry struct {
	Period   string `json:"period"`
	Resource string `json:"resource"`
	Used     int64  `json:"used"`
}
