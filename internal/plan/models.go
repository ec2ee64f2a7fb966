package plan

import "errors"

// Plan identifies a subscription tier. The set is closed; plans are assigned
// and changed by the billing lifecycle, never by this service.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Resource names an action-scoped resource subject to entitlement checks.
type Resource string

const (
	ResourceResumes       Resource = "resumes"
	ResourcePDFExports    Resource = "pdf_exports"
	ResourceAISuggestions Resource = "ai_suggestions"

	ResourcePremiumTemplates    Resource = "premium_templates"
	ResourceCustomPublicURL     Resource = "custom_public_url"
	ResourceWatermarkFreeExport Resource = "watermark_free_export"
)

// ResourceKind classifies how a resource is enforced.
type ResourceKind string

const (
	// KindCapacity bounds the live total of a durable resource owned elsewhere.
	KindCapacity ResourceKind = "capacity"
	// KindRate bounds consumption within a calendar month.
	KindRate ResourceKind = "rate"
	// KindBoolean is a plain on/off entitlement.
	KindBoolean ResourceKind = "boolean"
)

var (
	ErrUnknownPlan     = errors.New("unknown_plan")
	ErrUnknownResource = errors.New("unknown_resource")
)

// Limit is a bound that is either a non-negative integer or unbounded.
// Unbounded is a distinct state, not a large number.
type Limit struct {
	bounded bool
	value   int64
}

func Bounded(n int64) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{bounded: true, value: n}
}

func Unbounded() Limit {
	return Limit{}
}

func (l Limit) IsUnbounded() bool { return !l.bounded }

// Value returns the numeric bound. Only meaningful when IsUnbounded is false.
func (l Limit) Value() int64 { return l.value }

// Allows reports whether a total of current+1 stays within the limit.
func (l Limit) Allows(current int64) bool {
	if !l.bounded {
		return true
	}
	return current < l.value
}

// LimitSet is the full set of limits attached to a plan. Every field is
// populated for every plan in the catalog.
type LimitSet struct {
	MaxResumes Limit

	MaxPDFExportsPerMonth    Limit
	MaxAISuggestionsPerMonth Limit

	PremiumTemplates    bool
	CustomPublicURL     bool
	WatermarkFreeExport bool
}

// Valid reports whether p is a member of the closed plan set.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro:
		return true
	}
	return false
}
