package plan

// Catalog maps every plan to its limits. Static; changed only by redeploy,
// so it is shared across callers without synchronization.
type Catalog struct {
	limits map[Plan]LimitSet
	kinds  map[Resource]ResourceKind
}

// NewCatalog builds the default catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		limits: map[Plan]LimitSet{
			PlanFree: {
				MaxResumes:               Bounded(3),
				MaxPDFExportsPerMonth:    Bounded(2),
				MaxAISuggestionsPerMonth: Bounded(10),
				PremiumTemplates:         false,
				CustomPublicURL:          false,
				WatermarkFreeExport:      false,
			},
			PlanPro: {
				MaxResumes:               Unbounded(),
				MaxPDFExportsPerMonth:    Unbounded(),
				MaxAISuggestionsPerMonth: Bounded(500),
				PremiumTemplates:         true,
				CustomPublicURL:          true,
				WatermarkFreeExport:      true,
			},
		},
		kinds: map[Resource]ResourceKind{
			ResourceResumes:             KindCapacity,
			ResourcePDFExports:          KindRate,
			ResourceAISuggestions:       KindRate,
			ResourcePremiumTemplates:    KindBoolean,
			ResourceCustomPublicURL:     KindBoolean,
			ResourceWatermarkFreeExport: KindBoolean,
		},
	}
}

// LimitsFor resolves the limits for a plan. Callers must validate plan
// membership first; an unknown plan is a caller defect, not a quota verdict.
func (c *Catalog) LimitsFor(p Plan) (LimitSet, error) {
	limits, ok := c.limits[p]
	if !ok {
		return LimitSet{}, ErrUnknownPlan
	}
	return limits, nil
}

// Kind resolves the enforcement kind of a resource.
func (c *Catalog) Kind(r Resource) (ResourceKind, error) {
	kind, ok := c.kinds[r]
	if !ok {
		return "", ErrUnknownResource
	}
	return kind, nil
}

// Resources lists every resource in the catalog, rate resources first so
// summaries render in a stable order.
func (c *Catalog) Resources() []Resource {
	return []Resource{
		ResourceResumes,
		ResourcePDFExports,
		ResourceAISuggestions,
		ResourcePremiumTemplates,
		ResourceCustomPublicURL,
		ResourceWatermarkFreeExport,
	}
}

// RateLimit returns the per-month bound for a rate resource.
func (s LimitSet) RateLimit(r Resource) (Limit, bool) {
	switch r {
	case ResourcePDFExports:
		return s.MaxPDFExportsPerMonth, true
	case ResourceAISuggestions:
		return s.MaxAISuggestionsPerMonth, true
	}
	return Limit{}, false
}

// CapacityLimit returns the live-total bound for a capacity resource.
func (s LimitSet) CapacityLimit(r Resource) (Limit, bool) {
	switch r {
	case ResourceResumes:
		return s.MaxResumes, true
	}
	return Limit{}, false
}

// Entitled returns the boolean entitlement for r.
func (s LimitSet) Entitled(r Resource) (bool, bool) {
	switch r {
	case ResourcePremiumTemplates:
		return s.PremiumTemplates, true
	case ResourceCustomPublicURL:
		return s.CustomPublicURL, true
	case ResourceWatermarkFreeExport:
		return s.WatermarkFreeExport, true
	}
	return false, false
}
