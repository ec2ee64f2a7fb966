package plan

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// unlimitedToken marks an unbounded limit in plans.yml.
const unlimitedToken = "unlimited"

// LoadOverrides applies limit overrides from a plans.yml file onto the default
// catalog. The file is read once at startup; runtime changes are ignored by
// design, a redeploy ships a new catalog.
//
// Schema:
//
//	plans:
//	  free:
//	    max_pdf_exports_per_month: 5
//	  pro:
//	    max_ai_suggestions_per_month: unlimited
func LoadOverrides(catalog *Catalog, path string) error {
	if path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read plan catalog %s: %w", path, err)
	}

	raw := v.GetStringMap("plans")
	for name, entry := range raw {
		p := Plan(strings.ToLower(strings.TrimSpace(name)))
		limits, ok := catalog.limits[p]
		if !ok {
			return fmt.Errorf("plan catalog %s: %w: %q", path, ErrUnknownPlan, name)
		}

		attrs, ok := entry.(map[string]any)
		if !ok {
			return fmt.Errorf("plan catalog %s: plan %q is not a mapping", path, name)
		}
		if err := applyOverrides(&limits, attrs); err != nil {
			return fmt.Errorf("plan catalog %s: plan %q: %w", path, name, err)
		}
		catalog.limits[p] = limits
	}
	return nil
}

func applyOverrides(limits *LimitSet, attrs map[string]any) error {
	for key, value := range attrs {
		switch strings.ToLower(key) {
		case "max_resumes":
			limit, err := parseLimit(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			limits.MaxResumes = limit
		case "max_pdf_exports_per_month":
			limit, err := parseLimit(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			limits.MaxPDFExportsPerMonth = limit
		case "max_ai_suggestions_per_month":
			limit, err := parseLimit(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			limits.MaxAISuggestionsPerMonth = limit
		case "premium_templates":
			enabled, err := parseBool(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			limits.PremiumTemplates = enabled
		case "custom_public_url":
			enabled, err := parseBool(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			limits.CustomPublicURL = enabled
		case "watermark_free_export":
			enabled, err := parseBool(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			limits.WatermarkFreeExport = enabled
		default:
			return fmt.Errorf("unknown attribute %q", key)
		}
	}
	return nil
}

func parseLimit(value any) (Limit, error) {
	switch v := value.(type) {
	case string:
		if strings.EqualFold(strings.TrimSpace(v), unlimitedToken) {
			return Unbounded(), nil
		}
		return Limit{}, fmt.Errorf("expected integer or %q, got %q", unlimitedToken, v)
	case int:
		if v < 0 {
			return Limit{}, fmt.Errorf("limit must be non-negative, got %d", v)
		}
		return Bounded(int64(v)), nil
	case int64:
		if v < 0 {
			return Limit{}, fmt.Errorf("limit must be non-negative, got %d", v)
		}
		return Bounded(v), nil
	case float64:
		if v < 0 || v != float64(int64(v)) {
			return Limit{}, fmt.Errorf("limit must be a non-negative integer, got %v", v)
		}
		return Bounded(int64(v)), nil
	default:
		return Limit{}, fmt.Errorf("expected integer or %q, got %T", unlimitedToken, value)
	}
}

func parseBool(value any) (bool, error) {
	v, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean, got %T", value)
	}
	return v, nil
}
