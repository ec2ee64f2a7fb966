package plan

import (
	"github.com/resumekit/entitled/internal/config"
	"go.uber.org/fx"
)

// NewCatalogFromConfig builds the catalog, applying plans.yml overrides when
// configured.
func NewCatalogFromConfig(cfg config.Config) (*Catalog, error) {
	catalog := NewCatalog()
	if err := LoadOverrides(catalog, cfg.PlanCatalogPath); err != nil {
		return nil, err
	}
	return catalog, nil
}

var Module = fx.Module("plan.catalog",
	fx.Provide(NewCatalogFromConfig),
)
