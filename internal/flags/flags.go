package flags

import (
	"github.com/resumekit/entitled/internal/config"
	"github.com/resumekit/entitled/internal/plan"
	"go.uber.org/fx"
)

// Set is the deployment-wide kill-switch snapshot, built once at startup and
// never mutated afterward. A restart picks up new flag values.
type Set struct {
	disabled map[plan.Resource]bool
}

// FromConfig builds the flag set from startup configuration.
func FromConfig(cfg config.Config) *Set {
	return &Set{
		disabled: map[plan.Resource]bool{
			plan.ResourcePDFExports:    cfg.Flags.DisablePDFExport,
			plan.ResourceAISuggestions: cfg.Flags.DisableAISuggestions,
			plan.ResourceResumes:       cfg.Flags.DisableResumeCreation,
		},
	}
}

// Disabled reports whether a global flag forbids actions on the resource
// regardless of plan. Resources with no kill switch are never disabled.
func (s *Set) Disabled(r plan.Resource) bool {
	if s == nil {
		return false
	}
	return s.disabled[r]
}

var Module = fx.Module("flags",
	fx.Provide(FromConfig),
)
