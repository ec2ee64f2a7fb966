package migration

import (
	"github.com/resumekit/entitled/internal/config"
	ledgerdomain "github.com/resumekit/entitled/internal/ledger/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Versioned migrations are written for postgres; other dialects
		// (sqlite for local runs, mysql) derive the schema from the models.
		return conn.AutoMigrate(
			&ledgerdomain.UsageCounter{},
			&ledgerdomain.CapacitySnapshot{},
		)
	}),
)
