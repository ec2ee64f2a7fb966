package ledger

import (
	"github.com/bwmarrin/snowflake"
	"github.com/resumekit/entitled/internal/clock"
	"github.com/resumekit/entitled/internal/config"
	ledgerdomain "github.com/resumekit/entitled/internal/ledger/domain"
	"github.com/resumekit/entitled/internal/ledger/redisrepo"
	"github.com/resumekit/entitled/internal/ledger/repository"
	"github.com/resumekit/entitled/internal/ledger/service"
	"github.com/resumekit/entitled/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProvideRepository selects the counter backend. SQL is the default and the
// durable reporting store; Redis trades retention for lower-latency counters.
func ProvideRepository(cfg config.Config, conn *gorm.DB, genID *snowflake.Node, catalog *plan.Catalog, clk clock.Clock, log *zap.Logger) (ledgerdomain.Repository, error) {
	if cfg.LedgerBackend == config.LedgerBackendRedis {
		log.Info("usage ledger backed by redis", zap.String("addr", cfg.RedisAddr))
		return redisrepo.Provide(cfg, catalog, clk)
	}
	return repository.Provide(conn, genID), nil
}

var Module = fx.Module("ledger",
	fx.Provide(ProvideRepository),
	fx.Provide(service.New),
)
