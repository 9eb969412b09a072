package cache

import (
	"go.uber.org/zap"

	"github.com/isdmx/sandpool/config"
)

// NewStore creates the appropriate cache store based on the configuration.
// With redis disabled the pool still works; it just loses warm-start
// recovery across restarts.
func NewStore(log *zap.Logger, cfg *config.Config) (Store, error) {
	if !cfg.Redis.Enabled {
		log.Warn("redis disabled, sandbox recovery across restarts unavailable")
		return NewNoop(), nil
	}
	return NewRedis(log, &cfg.Redis)
}
