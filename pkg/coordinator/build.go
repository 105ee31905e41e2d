package coordinator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/glossa-app/glossa/pkg/backend"
	"github.com/glossa-app/glossa/pkg/backend/cloud"
	"github.com/glossa-app/glossa/pkg/backend/local"
	"github.com/glossa-app/glossa/pkg/cache"
	"github.com/glossa-app/glossa/pkg/config"
	"github.com/glossa-app/glossa/pkg/ledger"
	"github.com/glossa-app/glossa/pkg/models"
	"github.com/glossa-app/glossa/pkg/retry"
	"github.com/glossa-app/glossa/pkg/router"
	"github.com/glossa-app/glossa/pkg/store"
	"github.com/glossa-app/glossa/pkg/store/memory"
	redisstore "github.com/glossa-app/glossa/pkg/store/redis"
	sqlitestore "github.com/glossa-app/glossa/pkg/store/sqlite"
)

// ConfigEnv names the environment variable Default reads its config path from.
const ConfigEnv = "GLOSSA_CONFIG"

// OpenStore opens the backing store selected by cfg.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Kind {
	case config.StoreSQLite, "":
		return sqlitestore.New(cfg.Path, cfg.QuotaBytes)
	case config.StoreRedis:
		return redisstore.New(ctx, redisstore.Config{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			KeyPrefix:  cfg.KeyPrefix,
			QuotaBytes: cfg.QuotaBytes,
		})
	case config.StoreMemory:
		return memory.New(cfg.QuotaBytes), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

// Backends creates the enabled backends.
func Backends(cfg config.BackendsConfig, logger *slog.Logger) []backend.Backend {
	var out []backend.Backend
	if cfg.Local.Enabled {
		out = append(out, local.New(local.Config{
			URL:     cfg.Local.URL,
			Model:   cfg.Local.Model,
			Timeout: cfg.Local.Timeout,
		}, logger))
	}
	if cfg.Cloud.Enabled {
		out = append(out, cloud.New(cloud.Config{
			URL:               cfg.Cloud.URL,
			APIKey:            cfg.Cloud.APIKey,
			Model:             cfg.Cloud.Model,
			Timeout:           cfg.Cloud.Timeout,
			RequestsPerSecond: cfg.Cloud.RequestsPerSecond,
			Burst:             cfg.Cloud.Burst,
		}, logger))
	}
	return out
}

// CacheNamespaces converts the configured namespace limits.
func CacheNamespaces(cfg config.CacheConfig) map[models.Namespace]cache.NamespaceConfig {
	out := make(map[models.Namespace]cache.NamespaceConfig, len(models.Namespaces))
	for ns, c := range cfg.Namespaces() {
		out[ns] = cache.NamespaceConfig{TTL: c.TTL, MaxEntries: c.MaxEntries}
	}
	return out
}

// FromConfig builds a coordinator and everything it owns from cfg. The
// store and ledger are closed by Destroy.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	owned := []io.Closer{st}

	opts := []Option{
		WithCache(cache.New(st, CacheNamespaces(cfg.Cache), cache.WithLogger(logger))),
		WithRetry(retry.New(
			retry.WithMaxRetries(cfg.Retry.MaxRetries),
			retry.WithBaseDelay(cfg.Retry.BaseDelay),
			retry.WithLogger(logger),
		)),
		WithRouter(router.New(cfg.Coordinator)),
		WithAvailabilityTTL(cfg.Coordinator.AvailabilityTTL),
		WithLogger(logger),
	}

	if cfg.Ledger.Enabled {
		l, err := ledger.New(cfg.Ledger.DBPath, cfg.Ledger.RetentionDays)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		owned = append(owned, l)
		opts = append(opts, WithRecorder(l))
	}

	opts = append(opts, WithOwned(owned...))
	return New(Backends(cfg.Backends, logger), opts...), nil
}

var (
	defaultMu sync.Mutex
	defaultC  *Coordinator
)

// Default returns the process-wide coordinator, building it on first use
// from the file named by GLOSSA_CONFIG or from the built-in defaults.
func Default() (*Coordinator, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultC != nil {
		return defaultC, nil
	}

	cfg, err := config.LoadOrDefault(os.Getenv(ConfigEnv))
	if err != nil {
		return nil, err
	}
	c, err := FromConfig(context.Background(), cfg, nil)
	if err != nil {
		return nil, err
	}
	defaultC = c
	return defaultC, nil
}

// ResetDefault destroys the process-wide coordinator, if any, so the next
// Default call builds a fresh one.
func ResetDefault() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultC == nil {
		return nil
	}
	err := defaultC.Destroy()
	defaultC = nil
	return err
}
