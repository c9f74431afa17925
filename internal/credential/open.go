package credential

import (
	"context"
	"fmt"

	"github.com/nerrad567/expo-client-core/internal/infrastructure/config"
)

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.CredentialsConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		return OpenSQLite(ctx, cfg.Database)
	case config.BackendRedis:
		return OpenRedis(ctx, cfg.Redis)
	case config.BackendMemory:
		return NewMemoryStore(""), nil
	default:
		return nil, fmt.Errorf("credential: unknown backend %q", cfg.Backend)
	}
}
