// Package redis adapta Redis como bus de eventos, secuenciador de documentos y lock distribuido.
package redis

import (
	"context"
	"fmt"

	"github.com/jhoicas/branch-ledger/pkg/config"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient conecta con Redis y verifica la conexión.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 50,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
